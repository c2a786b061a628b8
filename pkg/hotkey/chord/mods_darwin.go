package chord

import xhotkey "golang.design/x/hotkey"

var modifierByName = map[string]xhotkey.Modifier{
	"ctrl":   xhotkey.ModCtrl,
	"shift":  xhotkey.ModShift,
	"option": xhotkey.ModOption,
	"cmd":    xhotkey.ModCmd,
}

package chord

import xhotkey "golang.design/x/hotkey"

var modifierByName = map[string]xhotkey.Modifier{
	"ctrl":  xhotkey.ModCtrl,
	"shift": xhotkey.ModShift,
	"alt":   xhotkey.Mod1,
	"super": xhotkey.Mod4,
}

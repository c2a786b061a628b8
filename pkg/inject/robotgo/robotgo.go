// Package robotgo implements inject.Sender with github.com/go-vgo/robotgo.
//
// On macOS the process needs the Accessibility permission for synthetic
// events to reach other applications.
package robotgo

import (
	"github.com/go-vgo/robotgo"

	"github.com/MrWong99/fnx/pkg/inject"
)

// Compile-time interface assertion.
var _ inject.Sender = Sender{}

// Sender types chunks as Unicode key events.
type Sender struct{}

// Send implements [inject.Sender]. robotgo reports no delivery errors, so
// Send always succeeds.
func (Sender) Send(chunk string) error {
	robotgo.TypeStr(chunk)
	return nil
}

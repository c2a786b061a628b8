// Package notify surfaces the overlay's refusal states and the upgrade
// prompt as desktop notifications.
package notify

import (
	"context"
	"log/slog"

	"github.com/gen2brain/beeep"

	"github.com/MrWong99/fnx/internal/overlay"
)

// DefaultUpgradeURL is where the upgrade prompt points.
const DefaultUpgradeURL = "https://fnx.app/pro"

const appTitle = "FnX"

// SendFunc posts a notification.
type SendFunc func(title, message, icon string) error

// Option configures a [Notifier].
type Option func(*Notifier)

// WithIcon sets the icon path shown with notifications.
func WithIcon(path string) Option {
	return func(n *Notifier) { n.icon = path }
}

// WithUpgradeURL overrides [DefaultUpgradeURL].
func WithUpgradeURL(u string) Option {
	return func(n *Notifier) {
		if u != "" {
			n.upgradeURL = u
		}
	}
}

// WithSender replaces the beeep backend. Tests use it to capture output.
func WithSender(fn SendFunc) Option {
	return func(n *Notifier) { n.send = fn }
}

// Notifier is both an overlay renderer and an upgrade prompter. Sends happen
// on their own goroutine so a slow notification daemon never stalls the
// overlay.
type Notifier struct {
	send       SendFunc
	icon       string
	upgradeURL string
}

// New returns a Notifier backed by beeep.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		send:       func(title, msg, icon string) error { return beeep.Notify(title, msg, icon) },
		upgradeURL: DefaultUpgradeURL,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Render implements overlay.Renderer. Only ProRequired produces a
// notification; LimitReached is followed by [Notifier.PromptUpgrade].
func (n *Notifier) Render(s overlay.State) {
	if s != overlay.ProRequired {
		return
	}
	n.post(appTitle, s.Label()+". Your text was typed without the rule.")
}

// PromptUpgrade implements the pipeline's upgrade prompter.
func (n *Notifier) PromptUpgrade(ctx context.Context, dailyLimitHit bool) {
	if ctx.Err() != nil {
		return
	}
	msg := "Upgrade to Pro for AI rules: " + n.upgradeURL
	if dailyLimitHit {
		msg = "You've used all free dictations for today. Upgrade to Pro for unlimited use: " + n.upgradeURL
	}
	n.post(appTitle+" Pro", msg)
}

func (n *Notifier) post(title, msg string) {
	go func() {
		if err := n.send(title, msg, n.icon); err != nil {
			slog.Warn("notify: send failed", "err", err)
		}
	}()
}

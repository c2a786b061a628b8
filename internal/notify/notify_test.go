package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/fnx/internal/notify"
	"github.com/MrWong99/fnx/internal/overlay"
)

type sent struct{ title, msg, icon string }

func capture(err error) (notify.SendFunc, chan sent) {
	ch := make(chan sent, 4)
	return func(title, msg, icon string) error {
		ch <- sent{title, msg, icon}
		return err
	}, ch
}

func next(t *testing.T, ch chan sent) sent {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
		return sent{}
	}
}

func none(t *testing.T, ch chan sent) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("unexpected notification %+v", s)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestRender_OnlyProRequired(t *testing.T) {
	t.Parallel()
	fn, ch := capture(nil)
	n := notify.New(notify.WithSender(fn), notify.WithIcon("/tmp/fnx.png"))

	for _, s := range []overlay.State{overlay.Hidden, overlay.Recording, overlay.Processing, overlay.Done, overlay.LimitReached} {
		n.Render(s)
	}
	none(t, ch)

	n.Render(overlay.ProRequired)
	got := next(t, ch)
	if !strings.Contains(got.msg, "Pro required for AI Rules") || got.icon != "/tmp/fnx.png" {
		t.Errorf("notification = %+v", got)
	}
}

func TestPromptUpgrade(t *testing.T) {
	t.Parallel()
	fn, ch := capture(nil)
	n := notify.New(notify.WithSender(fn), notify.WithUpgradeURL("https://example.test/buy"))

	n.PromptUpgrade(context.Background(), true)
	got := next(t, ch)
	if !strings.Contains(got.msg, "free dictations") || !strings.Contains(got.msg, "https://example.test/buy") {
		t.Errorf("limit prompt = %q", got.msg)
	}

	n.PromptUpgrade(context.Background(), false)
	if got := next(t, ch); !strings.Contains(got.msg, "AI rules") {
		t.Errorf("rules prompt = %q", got.msg)
	}
}

func TestPromptUpgrade_CanceledContext(t *testing.T) {
	t.Parallel()
	fn, ch := capture(nil)
	n := notify.New(notify.WithSender(fn))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.PromptUpgrade(ctx, true)
	none(t, ch)
}

func TestSendErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	fn, ch := capture(errors.New("no notification daemon"))
	n := notify.New(notify.WithSender(fn))
	n.Render(overlay.ProRequired)
	next(t, ch)
}

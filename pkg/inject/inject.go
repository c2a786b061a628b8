// Package inject types text into whichever application has keyboard focus
// by synthesising key events. The clipboard is never touched.
//
// Text is split into chunks measured in UTF-16 code units, the unit the
// host's per-event Unicode payload is limited by, and handed to a [Sender]
// one chunk at a time with a short pause in between so the receiving
// application does not drop characters.
package inject

import (
	"context"
	"fmt"
	"time"
	"unicode/utf16"
)

const (
	// DefaultChunkSize is the per-event Unicode payload limit in UTF-16
	// code units.
	DefaultChunkSize = 20

	// DefaultChunkDelay is the pause between two chunks.
	DefaultChunkDelay = 5 * time.Millisecond
)

// Sender emits one chunk of text as synthetic key events.
type Sender interface {
	Send(chunk string) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(chunk string) error

// Send implements [Sender].
func (f SenderFunc) Send(chunk string) error { return f(chunk) }

// Option configures an [Injector].
type Option func(*Injector)

// WithChunkSize sets the chunk size in UTF-16 code units. Values below 2
// are raised to 2 so a surrogate pair always fits.
func WithChunkSize(n int) Option {
	return func(i *Injector) { i.chunkSize = max(n, 2) }
}

// WithChunkDelay sets the pause between chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(i *Injector) {
		if d >= 0 {
			i.delay = d
		}
	}
}

// Injector delivers text through a [Sender].
type Injector struct {
	sender    Sender
	chunkSize int
	delay     time.Duration
}

// New returns an Injector using sender.
func New(sender Sender, opts ...Option) *Injector {
	i := &Injector{
		sender:    sender,
		chunkSize: DefaultChunkSize,
		delay:     DefaultChunkDelay,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Type sends text chunk by chunk. Delivery is best effort: the error only
// reports that typing stopped early, it cannot tell whether focus moved.
func (i *Injector) Type(ctx context.Context, text string) error {
	chunks := Chunks(text, i.chunkSize)
	for n, c := range chunks {
		if n > 0 && i.delay > 0 {
			t := time.NewTimer(i.delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("inject: stopped after %d of %d chunks: %w", n, len(chunks), ctx.Err())
			case <-t.C:
			}
		}
		if err := i.sender.Send(c); err != nil {
			return fmt.Errorf("inject: chunk %d of %d: %w", n+1, len(chunks), err)
		}
	}
	return nil
}

// Chunks splits text into pieces of at most size UTF-16 code units. A
// surrogate pair is never split across two chunks.
func Chunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	size = max(size, 2)

	var (
		out   []string
		start int // byte offset of the current chunk
		units int // UTF-16 length of the current chunk
	)
	for off, r := range text {
		w := 1
		if utf16.RuneLen(r) == 2 {
			w = 2
		}
		if units+w > size {
			out = append(out, text[start:off])
			start, units = off, 0
		}
		units += w
	}
	return append(out, text[start:])
}

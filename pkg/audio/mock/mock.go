// Package mock provides an in-memory [audio.Device] for unit tests.
//
// The mock never touches real hardware. Tests push buffers through
// [Device.Emit] while a stream is open and inspect the call counters
// afterwards.
//
// Typical usage:
//
//	dev := &mock.Device{Format: audio.Format{SampleRate: 48000, Channels: 2}}
//	c := audio.NewCapture(dev, audio.WithTempDir(t.TempDir()))
//	_ = c.Start()
//	dev.Emit(samples)
//	_ = c.Stop()
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/fnx/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

// Device is a mock implementation of [audio.Device].
type Device struct {
	mu sync.Mutex

	// Format is returned by InputFormat.
	Format audio.Format

	// FormatErr, if non-nil, is returned by InputFormat.
	FormatErr error

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// CloseErr, if non-nil, is returned by the stream's Close.
	CloseErr error

	// CallCountOpen records how many times Open succeeded.
	CallCountOpen int

	// CallCountClose records how many times a stream was closed.
	CallCountClose int

	// OpenedFormats records the format passed to each Open call.
	OpenedFormats []audio.Format

	fn func([]float32)
}

// InputFormat implements [audio.Device].
func (d *Device) InputFormat() (audio.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FormatErr != nil {
		return audio.Format{}, d.FormatErr
	}
	return d.Format, nil
}

// Open implements [audio.Device].
func (d *Device) Open(f audio.Format, fn func([]float32)) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.fn != nil {
		return nil, errors.New("mock: stream already open")
	}
	d.CallCountOpen++
	d.OpenedFormats = append(d.OpenedFormats, f)
	d.fn = fn
	return &stream{dev: d}, nil
}

// Emit delivers samples to the open stream synchronously. It reports false
// when no stream is open.
func (d *Device) Emit(samples []float32) bool {
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(samples)
	return true
}

// IsOpen reports whether a stream is currently open.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}

type stream struct {
	dev  *Device
	once sync.Once
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.dev.mu.Lock()
		s.dev.fn = nil
		s.dev.CallCountClose++
		s.dev.mu.Unlock()
	})
	return s.dev.CloseErr
}

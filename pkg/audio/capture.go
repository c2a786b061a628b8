package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrBusy is returned by [Capture.Start] while a recording is in progress.
var ErrBusy = errors.New("audio: capture already running")

// Device is a microphone input. Implementations deliver interleaved float32
// buffers on their own goroutine.
type Device interface {
	// InputFormat reports the format the default input negotiates.
	InputFormat() (Format, error)

	// Open starts delivering input in format f to fn. Delivery stops before
	// the returned stream's Close returns.
	Open(f Format, fn func(samples []float32)) (Stream, error)
}

// Stream is a running device input.
type Stream interface {
	Close() error
}

// Capture records one session at a time from a [Device] into a temporary
// WAV file in [Target] format.
//
// Start and Stop are safe to call from any goroutine. Sample conversion and
// file writes happen on the device's delivery goroutine; Stop waits for
// delivery to end and the file to be finalised, so the file is complete and
// safe to read once Stop returns.
type Capture struct {
	dev    Device
	dir    string
	target Format

	mu       sync.Mutex
	stream   Stream
	file     *os.File
	writer   *WAVWriter
	conv     *Converter
	writeErr error
	last     string

	// writeMu serialises delivery callbacks against finalisation.
	writeMu sync.Mutex
}

// CaptureOption configures a [Capture].
type CaptureOption func(*Capture)

// WithTempDir sets the directory recordings are written to. Defaults to
// [os.TempDir].
func WithTempDir(dir string) CaptureOption {
	return func(c *Capture) {
		if dir != "" {
			c.dir = dir
		}
	}
}

// WithTargetFormat overrides the recording format. Only useful in tests;
// production code records in [Target].
func WithTargetFormat(f Format) CaptureOption {
	return func(c *Capture) { c.target = f }
}

// NewCapture returns a Capture reading from dev.
func NewCapture(dev Device, opts ...CaptureOption) *Capture {
	c := &Capture{
		dev:    dev,
		dir:    os.TempDir(),
		target: Target,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start opens the input device and begins streaming converted samples to a
// fresh temporary file. It fails with [ErrFormat] when the target format is
// unusable, [ErrConverter] when the device format cannot be converted, or an
// I/O error when the file cannot be created. [Capture.LastRecording] is
// cleared until the next Stop.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return ErrBusy
	}
	c.last = ""

	if err := c.target.Validate(); err != nil || c.target.Channels != 1 {
		return fmt.Errorf("%w: %s", ErrFormat, c.target)
	}

	in, err := c.dev.InputFormat()
	if err != nil {
		return fmt.Errorf("audio: query input format: %w", err)
	}
	conv, err := NewConverter(in, c.target)
	if err != nil {
		return err
	}

	path := filepath.Join(c.dir, "fnx_recording_"+uuid.NewString()+".wav")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("audio: create recording file: %w", err)
	}
	w, err := NewWAVWriter(f, c.target)
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("audio: start wav stream: %w", err)
	}

	c.file = f
	c.writer = w
	c.conv = conv
	c.writeErr = nil

	stream, err := c.dev.Open(in, c.deliver)
	if err != nil {
		c.writeMu.Lock()
		c.file, c.writer, c.conv = nil, nil, nil
		c.writeMu.Unlock()
		f.Close()
		os.Remove(path)
		return fmt.Errorf("audio: open input stream: %w", err)
	}
	c.stream = stream

	slog.Debug("audio capture started", "input", in.String(), "target", c.target.String(), "path", path)
	return nil
}

// deliver runs on the device goroutine for every input buffer.
func (c *Capture) deliver(samples []float32) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writer == nil || c.writeErr != nil {
		return
	}
	out := c.conv.Convert(samples)
	if len(out) == 0 {
		return
	}
	if err := c.writer.Write(out); err != nil {
		c.writeErr = err
		slog.Error("audio capture: write failed, dropping remaining input", "err", err)
	}
}

// Stop detaches from the device and finalises the recording. It is a no-op
// when no recording is running. The finished file is reported by
// [Capture.LastRecording] and is never deleted by Capture.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream == nil {
		return nil
	}

	var errs []error
	if err := c.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audio: close input stream: %w", err))
	}
	c.stream = nil

	c.writeMu.Lock()
	w, f := c.writer, c.file
	frames := w.Frames()
	c.writer, c.file, c.conv = nil, nil, nil
	if c.writeErr != nil {
		errs = append(errs, c.writeErr)
	}
	c.writeMu.Unlock()

	if err := w.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audio: close recording file: %w", err))
	}
	c.last = f.Name()

	slog.Debug("audio capture stopped", "path", c.last, "frames", frames)
	return errors.Join(errs...)
}

// LastRecording returns the path of the file finished by the most recent
// Stop. ok is false while recording or before the first recording.
func (c *Capture) LastRecording() (path string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.last != ""
}

// Recording reports whether a session is currently being captured.
func (c *Capture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

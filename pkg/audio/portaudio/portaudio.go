// Package portaudio provides an [audio.Device] backed by the default
// PortAudio input device.
//
// The PortAudio C library must be installed and discoverable by pkg-config at
// build time (CGO_ENABLED=1). On macOS the process additionally needs the
// microphone permission; without it PortAudio delivers silence.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/fnx/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Device = (*Device)(nil)

const (
	defaultFramesPerBuffer = 1024

	// maxCaptureChannels caps the requested channel count. Anything beyond
	// stereo is averaged away by the converter anyway.
	maxCaptureChannels = 2
)

// Option configures a [Device].
type Option func(*Device)

// WithFramesPerBuffer sets the number of frames read per blocking call.
// Defaults to 1024.
func WithFramesPerBuffer(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.framesPerBuffer = n
		}
	}
}

// Device reads from the system default input. Create it once per process;
// [New] initialises the PortAudio library and [Device.Close] terminates it.
type Device struct {
	framesPerBuffer int
	closeOnce       sync.Once
}

// New initialises PortAudio and returns a Device.
func New(opts ...Option) (*Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialise: %w", err)
	}
	d := &Device{framesPerBuffer: defaultFramesPerBuffer}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Close terminates the PortAudio library.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if e := pa.Terminate(); e != nil {
			err = fmt.Errorf("portaudio: terminate: %w", e)
		}
	})
	return err
}

// InputFormat implements [audio.Device].
func (d *Device) InputFormat() (audio.Format, error) {
	info, err := pa.DefaultInputDevice()
	if err != nil {
		return audio.Format{}, fmt.Errorf("portaudio: default input device: %w", err)
	}
	if info.MaxInputChannels < 1 {
		return audio.Format{}, fmt.Errorf("portaudio: device %q has no input channels", info.Name)
	}
	return audio.Format{
		SampleRate: int(info.DefaultSampleRate),
		Channels:   min(info.MaxInputChannels, maxCaptureChannels),
	}, nil
}

// Open implements [audio.Device]. Input is read with blocking calls on a
// dedicated goroutine and handed to fn one buffer at a time.
func (d *Device) Open(f audio.Format, fn func([]float32)) (audio.Stream, error) {
	buf := make([]float32, d.framesPerBuffer*f.Channels)
	stream, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), d.framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream %s: %w", f, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	s := &inputStream{
		stream: stream,
		buf:    buf,
		fn:     fn,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

type inputStream struct {
	stream *pa.Stream
	buf    []float32
	fn     func([]float32)

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (s *inputStream) readLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		if err := s.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				slog.Debug("portaudio: input overflowed")
			} else {
				slog.Warn("portaudio: read failed", "err", err)
				return
			}
		}
		chunk := make([]float32, len(s.buf))
		copy(chunk, s.buf)
		s.fn(chunk)
	}
}

// Close stops the read loop, then the stream. Delivery has ended when it
// returns.
func (s *inputStream) Close() error {
	var errs []error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
		}
	})
	return errors.Join(errs...)
}

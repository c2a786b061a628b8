package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// maxChannels bounds the channel layouts the converter accepts. Anything
// wider is almost certainly a misreported device.
const maxChannels = 32

// Converter turns interleaved float32 input into mono output at the target
// rate. Channels are averaged first, then the mono signal is resampled with
// linear interpolation. Interpolation state is carried across calls, so a
// stream split into arbitrary buffers produces the same output as one call
// on the concatenated input.
//
// A Converter is bound to one stream and is not safe for concurrent use.
type Converter struct {
	src Format
	dst Format

	step   float64 // source samples advanced per output sample
	pos    float64 // read position relative to the current buffer; -1 addresses prev
	prev   float32
	primed bool

	warnRagged sync.Once
}

// NewConverter returns a Converter from src to dst. dst must be mono.
// It fails with [ErrConverter] when either side cannot be converted.
func NewConverter(src, dst Format) (*Converter, error) {
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrConverter, src, err)
	}
	if src.Channels > maxChannels {
		return nil, fmt.Errorf("%w: source has %d channels", ErrConverter, src.Channels)
	}
	if err := dst.Validate(); err != nil {
		return nil, fmt.Errorf("%w: target %s: %v", ErrConverter, dst, err)
	}
	if dst.Channels != 1 {
		return nil, fmt.Errorf("%w: target %s is not mono", ErrConverter, dst)
	}
	return &Converter{
		src:  src,
		dst:  dst,
		step: float64(src.SampleRate) / float64(dst.SampleRate),
	}, nil
}

// Source returns the input format the converter was built for.
func (c *Converter) Source() Format { return c.src }

// Convert consumes one buffer of interleaved input and returns the converted
// samples it completes. A trailing partial frame is dropped.
func (c *Converter) Convert(in []float32) []float32 {
	if len(in)%c.src.Channels != 0 {
		c.warnRagged.Do(func() {
			slog.Warn("audio converter: buffer is not a whole number of frames, dropping remainder",
				"samples", len(in),
				"channels", c.src.Channels,
			)
		})
	}
	mono := Downmix(in, c.src.Channels)
	if c.src.SampleRate == c.dst.SampleRate {
		return mono
	}
	return c.resample(mono)
}

func (c *Converter) resample(in []float32) []float32 {
	n := len(in)
	if n == 0 {
		return nil
	}
	if !c.primed {
		// The very first sample has no predecessor; start reading at it.
		c.prev = in[0]
		c.pos = 0
		c.primed = true
	}

	at := func(i int) float32 {
		if i < 0 {
			return c.prev
		}
		return in[i]
	}

	out := make([]float32, 0, int(float64(n)/c.step)+1)
	for c.pos < float64(n-1) {
		i := int(c.pos)
		if c.pos < 0 {
			i = -1
		}
		frac := float32(c.pos - float64(i))
		s0, s1 := at(i), at(i+1)
		out = append(out, s0+(s1-s0)*frac)
		c.pos += c.step
	}
	c.pos -= float64(n)
	c.prev = in[n-1]
	return out
}

// Downmix averages each interleaved frame of in to a single sample. Mono
// input is returned unchanged.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum float32
		for ch := range channels {
			sum += in[f*channels+ch]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

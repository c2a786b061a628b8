// Package audio captures microphone input into transcription-ready WAV files.
//
// Every recording is normalised to [Target]: mono, 16 kHz, 32-bit IEEE float.
// Samples arrive from a [Device] in whatever format the hardware negotiates,
// are converted incrementally by a [Converter], and are streamed to a
// temporary file so long holds never accumulate in memory. [Capture] owns
// that lifecycle; the caller owns the finished file.
package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when the capture target format is unusable.
	ErrFormat = errors.New("audio: invalid target format")

	// ErrConverter is returned when no conversion path exists between the
	// device format and the target format.
	ErrConverter = errors.New("audio: no conversion path")
)

// Format describes the sample rate and channel count of an interleaved
// float32 sample stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Target is the format every recording is written in. It is what the
// transcription backends require regardless of the input device.
var Target = Format{SampleRate: 16000, Channels: 1}

// String returns a compact description such as "48000Hz/2ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Validate reports whether f can describe a real sample stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d must be positive", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count %d must be positive", f.Channels)
	}
	return nil
}

package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// wavFormatPCM and wavFormatFloat are the WAVE_FORMAT tags for integer
	// PCM and IEEE float samples.
	wavFormatPCM   = 1
	wavFormatFloat = 3

	floatBitDepth = 32
)

// WAVWriter streams mono float32 samples into a WAV container. The header
// is written on creation and patched with the final sizes by Close.
type WAVWriter struct {
	enc    *wav.Encoder
	format *goaudio.Format
	frames int
}

// NewWAVWriter starts a 32-bit IEEE float WAV stream on w at the given
// format. w is not closed by the writer.
func NewWAVWriter(w io.WriteSeeker, f Format) (*WAVWriter, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	ww := &WAVWriter{
		enc:    wav.NewEncoder(w, f.SampleRate, floatBitDepth, f.Channels, wavFormatFloat),
		format: &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
	}
	// An empty write forces the header out so even a zero-length recording
	// is a well-formed file.
	if err := ww.Write(nil); err != nil {
		return nil, err
	}
	return ww, nil
}

// Write appends samples to the stream.
func (ww *WAVWriter) Write(samples []float32) error {
	buf := &goaudio.IntBuffer{
		Format:         ww.format,
		SourceBitDepth: floatBitDepth,
		Data:           make([]int, len(samples)),
	}
	// The encoder only speaks integers; at 32 bits it writes each value's
	// low four bytes verbatim, which carries the IEEE bit pattern intact.
	for i, s := range samples {
		buf.Data[i] = int(int32(math.Float32bits(s)))
	}
	if err := ww.enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav samples: %w", err)
	}
	ww.frames += len(samples) / ww.format.NumChannels
	return nil
}

// Frames returns the number of frames written so far.
func (ww *WAVWriter) Frames() int { return ww.frames }

// Close finalises the header sizes.
func (ww *WAVWriter) Close() error {
	if err := ww.enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// ReadWAV loads a WAV file and returns its samples as float32 in [-1, 1]
// together with the stored format. Multi-channel files are returned
// interleaved.
func ReadWAV(path string) ([]float32, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()
	return DecodeWAV(f)
}

// DecodeWAV reads a WAV stream holding 32-bit float or 8/16/24/32-bit
// integer PCM.
func DecodeWAV(r io.ReadSeeker) ([]float32, Format, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, Format{}, fmt.Errorf("audio: read wav header: %w", err)
	}
	format := Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if err := format.Validate(); err != nil {
		return nil, Format{}, fmt.Errorf("audio: wav header: %w", err)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, format, nil
		}
		return nil, Format{}, fmt.Errorf("audio: read wav samples: %w", err)
	}

	out := make([]float32, len(buf.Data))
	switch {
	case d.WavAudioFormat == wavFormatFloat && d.BitDepth == floatBitDepth:
		for i, v := range buf.Data {
			out[i] = math.Float32frombits(uint32(int32(v)))
		}
	case d.WavAudioFormat == wavFormatPCM:
		scale := float32(int64(1) << (d.BitDepth - 1))
		for i, v := range buf.Data {
			out[i] = float32(v) / scale
		}
	default:
		return nil, Format{}, fmt.Errorf("audio: unsupported wav encoding (format %d, %d bit)", d.WavAudioFormat, d.BitDepth)
	}
	return out, format, nil
}

package audio_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/fnx/pkg/audio"
	"github.com/MrWong99/fnx/pkg/audio/mock"
)

func newCapture(t *testing.T, dev *mock.Device) (*audio.Capture, string) {
	t.Helper()
	dir := t.TempDir()
	return audio.NewCapture(dev, audio.WithTempDir(dir)), dir
}

func TestCapture_RecordsConvertedFile(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Format{SampleRate: 48000, Channels: 2}}
	c, dir := newCapture(t, dev)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !c.Recording() {
		t.Fatal("Recording() = false after Start")
	}
	if _, ok := c.LastRecording(); ok {
		t.Error("LastRecording should be empty while recording")
	}

	// 100 ms of stereo at 48 kHz, both channels at 0.5.
	buf := make([]float32, 4800*2)
	for i := range buf {
		buf[i] = 0.5
	}
	if !dev.Emit(buf) {
		t.Fatal("Emit found no open stream")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	path, ok := c.LastRecording()
	if !ok {
		t.Fatal("LastRecording not set after Stop")
	}
	if filepath.Dir(path) != dir {
		t.Errorf("recording in %q, want %q", filepath.Dir(path), dir)
	}
	if !strings.HasPrefix(filepath.Base(path), "fnx_recording_") {
		t.Errorf("unexpected file name %q", filepath.Base(path))
	}

	samples, format, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if format != audio.Target {
		t.Errorf("format = %s, want %s", format, audio.Target)
	}
	if len(samples) < 1599 || len(samples) > 1600 {
		t.Errorf("got %d samples, want ~1600", len(samples))
	}
	for i, s := range samples {
		if !approxEqual(s, 0.5) {
			t.Fatalf("sample %d = %v, want 0.5", i, s)
		}
	}
	if dev.IsOpen() {
		t.Error("device stream still open after Stop")
	}
}

func TestCapture_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Target}
	c, _ := newCapture(t, dev)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	first, _ := c.LastRecording()
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	second, _ := c.LastRecording()
	if first != second {
		t.Errorf("second Stop changed LastRecording: %q -> %q", first, second)
	}
	if dev.CallCountClose != 1 {
		t.Errorf("stream closed %d times, want 1", dev.CallCountClose)
	}
}

func TestCapture_StartWhileRecording(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Target}
	c, _ := newCapture(t, dev)

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()
	if err := c.Start(); !errors.Is(err, audio.ErrBusy) {
		t.Errorf("second Start err = %v, want ErrBusy", err)
	}
	if dev.CallCountOpen != 1 {
		t.Errorf("Open called %d times, want 1", dev.CallCountOpen)
	}
}

func TestCapture_ConverterError(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Format{SampleRate: 0, Channels: 2}}
	c, dir := newCapture(t, dev)

	if err := c.Start(); !errors.Is(err, audio.ErrConverter) {
		t.Fatalf("err = %v, want ErrConverter", err)
	}
	if c.Recording() {
		t.Error("Recording() = true after failed Start")
	}
	assertEmptyDir(t, dir)
}

func TestCapture_FormatError(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Target}
	c := audio.NewCapture(dev,
		audio.WithTempDir(t.TempDir()),
		audio.WithTargetFormat(audio.Format{SampleRate: 16000, Channels: 2}),
	)
	if err := c.Start(); !errors.Is(err, audio.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestCapture_OpenErrorRemovesFile(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Target, OpenErr: errors.New("device busy")}
	c, dir := newCapture(t, dev)

	if err := c.Start(); err == nil {
		t.Fatal("expected error")
	}
	assertEmptyDir(t, dir)
}

func TestCapture_CreateFileError(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Target}
	c := audio.NewCapture(dev, audio.WithTempDir(filepath.Join(t.TempDir(), "missing")))

	err := c.Start()
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, audio.ErrFormat) || errors.Is(err, audio.ErrConverter) {
		t.Errorf("err = %v, want a plain I/O error", err)
	}
	if dev.CallCountOpen != 0 {
		t.Error("device opened despite file failure")
	}
}

func TestCapture_EmitAfterStopIsIgnored(t *testing.T) {
	t.Parallel()
	dev := &mock.Device{Format: audio.Target}
	c, _ := newCapture(t, dev)

	_ = c.Start()
	_ = c.Stop()
	if dev.Emit([]float32{1, 2, 3}) {
		t.Error("Emit delivered after Stop")
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover files, found %d", len(entries))
	}
}

// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"spectro/internal/config"
	"spectro/internal/segment"
)

const (
	testSampleRate = 8000
	testFrameSize  = 4
)

func testAudio(channels int) config.AudioConfig {
	return config.AudioConfig{
		InputDevice:     config.MinDeviceID,
		SampleRate:      testSampleRate,
		FramesPerBuffer: testFrameSize,
		InputChannels:   channels,
	}
}

func receive(t *testing.T, ch <-chan segment.Chunk) segment.Chunk {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatal("chunk channel closed")
		}
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk delivered")
		return segment.Chunk{}
	}
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-6 }

func TestEngineDeliversMonoChunks(t *testing.T) {
	h := stubHost(t)
	e := NewEngine(testAudio(2), config.RecordingConfig{})

	ch, err := e.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.params.Input.Device != testMic || h.params.Input.Channels != 2 {
		t.Errorf("opened %v with %d channels", h.params.Input.Device.Name, h.params.Input.Channels)
	}
	if h.params.FramesPerBuffer != testFrameSize || h.params.SampleRate != testSampleRate {
		t.Errorf("stream parameters = %+v", h.params)
	}

	h.cb([]float32{1, 0, 0.5, 0.5, -1, -1, 0, 0.2})
	c := receive(t, ch)
	want := []float32{0.5, 0.5, -1, 0.1}
	if c.SampleRate != testSampleRate || len(c.Samples) != len(want) {
		t.Fatalf("chunk = %v at %v Hz", c.Samples, c.SampleRate)
	}
	for i := range want {
		if !near(c.Samples[i], want[i]) {
			t.Errorf("sample %d = %v, want %v", i, c.Samples[i], want[i])
		}
	}
	if !near(e.Level(), 1) {
		t.Errorf("Level() = %v, want 1", e.Level())
	}

	if _, err := e.Start(); !errors.Is(err, ErrCapturing) {
		t.Errorf("second Start() error = %v, want ErrCapturing", err)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("chunk channel still open after Stop")
	}
	if !h.stream.started || !h.stream.stopped || !h.stream.closed {
		t.Errorf("stream lifecycle = %+v", *h.stream)
	}
	if h.inits != 1 || h.terms != 1 {
		t.Errorf("Initialize %d times, Terminate %d times", h.inits, h.terms)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() on an idle engine = %v", err)
	}
}

func TestEngineClampsChannelsToDevice(t *testing.T) {
	h := stubHost(t)
	cfg := testAudio(2)
	cfg.InputDevice = 2
	e := NewEngine(cfg, config.RecordingConfig{})

	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	if h.params.Input.Channels != 1 {
		t.Errorf("channels = %d, want the device's 1", h.params.Input.Channels)
	}
}

func TestEngineNeverBlocksCallback(t *testing.T) {
	h := stubHost(t)
	e := NewEngine(testAudio(1), config.RecordingConfig{})
	if _, err := e.Start(); err != nil {
		t.Fatal(err)
	}

	in := []float32{0.1, 0.2, 0.3, 0.4}
	done := make(chan struct{})
	go func() {
		for range 100 {
			h.cb(in)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback blocked on a stalled consumer")
	}

	// Chunks queued for the pump, one in the pump, the rest dropped.
	if got := e.Dropped(); got < 100-ringSlots {
		t.Errorf("Dropped() = %d, want at least %d", got, 100-ringSlots)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestEngineGate(t *testing.T) {
	h := stubHost(t)
	cfg := testAudio(1)
	cfg.GateThreshold = 0.1
	e := NewEngine(cfg, config.RecordingConfig{})
	ch, err := e.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer e.Stop()

	h.cb([]float32{0.01, -0.05, 0.02, 0})
	quiet := receive(t, ch)
	for i, s := range quiet.Samples {
		if s != 0 {
			t.Errorf("gated sample %d = %v", i, s)
		}
	}
	if !near(e.Level(), 0.05) {
		t.Errorf("Level() = %v, want the pre-gate peak 0.05", e.Level())
	}

	h.cb([]float32{0.5, -0.5, 0.25, 0})
	loud := receive(t, ch)
	if loud.Samples[0] != 0.5 || loud.Samples[2] != 0.25 {
		t.Errorf("open gate altered samples: %v", loud.Samples)
	}
}

func TestEngineRecordsSession(t *testing.T) {
	h := stubHost(t)
	dir := t.TempDir()
	e := NewEngine(testAudio(1), config.RecordingConfig{Enabled: true, OutputDir: dir, BitDepth: 16})

	ch, err := e.Start()
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		h.cb([]float32{0.5, 0.5, 0.5, 0.5})
		receive(t, ch)
	}
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}

	path := e.LastRecording()
	if path == "" {
		t.Fatal("no recording saved")
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if dec.SampleRate != testSampleRate || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("format = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != 12 {
		t.Fatalf("recorded %d samples, want 12", len(buf.Data))
	}
	for i, v := range buf.Data {
		if v < 16383 || v > 16384 {
			t.Errorf("sample %d = %d, want half scale", i, v)
		}
	}
}

func TestEngineStartErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *fakeHost, cfg *config.AudioConfig)
	}{
		{"Initialize", func(h *fakeHost, _ *config.AudioConfig) { h.initErr = errors.New("no audio") }},
		{"Device", func(_ *fakeHost, cfg *config.AudioConfig) { cfg.InputDevice = 9 }},
		{"Open", func(h *fakeHost, _ *config.AudioConfig) { h.openErr = errors.New("busy") }},
		{"Start", func(h *fakeHost, _ *config.AudioConfig) { h.startErr = errors.New("busy") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := stubHost(t)
			cfg := testAudio(1)
			tt.setup(h, &cfg)
			dir := t.TempDir()
			e := NewEngine(cfg, config.RecordingConfig{Enabled: true, OutputDir: dir, BitDepth: 16})

			if _, err := e.Start(); err == nil {
				t.Fatal("Start() succeeded")
			}
			if h.inits != h.terms {
				t.Errorf("Initialize %d times, Terminate %d times", h.inits, h.terms)
			}
			if entries, _ := os.ReadDir(dir); len(entries) != 0 {
				t.Errorf("failed start left %d files behind", len(entries))
			}
			if err := e.Stop(); err != nil {
				t.Errorf("Stop() after failed start = %v", err)
			}
		})
	}
}

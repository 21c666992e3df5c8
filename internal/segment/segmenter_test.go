// SPDX-License-Identifier: MIT
package segment

import (
	"errors"
	"testing"

	"spectro/pkg/utils"
)

const (
	testWindow = 4096
	testStep   = 1024
	testRate   = 44100
)

func newTestSegmenter(t *testing.T, maxBatch int) *Segmenter {
	t.Helper()
	s, err := New(Options{WindowSize: testWindow, StepSize: testStep, MaxBatchWindows: maxBatch})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

// carryOf returns what the transform hands back for b.
func carryOf(b *Batch) []float32 {
	overlap := b.WindowSize - b.StepSize
	out := make([]float32, overlap)
	copy(out, b.Samples[len(b.Samples)-overlap:])
	return out
}

func TestNewValidatesGeometry(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"Default", Options{WindowSize: 4096, StepSize: 1024}, true},
		{"No Overlap", Options{WindowSize: 1024, StepSize: 1024}, true},
		{"Window Not Power Of Two", Options{WindowSize: 3000, StepSize: 1000}, false},
		{"Step Does Not Divide", Options{WindowSize: 4096, StepSize: 1000}, false},
		{"Zero Step", Options{WindowSize: 4096, StepSize: 0}, false},
		{"Step Above Window", Options{WindowSize: 1024, StepSize: 2048}, false},
		{"Negative Cap", Options{WindowSize: 4096, StepSize: 1024, MaxBatchWindows: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.ok && err != nil {
				t.Errorf("New() unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrGeometry) {
				t.Errorf("New() error = %v, want ErrGeometry", err)
			}
		})
	}
}

func TestFirstWindowThenOneStep(t *testing.T) {
	s := newTestSegmenter(t, 0)

	b, err := s.Append(utils.GenerateRamp(4096, 0), testRate)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if b == nil || b.Windows != 1 {
		t.Fatalf("expected exactly one window, got %+v", b)
	}
	first := b.Window(0)
	if first.StartOffset != 0 || first.Length != 4096 || !first.IsStart {
		t.Errorf("first window = {start %d, len %d, isStart %v}, want {0, 4096, true}",
			first.StartOffset, first.Length, first.IsStart)
	}
	if first.SampleRate != testRate {
		t.Errorf("SampleRate = %v, want %v", first.SampleRate, testRate)
	}
	prev := append([]float32(nil), first.Samples...)

	if next := s.Resolve(carryOf(b)); next != nil {
		t.Fatalf("Resolve() emitted %d windows with nothing queued", next.Windows)
	}

	b, err = s.Append(utils.GenerateRamp(1024, 4096), testRate)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if b == nil || b.Windows != 1 {
		t.Fatalf("expected exactly one new window, got %+v", b)
	}
	w := b.Window(0)
	if w.IsStart || w.StartOffset != 1024 {
		t.Errorf("second window = {start %d, isStart %v}, want {1024, false}", w.StartOffset, w.IsStart)
	}
	for i := range 3072 {
		if w.Samples[i] != prev[1024+i] {
			t.Fatalf("overlap mismatch at %d: %v != %v", i, w.Samples[i], prev[1024+i])
		}
	}
}

func TestOverlapAcrossIrregularChunks(t *testing.T) {
	s := newTestSegmenter(t, 0)
	stream := utils.GenerateRamp(40000, 0)
	sizes := []int{300, 700, 1500, 37, 4096, 1, 2047, 999, 5000, 128}

	var windows []AudioWindow
	var inflight *Batch
	collect := func(b *Batch) {
		if b == nil {
			return
		}
		for i := range b.Windows {
			w := b.Window(i)
			w.Samples = append([]float32(nil), w.Samples...)
			windows = append(windows, w)
		}
		inflight = b
	}

	for pos, k := 0, 0; pos < len(stream); k++ {
		n := min(sizes[k%len(sizes)], len(stream)-pos)
		b, err := s.Append(stream[pos:pos+n], testRate)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		pos += n
		collect(b)
		// Resolve every other chunk so batches build up while pending.
		if inflight != nil && k%2 == 1 {
			done := inflight
			inflight = nil
			collect(s.Resolve(carryOf(done)))
		}
	}
	for inflight != nil {
		done := inflight
		inflight = nil
		collect(s.Resolve(carryOf(done)))
	}

	want := (40000-testWindow)/testStep + 1
	if len(windows) != want {
		t.Fatalf("got %d windows, want %d", len(windows), want)
	}
	for i, w := range windows {
		if w.StartOffset != int64(i*testStep) {
			t.Fatalf("window %d starts at %d, want %d", i, w.StartOffset, i*testStep)
		}
		if w.IsStart != (i == 0) {
			t.Errorf("window %d IsStart = %v", i, w.IsStart)
		}
		if w.Samples[0] != float32(i*testStep) || w.Samples[testWindow-1] != float32(i*testStep+testWindow-1) {
			t.Fatalf("window %d holds [%v..%v]", i, w.Samples[0], w.Samples[testWindow-1])
		}
	}
	if s.Emitted() != int64(want) {
		t.Errorf("Emitted() = %d, want %d", s.Emitted(), want)
	}
}

func TestBackpressureCoalesces(t *testing.T) {
	s := newTestSegmenter(t, 0)

	b, _ := s.Append(utils.GenerateRamp(4096, 0), testRate)
	if b == nil || !s.Pending() {
		t.Fatal("expected a pending batch")
	}

	for i := range 4 {
		if got, _ := s.Append(utils.GenerateRamp(1024, 4096+i*1024), testRate); got != nil {
			t.Fatalf("Append() emitted while pending")
		}
	}
	if s.Buffered() != 4096 {
		t.Errorf("Buffered() = %d, want 4096", s.Buffered())
	}

	next := s.Resolve(carryOf(b))
	if next == nil || next.Windows != 4 {
		t.Fatalf("Resolve() = %+v, want one batch of 4 windows", next)
	}
	if len(next.Samples) != 4096+3*1024 {
		t.Errorf("batch length = %d, want %d", len(next.Samples), 4096+3*1024)
	}
	start, length := next.TransformRange()
	if start != 3072 || length != 4*1024 {
		t.Errorf("TransformRange() = %d, %d; want 3072, 4096", start, length)
	}
	if next.Last().StartOffset != 4096 {
		t.Errorf("Last().StartOffset = %d, want 4096", next.Last().StartOffset)
	}
}

func TestBatchCapDropsOldest(t *testing.T) {
	s := newTestSegmenter(t, 2)

	b, _ := s.Append(utils.GenerateRamp(4096, 0), testRate)
	s.Append(utils.GenerateRamp(5*1024, 4096), testRate)

	next := s.Resolve(carryOf(b))
	if next == nil || next.Windows != 2 {
		t.Fatalf("Resolve() = %+v, want 2 windows", next)
	}
	if s.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", s.Dropped())
	}
	if next.Start != 4096 || next.Samples[0] != 4096 {
		t.Errorf("capped batch starts at %d (sample %v), want 4096", next.Start, next.Samples[0])
	}
	if next.IsStart {
		t.Errorf("capped batch should continue the session")
	}

	// The stream continues seamlessly after the gap.
	s.Resolve(carryOf(next))
	b, _ = s.Append(utils.GenerateRamp(1024, 9216), testRate)
	if b == nil || b.Window(0).StartOffset != 6144 || b.Samples[0] != 6144 {
		t.Fatalf("batch after cap = %+v", b)
	}
}

func TestAbandonRestartsRun(t *testing.T) {
	s := newTestSegmenter(t, 0)

	s.Append(utils.GenerateRamp(4096, 0), testRate)
	s.Abandon()
	if s.Pending() {
		t.Fatal("Abandon() left the segmenter pending")
	}

	if b, _ := s.Append(utils.GenerateRamp(1024, 4096), testRate); b != nil {
		t.Fatalf("a new run needs a full window, got %d windows", b.Windows)
	}
	b, _ := s.Append(utils.GenerateRamp(3072, 5120), testRate)
	if b == nil || !b.IsStart {
		t.Fatalf("expected a start batch, got %+v", b)
	}
	if b.Start != 4096 || b.Samples[0] != 4096 {
		t.Errorf("restarted batch starts at %d (sample %v), want 4096", b.Start, b.Samples[0])
	}
	start, length := b.TransformRange()
	if start != 0 || length != 4096 {
		t.Errorf("TransformRange() = %d, %d; want 0, 4096", start, length)
	}
}

func TestSampleRateChangeStartsSession(t *testing.T) {
	s := newTestSegmenter(t, 0)

	s.Append(make([]float32, 2048), 44100)
	if b, _ := s.Append(make([]float32, 2048), 48000); b != nil {
		t.Fatal("samples at the old rate must not join the new session")
	}
	if s.Buffered() != 2048 {
		t.Errorf("Buffered() = %d, want 2048", s.Buffered())
	}

	b, _ := s.Append(make([]float32, 2048), 48000)
	if b == nil || !b.IsStart || b.SampleRate != 48000 {
		t.Fatalf("expected start batch at 48kHz, got %+v", b)
	}
}

func TestAppendEdgeCases(t *testing.T) {
	s := newTestSegmenter(t, 0)

	if b, err := s.Append(nil, testRate); b != nil || err != nil {
		t.Errorf("Append(nil) = %v, %v; want no-op", b, err)
	}
	if _, err := s.Append([]float32{1}, 0); !errors.Is(err, ErrSampleRate) {
		t.Errorf("Append(rate 0) error = %v, want ErrSampleRate", err)
	}
	if b := s.Resolve(nil); b != nil {
		t.Errorf("Resolve() without a pending batch = %+v", b)
	}

	s.Append(make([]float32, 1000), testRate)
	s.Reset()
	if s.Buffered() != 0 || s.Pending() {
		t.Errorf("Reset() left %d samples, pending %v", s.Buffered(), s.Pending())
	}
}

func TestAppendCopiesChunk(t *testing.T) {
	s := newTestSegmenter(t, 0)
	chunk := utils.GenerateRamp(4096, 0)
	b, _ := s.Append(chunk, testRate)
	chunk[0] = -1
	if b.Samples[0] != 0 {
		t.Errorf("batch aliases the caller's chunk")
	}
}

func BenchmarkAppend(b *testing.B) {
	s, _ := New(Options{WindowSize: testWindow, StepSize: testStep})
	chunk := utils.GenerateSineWave(testStep, testRate, 440, 0.5)
	b.ReportAllocs()
	for b.Loop() {
		batch, _ := s.Append(chunk, testRate)
		for batch != nil {
			batch = s.Resolve(carryOf(batch))
		}
	}
}

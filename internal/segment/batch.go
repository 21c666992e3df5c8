// SPDX-License-Identifier: MIT
package segment

// Chunk is a block of mono samples as delivered by a capture source.
type Chunk struct {
	Samples    []float32
	SampleRate float64
}

// AudioWindow is one analysis window of a batch.
type AudioWindow struct {
	Samples     []float32
	StartOffset int64
	Length      int
	SampleRate  float64
	IsStart     bool
}

// Batch is a contiguous run of samples covering Windows overlapping
// windows. Ownership of Samples passes to whoever receives the batch.
type Batch struct {
	Samples    []float32
	Start      int64 // stream offset of Samples[0]
	Windows    int
	WindowSize int
	StepSize   int
	SampleRate float64

	// IsStart marks the first batch of a run: there is no earlier window
	// to overlap with.
	IsStart bool
}

// Window returns the i-th window. Its Samples alias the batch buffer.
func (b *Batch) Window(i int) AudioWindow {
	off := i * b.StepSize
	return AudioWindow{
		Samples:     b.Samples[off : off+b.WindowSize],
		StartOffset: b.Start + int64(off),
		Length:      b.WindowSize,
		SampleRate:  b.SampleRate,
		IsStart:     b.IsStart && i == 0,
	}
}

// Last returns the newest window of the batch.
func (b *Batch) Last() AudioWindow {
	return b.Window(b.Windows - 1)
}

// TransformRange returns the region of Samples that yields exactly the
// batch's windows. Continuation batches begin with the overlap of the
// previous batch, which the transform reaches by looking back from start.
func (b *Batch) TransformRange() (start, length int) {
	if b.IsStart {
		return 0, len(b.Samples)
	}
	overlap := b.WindowSize - b.StepSize
	return overlap, len(b.Samples) - overlap
}

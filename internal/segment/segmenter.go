// SPDX-License-Identifier: MIT
/*
Package segment turns an unbounded, irregular sample stream into batches of
overlapping analysis windows.

Consecutive windows overlap by exactly WindowSize-StepSize samples. A batch
holds every window that became due since the previous one as a single
contiguous buffer:

	len(Samples) = WindowSize + (Windows-1)*StepSize
	window i     = Samples[i*StepSize : i*StepSize+WindowSize]

Only one batch is outstanding at a time. While a batch is pending, Append
buffers samples and returns nothing; Resolve hands back the carry of the
finished batch and emits the next due batch, if any. The segmenter never
keeps a reference to an emitted buffer, so it can be handed to another
goroutine.
*/
package segment

import (
	"errors"
	"fmt"

	"spectro/internal/log"
	"spectro/pkg/bitint"
)

var (
	// ErrGeometry is returned when the window and step sizes cannot tile
	// a stream.
	ErrGeometry = errors.New("segment: window size must be a power of two and a multiple of the step size")

	// ErrSampleRate is returned for non-positive sample rates.
	ErrSampleRate = errors.New("segment: sample rate must be positive")
)

var logger = log.For("Segmenter")

// Options configures a Segmenter.
type Options struct {
	WindowSize int
	StepSize   int

	// MaxBatchWindows caps the windows in one batch. When more are due the
	// oldest are dropped. Zero means unbounded.
	MaxBatchWindows int
}

func (o Options) validate() error {
	if !bitint.IsPowerOfTwo(o.WindowSize) || o.StepSize <= 0 ||
		o.StepSize > o.WindowSize || o.WindowSize%o.StepSize != 0 {
		return fmt.Errorf("%w: window=%d step=%d", ErrGeometry, o.WindowSize, o.StepSize)
	}
	if o.MaxBatchWindows < 0 {
		return fmt.Errorf("%w: negative batch cap %d", ErrGeometry, o.MaxBatchWindows)
	}
	return nil
}

// Overlap returns the number of samples shared by consecutive windows.
func (o Options) Overlap() int {
	return o.WindowSize - o.StepSize
}

// Segmenter is not safe for concurrent use. It belongs to the goroutine
// that drives the display.
type Segmenter struct {
	opts Options

	sampleRate float64

	// tail holds the overlap of the last emitted window once a session has
	// started. It is the prefix of the next batch.
	tail    []float32
	started bool

	// queue holds appended samples not yet part of any batch.
	queue []float32

	// offset is the stream position of the first sample of tail+queue.
	offset int64

	pending bool
	dropped int64
	emitted int64
}

// New validates opts and returns an idle Segmenter.
func New(opts Options) (*Segmenter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Segmenter{
		opts:  opts,
		tail:  make([]float32, 0, opts.Overlap()),
		queue: make([]float32, 0, opts.WindowSize*2),
	}, nil
}

// Options returns the geometry the segmenter was built with.
func (s *Segmenter) Options() Options { return s.opts }

// Append queues a copy of chunk. If no batch is pending and at least one
// window is due, the batch covering all due windows is returned and the
// segmenter becomes pending. A change of sample rate starts a new session.
func (s *Segmenter) Append(chunk []float32, sampleRate float64) (*Batch, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrSampleRate, sampleRate)
	}
	if s.sampleRate != 0 && s.sampleRate != sampleRate {
		logger.Infof("sample rate changed %.0f -> %.0f, starting new session", s.sampleRate, sampleRate)
		s.Reset()
	}
	s.sampleRate = sampleRate
	s.queue = append(s.queue, chunk...)

	if s.pending {
		return nil, nil
	}
	return s.next(), nil
}

// Resolve completes the pending batch. carry must be the last
// Overlap() samples of the finished batch and re-seeds the overlap; a carry
// of the wrong length is ignored and the copy taken at emission is kept.
// The next due batch, if any, is returned.
func (s *Segmenter) Resolve(carry []float32) *Batch {
	if !s.pending {
		return nil
	}
	s.pending = false
	if s.started && len(carry) == s.opts.Overlap() {
		copy(s.tail, carry)
	}
	return s.next()
}

// Abandon forgets the pending batch without its carry. The overlap is lost,
// so the next batch starts a new run of windows with IsStart set. Queued
// samples are kept.
func (s *Segmenter) Abandon() {
	s.pending = false
	s.offset += int64(len(s.tail))
	s.tail = s.tail[:0]
	s.started = false
}

// Reset discards all samples and state and starts a new session. The drop
// counter is kept.
func (s *Segmenter) Reset() {
	s.pending = false
	s.started = false
	s.tail = s.tail[:0]
	s.queue = s.queue[:0]
	s.offset = 0
	s.sampleRate = 0
}

// Pending reports whether a batch is outstanding.
func (s *Segmenter) Pending() bool { return s.pending }

// Buffered returns the number of appended samples not yet emitted.
func (s *Segmenter) Buffered() int { return len(s.queue) }

// Dropped returns the number of windows discarded by the batch cap.
func (s *Segmenter) Dropped() int64 { return s.dropped }

// Emitted returns the number of windows handed out in batches.
func (s *Segmenter) Emitted() int64 { return s.emitted }

// due returns the number of complete windows in tail+queue.
func (s *Segmenter) due() int {
	avail := len(s.tail) + len(s.queue)
	if avail < s.opts.WindowSize {
		return 0
	}
	return (avail-s.opts.WindowSize)/s.opts.StepSize + 1
}

// copyRange fills dst from tail+queue starting at position from.
func (s *Segmenter) copyRange(dst []float32, from int) {
	n := 0
	if from < len(s.tail) {
		n = copy(dst, s.tail[from:])
		from = 0
	} else {
		from -= len(s.tail)
	}
	copy(dst[n:], s.queue[from:])
}

func (s *Segmenter) next() *Batch {
	n := s.due()
	if n == 0 {
		return nil
	}

	W, S := s.opts.WindowSize, s.opts.StepSize
	skip := 0
	if limit := s.opts.MaxBatchWindows; limit > 0 && n > limit {
		drop := n - limit
		skip = drop * S
		s.dropped += int64(drop)
		logger.Warnf("dropped %d windows, transform is falling behind", drop)
		n = limit
	}

	length := W + (n-1)*S
	b := &Batch{
		Samples:    make([]float32, length),
		Start:      s.offset + int64(skip),
		Windows:    n,
		WindowSize: W,
		StepSize:   S,
		SampleRate: s.sampleRate,
		IsStart:    !s.started,
	}
	s.copyRange(b.Samples, skip)

	// Everything up to the end of the batch is consumed. The last overlap
	// samples stay behind as the tail of the next batch.
	end := skip + length
	fromQueue := end - len(s.tail)
	rest := copy(s.queue, s.queue[fromQueue:])
	s.queue = s.queue[:rest]

	overlap := W - S
	s.tail = append(s.tail[:0], b.Samples[length-overlap:]...)
	s.offset += int64(end - overlap)

	s.started = true
	s.pending = true
	s.emitted += int64(n)

	logger.Debugf("emitted batch start=%d windows=%d isStart=%v", b.Start, n, b.IsStart)
	return b
}

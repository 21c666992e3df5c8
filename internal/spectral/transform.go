// SPDX-License-Identifier: MIT
/*
Package spectral computes magnitude spectra of overlapping sample windows.

Transform takes a region of a sample buffer and returns one column per
window, oldest first. A start region holds whole windows from its first
sample. A continuation region holds only new samples: its first window
reaches back WindowSize-StepSize samples before start, into samples that an
earlier call already consumed. The trailing overlap of every call is
returned as Carry so a producer can build the next continuation without
keeping the buffer.

Worker runs transforms on its own goroutine behind a single-slot mailbox.
*/
package spectral

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"spectro/pkg/bitint"
)

var (
	// ErrMalformedLength is returned when a region does not tile into whole
	// windows and steps.
	ErrMalformedLength = errors.New("spectral: malformed region length")

	// ErrLookback is returned when a continuation region starts too close to
	// the beginning of the buffer to reach its first window.
	ErrLookback = errors.New("spectral: insufficient look-back before region")

	// ErrOptions is returned for an invalid window geometry or sample rate.
	ErrOptions = errors.New("spectral: invalid options")
)

// Options describes the windowing of one Transform call.
type Options struct {
	WindowSize int
	StepSize   int
	SampleRate float64
	IsStart    bool
	Window     WindowFunc
}

func (o Options) validate() error {
	if !bitint.IsPowerOfTwo(o.WindowSize) || o.StepSize <= 0 ||
		o.StepSize > o.WindowSize || o.WindowSize%o.StepSize != 0 {
		return fmt.Errorf("%w: window=%d step=%d", ErrOptions, o.WindowSize, o.StepSize)
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %v", ErrOptions, o.SampleRate)
	}
	return nil
}

// Spectra holds the columns of one call, oldest first, each WindowSize/2
// raw magnitudes long, and the trailing WindowSize-StepSize samples.
type Spectra struct {
	Columns [][]float32
	Carry   []float32
}

// Span validates a region against opts and returns the offset of the first
// window and the number of windows.
func Span(bufLen, start, length int, opts Options) (first, windows int, err error) {
	if err := opts.validate(); err != nil {
		return 0, 0, err
	}
	W, S := opts.WindowSize, opts.StepSize
	if start < 0 || length <= 0 || start+length > bufLen {
		return 0, 0, fmt.Errorf("%w: region [%d, %d) outside buffer of %d", ErrMalformedLength, start, start+length, bufLen)
	}
	if opts.IsStart {
		if length < W || (length-W)%S != 0 {
			return 0, 0, fmt.Errorf("%w: start region of %d is not window %d plus whole steps of %d", ErrMalformedLength, length, W, S)
		}
		return start, (length-W)/S + 1, nil
	}
	if length%S != 0 {
		return 0, 0, fmt.Errorf("%w: continuation of %d is not a multiple of step %d", ErrMalformedLength, length, S)
	}
	first = start - (W - S)
	if first < 0 {
		return 0, 0, fmt.Errorf("%w: need %d samples before %d", ErrLookback, W-S, start)
	}
	return first, length / S, nil
}

// Transformer owns the FFT plan and scratch buffers for one window size.
// It is not safe for concurrent use.
type Transformer struct {
	size   int
	window WindowFunc
	fft    *fourier.FFT
	coeffs []float64
	input  []float64
	output []complex128
}

// NewTransformer pre-allocates a transformer for windows of size samples.
func NewTransformer(size int, w WindowFunc) (*Transformer, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("%w: window size %d is not a power of two", ErrOptions, size)
	}
	return &Transformer{
		size:   size,
		window: w,
		fft:    fourier.NewFFT(size),
		coeffs: w.Coefficients(size),
		input:  make([]float64, size),
		output: make([]complex128, size/2+1),
	}, nil
}

// Size returns the window size the transformer was built for.
func (t *Transformer) Size() int { return t.size }

// Window returns the taper in use.
func (t *Transformer) Window() WindowFunc { return t.window }

// Spectrum writes the len(dst) lowest magnitudes of the tapered window
// samples into dst. len(samples) must equal Size and len(dst) must not
// exceed Size/2+1.
func (t *Transformer) Spectrum(dst []float32, samples []float32) {
	for i, s := range samples[:t.size] {
		t.input[i] = float64(s) * t.coeffs[i]
	}
	t.fft.Coefficients(t.output, t.input)
	for i := range dst {
		dst[i] = float32(cmplx.Abs(t.output[i]))
	}
}

// Transform runs every window of the region through the FFT.
func (t *Transformer) Transform(buf []float32, start, length int, opts Options) (*Spectra, error) {
	if opts.WindowSize != t.size || opts.Window != t.window {
		return nil, fmt.Errorf("%w: transformer built for %d/%v, asked for %d/%v",
			ErrOptions, t.size, t.window, opts.WindowSize, opts.Window)
	}
	first, n, err := Span(len(buf), start, length, opts)
	if err != nil {
		return nil, err
	}

	W, S := opts.WindowSize, opts.StepSize
	bins := W / 2
	backing := make([]float32, n*bins)
	res := &Spectra{Columns: make([][]float32, n)}
	for i := range n {
		col := backing[i*bins : (i+1)*bins : (i+1)*bins]
		off := first + i*S
		t.Spectrum(col, buf[off:off+W])
		res.Columns[i] = col
	}

	end := start + length
	res.Carry = make([]float32, W-S)
	copy(res.Carry, buf[end-(W-S):end])
	return res, nil
}

// Transform is the one-shot form of Transformer.Transform.
func Transform(buf []float32, start, length int, opts Options) (*Spectra, error) {
	t, err := NewTransformer(opts.WindowSize, opts.Window)
	if err != nil {
		return nil, err
	}
	return t.Transform(buf, start, length, opts)
}

// BinFrequency returns the centre frequency of bin for the given window
// size and sample rate.
func BinFrequency(bin, windowSize int, sampleRate float64) float64 {
	if bin < 0 || windowSize <= 0 {
		return 0
	}
	return float64(bin) * sampleRate / float64(windowSize)
}

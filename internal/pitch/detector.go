// SPDX-License-Identifier: MIT
/*
Package pitch estimates the fundamental frequency of analysis windows.

The Detector runs YIN (de Cheveigné and Kawahara, 2002) with the
difference function computed through an FFT cross-correlation:

	d(t) = e(0) + e(t) - 2*r(t)

where r is the correlation of the first half of the window against the
whole window and e(t) is the energy of the half-window starting at t. The
cumulative mean normalised difference is then scanned for the first dip
below the threshold and refined by parabolic interpolation.

A window without a detectable pitch yields ok=false. That is never the same
as 0 Hz.
*/
package pitch

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"

	"spectro/pkg/bitint"
)

// Options bound the search.
type Options struct {
	MinFrequency float64 // Hz
	MaxFrequency float64 // Hz
	Threshold    float64 // CMNDF dip threshold, 0.1-0.2 is typical
	SilenceRMS   float64 // windows quieter than this are never voiced
}

// DefaultOptions covers the range of the human voice and most melodic
// instruments.
func DefaultOptions() Options {
	return Options{
		MinFrequency: 50,
		MaxFrequency: 2000,
		Threshold:    0.15,
		SilenceRMS:   0.01,
	}
}

// Detector is a YIN pitch detector for one sample rate. It keeps scratch
// buffers between calls and is not safe for concurrent use.
type Detector struct {
	opts       Options
	sampleRate float64

	x   []float64
	a   []float64
	b   []float64
	cmn []float64
}

// NewDetector returns a detector for windows sampled at sampleRate.
func NewDetector(sampleRate float64, opts Options) *Detector {
	if opts.MinFrequency <= 0 {
		opts.MinFrequency = DefaultOptions().MinFrequency
	}
	if opts.MaxFrequency <= opts.MinFrequency {
		opts.MaxFrequency = max(DefaultOptions().MaxFrequency, opts.MinFrequency*2)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultOptions().Threshold
	}
	if opts.SilenceRMS <= 0 {
		opts.SilenceRMS = DefaultOptions().SilenceRMS
	}
	return &Detector{opts: opts, sampleRate: sampleRate}
}

func (d *Detector) SampleRate() float64 { return d.sampleRate }
func (d *Detector) Options() Options    { return d.opts }

// Detect returns the fundamental frequency of window in Hz. ok is false
// for silence, noise and pitches outside the configured range.
func (d *Detector) Detect(window []float32) (hz float64, ok bool) {
	n := len(window)
	half := n / 2
	if half < 3 || d.sampleRate <= 0 {
		return 0, false
	}

	d.x = grow(d.x, n)
	for i, v := range window {
		d.x[i] = float64(v)
	}
	if floats.Norm(d.x, 2)/math.Sqrt(float64(n)) < d.opts.SilenceRMS {
		return 0, false
	}

	cmn := d.normalisedDifference(half)

	lo := max(2, int(d.sampleRate/d.opts.MaxFrequency))
	hi := min(half-1, int(math.Ceil(d.sampleRate/d.opts.MinFrequency)))
	tau := -1
	for t := lo; t < hi; t++ {
		if cmn[t] >= d.opts.Threshold {
			continue
		}
		for t+1 < hi && cmn[t+1] < cmn[t] {
			t++
		}
		tau = t
		break
	}
	if tau < 0 {
		return 0, false
	}

	hz = d.sampleRate / parabolic(cmn, tau)
	if hz < d.opts.MinFrequency || hz > d.opts.MaxFrequency || math.IsNaN(hz) {
		return 0, false
	}
	return hz, true
}

// normalisedDifference fills d.cmn[:half] from d.x.
func (d *Detector) normalisedDifference(half int) []float64 {
	n := len(d.x)
	x := d.x[:n]
	size := bitint.NextPowerOfTwo(n + half)

	d.a = grow(d.a, size)
	d.b = grow(d.b, size)
	clear(d.a)
	clear(d.b)
	copy(d.a, x[:half])
	copy(d.b, x)

	fa := fft.FFTReal(d.a)
	fb := fft.FFTReal(d.b)
	for i := range fb {
		fb[i] *= cmplx.Conj(fa[i])
	}
	r := fft.IFFT(fb)

	d.cmn = grow(d.cmn, half)
	cmn := d.cmn
	e0 := floats.Dot(x[:half], x[:half])
	et := e0
	for t := range half {
		cmn[t] = max(e0+et-2*real(r[t]), 0)
		et += x[t+half]*x[t+half] - x[t]*x[t]
	}

	cmn[0] = 1
	var sum float64
	for t := 1; t < half; t++ {
		sum += cmn[t]
		if sum == 0 {
			cmn[t] = 1
			continue
		}
		cmn[t] *= float64(t) / sum
	}
	return cmn
}

// parabolic refines the minimum at i using its neighbours.
func parabolic(v []float64, i int) float64 {
	if i <= 0 || i >= len(v)-1 {
		return float64(i)
	}
	y1, y2, y3 := v[i-1], v[i], v[i+1]
	a := (y1 - 2*y2 + y3) / 2
	if a == 0 {
		return float64(i)
	}
	b := (y3 - y1) / 2
	return float64(i) - b/(2*a)
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}

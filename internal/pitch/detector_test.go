// SPDX-License-Identifier: MIT
package pitch

import (
	"math"
	"math/rand/v2"
	"testing"

	"spectro/pkg/utils"
)

const (
	testRate   = 44100.0
	testWindow = 4096
)

func TestDetectSine220(t *testing.T) {
	d := NewDetector(testRate, DefaultOptions())
	hz, ok := d.Detect(utils.GenerateSineWave(testWindow, testRate, 220, 0.5))
	if !ok {
		t.Fatalf("Detect() found no pitch in a 220 Hz sine")
	}
	if math.Abs(hz-220) > 2 {
		t.Errorf("Detect() = %.2f Hz, want 220 ±2", hz)
	}
}

func TestDetectSines(t *testing.T) {
	d := NewDetector(testRate, DefaultOptions())
	for _, freq := range []float64{82.4, 110, 196, 440, 659.3, 880, 1318.5} {
		t.Run(FormatHz(freq), func(t *testing.T) {
			hz, ok := d.Detect(utils.GenerateSineWave(testWindow, testRate, freq, 0.3))
			if !ok {
				t.Fatalf("Detect() found no pitch")
			}
			if math.Abs(hz-freq)/freq > 0.01 {
				t.Errorf("Detect() = %.2f Hz, want %.1f ±1%%", hz, freq)
			}
		})
	}
}

func TestDetectHarmonicTone(t *testing.T) {
	// Fundamental plus two overtones, the overtones louder than the root.
	w := make([]float32, testWindow)
	for i := range w {
		ts := float64(i) / testRate
		w[i] = float32(0.2*math.Sin(2*math.Pi*150*ts) +
			0.3*math.Sin(2*math.Pi*300*ts) +
			0.25*math.Sin(2*math.Pi*450*ts))
	}
	hz, ok := NewDetector(testRate, DefaultOptions()).Detect(w)
	if !ok || math.Abs(hz-150) > 2 {
		t.Errorf("Detect() = %.2f, %v; want 150 Hz", hz, ok)
	}
}

func TestDetectNone(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	quiet := make([]float32, testWindow)
	for i := range quiet {
		quiet[i] = float32(rng.NormFloat64() * 0.001)
	}

	tests := []struct {
		name   string
		rate   float64
		window []float32
	}{
		{"silence", testRate, make([]float32, testWindow)},
		{"below gate", testRate, quiet},
		{"below range", testRate, utils.GenerateSineWave(testWindow, testRate, 30, 0.5)},
		{"no sample rate", 0, utils.GenerateSineWave(testWindow, testRate, 220, 0.5)},
		{"too short", testRate, []float32{0.5, -0.5, 0.5, -0.5}},
		{"empty", testRate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hz, ok := NewDetector(tt.rate, DefaultOptions()).Detect(tt.window)
			if ok {
				t.Errorf("Detect() = %.2f Hz, want none", hz)
			}
			if hz != 0 {
				t.Errorf("Detect() returned %v alongside none", hz)
			}
		})
	}
}

func TestDetectorOptionsDefaults(t *testing.T) {
	d := NewDetector(testRate, Options{})
	if d.Options() != DefaultOptions() {
		t.Errorf("Options() = %+v, want defaults", d.Options())
	}

	d = NewDetector(testRate, Options{MinFrequency: 3000, MaxFrequency: 100, Threshold: 0.1})
	if o := d.Options(); o.MaxFrequency <= o.MinFrequency {
		t.Errorf("inverted range was kept: %+v", o)
	}

	// A zero-value detector still gates near-silence.
	quiet := utils.GenerateSineWave(testWindow, testRate, 220, 0.001)
	if hz, ok := NewDetector(testRate, Options{}).Detect(quiet); ok {
		t.Errorf("Detect(quiet) = %.1f Hz, want unvoiced", hz)
	}
}

func TestParabolic(t *testing.T) {
	// Samples of (x-2.25)^2 around the integer minimum at 2.
	v := []float64{5.0625, 1.5625, 0.0625, 0.5625, 3.0625}
	if got := parabolic(v, 2); math.Abs(got-2.25) > 1e-12 {
		t.Errorf("parabolic() = %v, want 2.25", got)
	}
	if got := parabolic(v, 0); got != 0 {
		t.Errorf("parabolic() at the edge = %v, want 0", got)
	}
}

func BenchmarkDetect(b *testing.B) {
	d := NewDetector(testRate, DefaultOptions())
	w := utils.GenerateSineWave(testWindow, testRate, 220, 0.5)
	b.ReportAllocs()
	for b.Loop() {
		d.Detect(w)
	}
}

// SPDX-License-Identifier: MIT
package render

import (
	"math"
	"testing"
)

func TestApplyIsFieldWise(t *testing.T) {
	base := DefaultParameters()
	base.SampleRate = 44100

	got, c := base.apply(ParameterUpdate{Sensitivity: Ptr(0.9)})
	if got.Sensitivity != 0.9 {
		t.Errorf("Sensitivity = %v, want 0.9", got.Sensitivity)
	}
	if c != changeTone {
		t.Errorf("change = %b, want tone only", c)
	}

	want := base
	want.Sensitivity = 0.9
	if got.Contrast != want.Contrast || got.Zoom != want.Zoom || got.MinFrequencyHz != want.MinFrequencyHz ||
		got.MaxFrequencyHz != want.MaxFrequencyHz || got.Scale != want.Scale || got.SampleRate != want.SampleRate ||
		got.WindowSize != want.WindowSize || len(got.Gradient) != len(want.Gradient) {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestApplyChanges(t *testing.T) {
	base := DefaultParameters()
	g, _ := Preset("Inferno")

	tests := []struct {
		name   string
		update ParameterUpdate
		want   change
	}{
		{"Nothing", ParameterUpdate{}, 0},
		{"Same Value", ParameterUpdate{Zoom: Ptr(base.Zoom)}, 0},
		{"Sample Rate", ParameterUpdate{SampleRate: Ptr(48000.0)}, changeRows},
		{"Window Size", ParameterUpdate{WindowSize: Ptr(2048)}, changeRows},
		{"Scale", ParameterUpdate{Scale: Ptr(Log)}, changeRows},
		{"Zoom", ParameterUpdate{Zoom: Ptr(1.0)}, changeRows},
		{"Contrast", ParameterUpdate{Contrast: Ptr(0.1)}, changeTone},
		{"Gradient", ParameterUpdate{Gradient: g}, changeGradient},
		{"Several", ParameterUpdate{MaxFrequencyHz: Ptr(8000.0), Contrast: Ptr(0.0)}, changeRows | changeTone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, c := base.apply(tt.update); c != tt.want {
				t.Errorf("change = %b, want %b", c, tt.want)
			}
		})
	}
}

func TestApplyClamps(t *testing.T) {
	p, _ := DefaultParameters().apply(ParameterUpdate{
		Sensitivity: Ptr(2.0),
		Contrast:    Ptr(-1.0),
		Zoom:        Ptr(0.25),
		WindowSize:  Ptr(-4),
	})
	if p.Sensitivity != 1 || p.Contrast != 0 || p.Zoom != 1 || p.WindowSize != 4096 {
		t.Errorf("clamped = sens %v contrast %v zoom %v window %d", p.Sensitivity, p.Contrast, p.Zoom, p.WindowSize)
	}
}

func TestMergeLaterWins(t *testing.T) {
	u := ParameterUpdate{Sensitivity: Ptr(0.1), Zoom: Ptr(2.0)}
	u = u.Merge(ParameterUpdate{Zoom: Ptr(4.0), Scale: Ptr(Log)})

	if *u.Sensitivity != 0.1 || *u.Zoom != 4 || *u.Scale != Log {
		t.Errorf("Merge() = sens %v zoom %v scale %v", *u.Sensitivity, *u.Zoom, *u.Scale)
	}
	if u.Contrast != nil || u.IsZero() {
		t.Errorf("Merge() touched unrelated fields")
	}
	if !(ParameterUpdate{}).IsZero() {
		t.Errorf("empty update is not zero")
	}
}

func TestTone(t *testing.T) {
	const eps = 1e-9

	// Sensitivity 0 and contrast 0 leave magnitudes untouched.
	for _, x := range []float64{0, 0.25, 0.5, 1} {
		if got := Tone(x, 0, 0); math.Abs(got-x) > eps {
			t.Errorf("Tone(%v, 0, 0) = %v, want identity", x, got)
		}
	}

	for _, sc := range [][2]float64{{0.4, 0.35}, {1, 0}, {0, 1}, {0.7, 0.7}} {
		if got := Tone(0, sc[0], sc[1]); math.Abs(got) > eps {
			t.Errorf("Tone(0, %v, %v) = %v, want 0", sc[0], sc[1], got)
		}
		if got := Tone(1, sc[0], sc[1]); math.Abs(got-1) > eps {
			t.Errorf("Tone(1, %v, %v) = %v, want 1", sc[0], sc[1], got)
		}
		prev := -1.0
		for i := range 101 {
			y := Tone(float64(i)/100, sc[0], sc[1])
			if y < prev {
				t.Fatalf("Tone not monotonic at %d for %v", i, sc)
			}
			prev = y
		}
	}

	// More sensitivity lifts quiet bins.
	if Tone(0.1, 0.8, 0) <= Tone(0.1, 0.2, 0) {
		t.Errorf("higher sensitivity should brighten quiet magnitudes")
	}
	if Tone(2, 0, 0) != 1 || Tone(-1, 0, 0) != 0 {
		t.Errorf("Tone does not clamp its input")
	}
	if g := SensitivityGain(0); g != 0 {
		t.Errorf("SensitivityGain(0) = %v, want 0", g)
	}
	if g := ContrastGain(1); math.Abs(g-(1e6-1)) > 1e-3 {
		t.Errorf("ContrastGain(1) = %v, want 999999", g)
	}
}

func TestRowFrequency(t *testing.T) {
	p := Parameters{MinFrequencyHz: 0, MaxFrequencyHz: 1000, Zoom: 1, Scale: Linear}

	tests := []struct {
		name string
		p    func(Parameters) Parameters
		y    int
		h    int
		want float64
	}{
		{"Bottom Row", func(p Parameters) Parameters { return p }, 9, 10, 50},
		{"Top Row", func(p Parameters) Parameters { return p }, 0, 10, 950},
		{"Zoom Anchored At Bottom", func(p Parameters) Parameters { p.Zoom = 2; return p }, 0, 10, 475},
		{"Zoom Keeps Bottom", func(p Parameters) Parameters { p.Zoom = 4; return p }, 9, 10, 12.5},
		{"Log Midpoint", func(p Parameters) Parameters {
			p.Scale = Log
			p.MinFrequencyHz = 10
			p.MaxFrequencyHz = 10000
			return p
		}, 1, 4, math.Pow(10, 1+3*0.625)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p(p).RowFrequency(tt.y, tt.h)
			if math.Abs(got-tt.want) > 1e-6*math.Max(1, tt.want) {
				t.Errorf("RowFrequency(%d, %d) = %v, want %v", tt.y, tt.h, got, tt.want)
			}
		})
	}

	q := Parameters{WindowSize: 4096, SampleRate: 44100}
	if b := q.FrequencyBin(44100.0 / 2); b != 2048 {
		t.Errorf("FrequencyBin(Nyquist) = %v, want 2048", b)
	}
	if b := (Parameters{WindowSize: 4096}).FrequencyBin(100); b != -1 {
		t.Errorf("FrequencyBin without sample rate = %v, want -1", b)
	}
}

func TestParseScale(t *testing.T) {
	if s, err := ParseScale("LOG"); err != nil || s != Log {
		t.Errorf("ParseScale(LOG) = %v, %v", s, err)
	}
	if _, err := ParseScale("mel"); err == nil {
		t.Errorf("ParseScale(mel) should fail")
	}
	if Log.String() != "log" || Linear.String() != "linear" {
		t.Errorf("Scale.String() mismatch")
	}
}

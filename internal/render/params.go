// SPDX-License-Identifier: MIT
package render

import (
	"fmt"
	"math"
	"strings"
)

// Scale selects how display rows map onto frequencies.
type Scale int

const (
	Linear Scale = iota
	Log
)

func (s Scale) String() string {
	if s == Log {
		return "log"
	}
	return "linear"
}

// ParseScale accepts "linear" and "log" (or "logarithmic").
func ParseScale(name string) (Scale, error) {
	switch strings.ToLower(name) {
	case "linear", "":
		return Linear, nil
	case "log", "logarithmic":
		return Log, nil
	default:
		return Linear, fmt.Errorf("render: unknown scale %q", name)
	}
}

// Parameters control how stored magnitudes become pixels. None of them
// touch the stored history; they are applied when a frame is drawn.
type Parameters struct {
	WindowSize     int
	SampleRate     float64
	Sensitivity    float64 // [0, 1]
	Contrast       float64 // [0, 1]
	Zoom           float64 // >= 1
	MinFrequencyHz float64
	MaxFrequencyHz float64
	Scale          Scale
	Gradient       []GradientStop
}

// DefaultParameters returns the initial look: sensitivity 0.4, contrast
// 0.35, zoom 3, 10Hz to 4.5kHz on a linear scale in black to white.
func DefaultParameters() Parameters {
	g, _ := Preset(DefaultGradient)
	return Parameters{
		WindowSize:     4096,
		Sensitivity:    0.4,
		Contrast:       0.35,
		Zoom:           3,
		MinFrequencyHz: 10,
		MaxFrequencyHz: 4500,
		Scale:          Linear,
		Gradient:       g,
	}
}

// ParameterUpdate is a partial change of Parameters. Nil fields are left
// untouched.
type ParameterUpdate struct {
	WindowSize     *int
	SampleRate     *float64
	Sensitivity    *float64
	Contrast       *float64
	Zoom           *float64
	MinFrequencyHz *float64
	MaxFrequencyHz *float64
	Scale          *Scale
	Gradient       []GradientStop
}

// Ptr returns a pointer to v, for building a ParameterUpdate inline.
func Ptr[T any](v T) *T { return &v }

// IsZero reports whether the update changes nothing.
func (u ParameterUpdate) IsZero() bool {
	return u.WindowSize == nil && u.SampleRate == nil && u.Sensitivity == nil &&
		u.Contrast == nil && u.Zoom == nil && u.MinFrequencyHz == nil &&
		u.MaxFrequencyHz == nil && u.Scale == nil && u.Gradient == nil
}

// Merge folds later into u. Fields set in later win.
func (u ParameterUpdate) Merge(later ParameterUpdate) ParameterUpdate {
	if later.WindowSize != nil {
		u.WindowSize = later.WindowSize
	}
	if later.SampleRate != nil {
		u.SampleRate = later.SampleRate
	}
	if later.Sensitivity != nil {
		u.Sensitivity = later.Sensitivity
	}
	if later.Contrast != nil {
		u.Contrast = later.Contrast
	}
	if later.Zoom != nil {
		u.Zoom = later.Zoom
	}
	if later.MinFrequencyHz != nil {
		u.MinFrequencyHz = later.MinFrequencyHz
	}
	if later.MaxFrequencyHz != nil {
		u.MaxFrequencyHz = later.MaxFrequencyHz
	}
	if later.Scale != nil {
		u.Scale = later.Scale
	}
	if later.Gradient != nil {
		u.Gradient = later.Gradient
	}
	return u
}

// change records which lookup tables a parameter update invalidates.
type change uint8

const (
	changeRows change = 1 << iota
	changeTone
	changeGradient
)

// apply merges u into p field by field. Out of range values are clamped.
func (p Parameters) apply(u ParameterUpdate) (Parameters, change) {
	var c change
	setF := func(dst *float64, src *float64, lo, hi float64, flag change) {
		if src == nil || math.IsNaN(*src) {
			return
		}
		v := math.Min(math.Max(*src, lo), hi)
		if v != *dst {
			*dst = v
			c |= flag
		}
	}

	if u.WindowSize != nil && *u.WindowSize > 0 && *u.WindowSize != p.WindowSize {
		p.WindowSize = *u.WindowSize
		c |= changeRows
	}
	setF(&p.SampleRate, u.SampleRate, 0, math.Inf(1), changeRows)
	setF(&p.Sensitivity, u.Sensitivity, 0, 1, changeTone)
	setF(&p.Contrast, u.Contrast, 0, 1, changeTone)
	setF(&p.Zoom, u.Zoom, 1, math.Inf(1), changeRows)
	setF(&p.MinFrequencyHz, u.MinFrequencyHz, 0, math.Inf(1), changeRows)
	setF(&p.MaxFrequencyHz, u.MaxFrequencyHz, 0, math.Inf(1), changeRows)
	if u.Scale != nil && *u.Scale != p.Scale {
		p.Scale = *u.Scale
		c |= changeRows
	}
	if u.Gradient != nil {
		p.Gradient = append([]GradientStop(nil), u.Gradient...)
		c |= changeGradient
	}
	return p, c
}

// SensitivityGain maps the [0, 1] sensitivity control to the exponent
// gain S = 10^(3s) - 1.
func SensitivityGain(s float64) float64 {
	return math.Pow(10, 3*s) - 1
}

// ContrastGain maps the [0, 1] contrast control to C = 10^(6c) - 1.
func ContrastGain(c float64) float64 {
	return math.Pow(10, 6*c) - 1
}

// Tone maps a normalised magnitude x in [0, 1] through the sensitivity
// power law and the contrast curve.
func Tone(x, sensitivity, contrast float64) float64 {
	x = math.Min(math.Max(x, 0), 1)
	y := 1 - math.Pow(1-x, 1+SensitivityGain(sensitivity))
	if cg := ContrastGain(contrast); cg > 0 {
		y = (math.Pow(1+cg, y) - 1) / cg
	}
	return y
}

// RowFrequency returns the frequency shown at the centre of row y of a
// canvas height rows tall, row 0 being the top.
func (p Parameters) RowFrequency(y, height int) float64 {
	v := 1 - (float64(y)+0.5)/float64(height)
	v /= math.Max(p.Zoom, 1)
	lo, hi := p.MinFrequencyHz, p.MaxFrequencyHz
	if p.Scale == Log && lo > 0 && hi > lo {
		return lo * math.Pow(hi/lo, v)
	}
	return lo + v*(hi-lo)
}

// FrequencyBin converts a frequency to a fractional spectrum bin. It
// returns -1 when the sample rate is not known yet.
func (p Parameters) FrequencyBin(hz float64) float64 {
	if p.SampleRate <= 0 || p.WindowSize <= 0 {
		return -1
	}
	return hz * float64(p.WindowSize) / p.SampleRate
}

// SPDX-License-Identifier: MIT
package render

import (
	"fmt"
	"image/color"
	"slices"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// GradientStop places a colour at Offset in [0, 1] along the intensity
// axis.
type GradientStop struct {
	Offset float64
	Color  colorful.Color
}

// DefaultGradient names the preset used when none is configured.
const DefaultGradient = "Black to White"

type preset struct {
	name  string
	stops []string
}

var presets = []preset{
	{"Black to White", []string{"#000000", "#ffffff"}},
	{"White to Black", []string{"#ffffff", "#000000"}},
	{"Heated Metal", []string{"#000000", "#570070", "#c7003b", "#ff8c00", "#fff9a6", "#ffffff"}},
	{"Inferno", []string{"#000004", "#420a68", "#932667", "#dd513a", "#fca50a", "#fcffa4"}},
	{"Spectrum", []string{"#000000", "#0000ff", "#00ffff", "#00ff00", "#ffff00", "#ff0000"}},
	{"Green Phosphor", []string{"#000000", "#003b00", "#00ff41", "#ccffcc"}},
}

// PresetNames lists the gradient presets in display order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// Preset returns the stops of a named gradient, spaced evenly.
func Preset(name string) ([]GradientStop, error) {
	for _, p := range presets {
		if p.name != name {
			continue
		}
		stops := make([]GradientStop, len(p.stops))
		for i, hex := range p.stops {
			stops[i] = GradientStop{
				Offset: float64(i) / float64(len(p.stops)-1),
				Color:  mustHex(hex),
			}
		}
		return stops, nil
	}
	return nil, fmt.Errorf("render: unknown gradient %q", name)
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// lutSize is the number of entries in the colour lookup table.
const lutSize = 256

// buildLUT samples the gradient at lutSize evenly spaced intensities,
// blending linearly in RGB between neighbouring stops. An empty gradient
// falls back to black to white.
func buildLUT(stops []GradientStop) [lutSize]color.RGBA {
	var lut [lutSize]color.RGBA

	sorted := slices.Clone(stops)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	if len(sorted) == 0 {
		sorted = []GradientStop{
			{Offset: 0, Color: colorful.Color{}},
			{Offset: 1, Color: colorful.Color{R: 1, G: 1, B: 1}},
		}
	}

	for i := range lut {
		t := float64(i) / (lutSize - 1)
		lut[i] = toRGBA(sample(sorted, t))
	}
	return lut
}

func sample(stops []GradientStop, t float64) colorful.Color {
	if t <= stops[0].Offset {
		return stops[0].Color
	}
	for k := 1; k < len(stops); k++ {
		lo, hi := stops[k-1], stops[k]
		if t > hi.Offset {
			continue
		}
		span := hi.Offset - lo.Offset
		if span <= 0 {
			return hi.Color
		}
		return lo.Color.BlendRgb(hi.Color, (t-lo.Offset)/span)
	}
	return stops[len(stops)-1].Color
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

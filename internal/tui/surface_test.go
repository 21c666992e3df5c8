// SPDX-License-Identifier: MIT
package tui

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"

	"spectro/internal/display"
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestHalfBlocks(t *testing.T) {
	tests := []struct {
		w, h  int
		lines int
	}{
		{4, 4, 2},
		{4, 3, 2}, // odd height leaves a black lower half
		{1, 1, 1},
		{7, 10, 5},
	}

	for _, tt := range tests {
		img := filled(tt.w, tt.h, color.RGBA{200, 10, 10, 255})
		lines := strings.Split(HalfBlocks(img), "\n")
		if len(lines) != tt.lines {
			t.Errorf("%dx%d: %d lines, expected %d", tt.w, tt.h, len(lines), tt.lines)
			continue
		}
		for i, line := range lines {
			if got := lipgloss.Width(line); got != tt.w {
				t.Errorf("%dx%d: line %d is %d cells wide, expected %d", tt.w, tt.h, i, got, tt.w)
			}
			if got := strings.Count(line, "▀"); got != tt.w {
				t.Errorf("%dx%d: line %d has %d blocks, expected %d", tt.w, tt.h, i, got, tt.w)
			}
		}
	}
}

func TestHex(t *testing.T) {
	if got := hex(color.RGBA{0xff, 0x8c, 0x00, 0xff}); got != "#ff8c00" {
		t.Errorf("hex = %q, expected #ff8c00", got)
	}
}

func TestSurfaceSkipsUnchangedFrames(t *testing.T) {
	var s Surface
	img := filled(8, 4, color.RGBA{0, 0, 0, 255})

	for range 3 {
		if err := s.Present(img); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Renders(); got != 1 {
		t.Errorf("identical frames rendered %d times, expected 1", got)
	}

	img.SetRGBA(3, 1, color.RGBA{255, 255, 255, 255})
	_ = s.Present(img)
	if got := s.Renders(); got != 2 {
		t.Errorf("changed frame: renders = %d, expected 2", got)
	}

	_ = s.Present(filled(4, 4, color.RGBA{0, 0, 0, 255}))
	if got := s.Renders(); got != 3 {
		t.Errorf("resized frame: renders = %d, expected 3", got)
	}

	text, _ := s.Snapshot()
	if lipgloss.Width(strings.Split(text, "\n")[0]) != 4 {
		t.Errorf("snapshot does not hold the latest frame: %q", text)
	}
}

func TestSurfaceStatus(t *testing.T) {
	var s Surface
	s.PublishStatus(display.Status{State: display.PlayingMic, Source: "microphone", Pitch: "A4"})
	_, st := s.Snapshot()
	if st.State != display.PlayingMic || st.Pitch != "A4" {
		t.Errorf("status = %+v", st)
	}
}

// SPDX-License-Identifier: MIT
package tui

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"

	"spectro/internal/display"
	"spectro/internal/render"
)

// Surface turns presented frames into terminal text and keeps the latest
// status. The display loop writes to it and the TUI reads it on each tick.
type Surface struct {
	mu      sync.Mutex
	prev    []byte
	rect    image.Rectangle
	text    string
	status  display.Status
	renders uint64
}

var (
	_ render.Surface     = (*Surface)(nil)
	_ display.StatusSink = (*Surface)(nil)
)

// Present converts frame unless it is identical to the previous one.
func (s *Surface) Present(frame *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame.Rect == s.rect && bytes.Equal(frame.Pix, s.prev) {
		return nil
	}
	s.prev = append(s.prev[:0], frame.Pix...)
	s.rect = frame.Rect
	s.text = HalfBlocks(frame)
	s.renders++
	return nil
}

// PublishStatus stores st for the next tick.
func (s *Surface) PublishStatus(st display.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Snapshot returns the latest frame text and status.
func (s *Surface) Snapshot() (string, display.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.status
}

// Renders counts converted frames.
func (s *Surface) Renders() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// HalfBlocks draws img with one upper half block per pair of pixel rows:
// the foreground is the upper pixel and the background the lower one.
// Runs of identical cells share one style.
func HalfBlocks(img *image.RGBA) string {
	b := img.Rect
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}
		run := 0
		var top, bottom color.RGBA
		flush := func() {
			if run == 0 {
				return
			}
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(hex(top))).
				Background(lipgloss.Color(hex(bottom)))
			sb.WriteString(style.Render(strings.Repeat("▀", run)))
			run = 0
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			t := img.RGBAAt(x, y)
			var u color.RGBA
			if y+1 < b.Max.Y {
				u = img.RGBAAt(x, y+1)
			}
			if run > 0 && (t != top || u != bottom) {
				flush()
			}
			top, bottom = t, u
			run++
		}
		flush()
	}
	return sb.String()
}

func hex(c color.RGBA) string {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hex()
}

// SPDX-License-Identifier: MIT
/*
Package render rasterises the scrolling spectrogram.

The Renderer mirrors the slot layout of a store.RingBuffer in its own
texture of raw magnitudes and turns it into pixels on demand:

	magnitude -> sensitivity -> contrast -> frequency row -> zoom -> gradient

Texture uploads are incremental (only columns written since the last
upload) and frames are only redrawn when something changed. Rows are drawn
in parallel stripes.
*/
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"spectro/internal/store"
)

// ErrShape is returned when a ring buffer's column height does not match
// the texture.
var ErrShape = errors.New("render: spectrogram shape mismatch")

// Surface receives finished frames. The frame is only valid for the
// duration of the call.
type Surface interface {
	Present(frame *image.RGBA) error
}

// toneSize is the resolution of the intensity lookup table.
const toneSize = 4096

// Option configures a Renderer.
type Option func(*Renderer)

// WithParameters sets the initial parameters.
func WithParameters(p Parameters) Option {
	return func(r *Renderer) { r.params = p }
}

// WithCanvasSize sets the initial canvas size. It defaults to the texture
// size.
func WithCanvasSize(width, height int) Option {
	return func(r *Renderer) { r.canvas = image.Pt(max(width, 1), max(height, 1)) }
}

// WithWorkers sets the number of stripes drawn in parallel. Values below
// one use GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// Renderer draws a spectrogram texture onto a canvas. It is not safe for
// concurrent use.
type Renderer struct {
	surface Surface
	params  Parameters
	workers int

	texW, texH  int
	tex         []float32 // column-major, texH magnitudes per slot
	cursor      int
	lastWritten uint64

	canvas  image.Point // presented size
	target  *image.RGBA
	stretch *image.RGBA

	rowBins []float64
	tone    [toneSize]uint8
	lut     [lutSize]color.RGBA

	dirty bool
	draws uint64
}

// New returns a renderer with a texture of width columns by height bins,
// presenting to surface. surface may be nil.
func New(surface Surface, width, height int, opts ...Option) *Renderer {
	r := &Renderer{
		surface: surface,
		params:  DefaultParameters(),
		workers: runtime.GOMAXPROCS(0),
		texW:    max(width, 1),
		texH:    max(height, 1),
	}
	r.canvas = image.Pt(r.texW, r.texH)
	for _, opt := range opts {
		opt(r)
	}

	r.tex = make([]float32, r.texW*r.texH)
	r.target = image.NewRGBA(image.Rectangle{Max: r.canvas})
	r.rebuildRows()
	r.rebuildTone()
	r.lut = buildLUT(r.params.Gradient)
	r.dirty = true
	return r
}

// Parameters returns the parameters in effect.
func (r *Renderer) Parameters() Parameters {
	return r.params
}

// UpdateParameters merges u field by field. Only the lookup tables the
// change affects are rebuilt; the texture is never touched.
func (r *Renderer) UpdateParameters(u ParameterUpdate) {
	p, c := r.params.apply(u)
	r.params = p
	if c&changeRows != 0 {
		r.rebuildRows()
	}
	if c&changeTone != 0 {
		r.rebuildTone()
	}
	if c&changeGradient != 0 {
		r.lut = buildLUT(r.params.Gradient)
	}
	if c != 0 {
		r.dirty = true
	}
}

// UpdateSpectrogram uploads the columns written to buf since the previous
// call. forceClear first zeroes the texture and the canvas and then
// uploads every valid column. A change of buffer width reallocates the
// texture.
func (r *Renderer) UpdateSpectrogram(buf *store.RingBuffer, forceClear bool) error {
	if buf.Height() != r.texH {
		return fmt.Errorf("%w: buffer height %d, texture height %d", ErrShape, buf.Height(), r.texH)
	}
	if buf.Width() != r.texW {
		r.texW = buf.Width()
		r.tex = make([]float32, r.texW*r.texH)
		forceClear = true
	}

	var n int
	if forceClear {
		clear(r.tex)
		clear(r.target.Pix)
		r.stretch = nil
		r.cursor = 0
		r.dirty = true
		n = buf.Count()
	} else {
		delta := buf.Written() - r.lastWritten
		n = int(min(delta, uint64(buf.Count())))
	}

	depth := buf.Depth()
	for i := range n {
		slot := (buf.Cursor() - n + i + r.texW) % r.texW
		src := buf.Slot(slot)
		dst := r.tex[slot*r.texH : (slot+1)*r.texH]
		for b := range dst {
			dst[b] = src[b*depth]
		}
	}

	r.cursor = buf.Cursor()
	r.lastWritten = buf.Written()
	if n > 0 {
		r.dirty = true
	}
	return nil
}

// Render redraws the canvas if uploads, parameter changes or resizes
// happened since the last call, then presents it.
func (r *Renderer) Render() error {
	if r.dirty {
		if err := r.draw(); err != nil {
			return err
		}
		r.dirty = false
		r.draws++
		r.stretch = nil
	}
	if r.surface == nil {
		return nil
	}
	return r.surface.Present(r.presented())
}

// presented returns the target, stretched to the canvas size after a
// fast resize.
func (r *Renderer) presented() *image.RGBA {
	if r.target.Rect.Size() == r.canvas {
		return r.target
	}
	if r.stretch == nil || r.stretch.Rect.Size() != r.canvas {
		r.stretch = image.NewRGBA(image.Rectangle{Max: r.canvas})
		draw.ApproxBiLinear.Scale(r.stretch, r.stretch.Rect, r.target, r.target.Rect, draw.Src, nil)
	}
	return r.stretch
}

// ResizeCanvas reallocates the render target at w by h.
func (r *Renderer) ResizeCanvas(w, h int) {
	size := image.Pt(max(w, 1), max(h, 1))
	r.canvas = size
	if r.target.Rect.Size() == size {
		r.stretch = nil
		return
	}
	r.target = image.NewRGBA(image.Rectangle{Max: size})
	r.stretch = nil
	r.rebuildRows()
	r.dirty = true
}

// FastResizeCanvas changes the presented size without reallocating the
// target. The last frame is stretched to fit until ResizeCanvas runs.
func (r *Renderer) FastResizeCanvas(w, h int) {
	r.canvas = image.Pt(max(w, 1), max(h, 1))
}

// Frame returns the render target.
func (r *Renderer) Frame() *image.RGBA { return r.target }

// CanvasSize returns the presented size.
func (r *Renderer) CanvasSize() image.Point { return r.canvas }

// TextureSize returns the texture's columns and bins.
func (r *Renderer) TextureSize() (int, int) { return r.texW, r.texH }

// Draws counts redraws of the target.
func (r *Renderer) Draws() uint64 { return r.draws }

// RowFrequency returns the frequency at the centre of target row y.
func (r *Renderer) RowFrequency(y int) float64 {
	return r.params.RowFrequency(y, r.target.Rect.Dy())
}

func (r *Renderer) rebuildRows() {
	h := r.target.Rect.Dy()
	if cap(r.rowBins) < h {
		r.rowBins = make([]float64, h)
	}
	r.rowBins = r.rowBins[:h]
	for y := range h {
		b := r.params.FrequencyBin(r.params.RowFrequency(y, h))
		if b < 0 || b > float64(r.texH-1) {
			b = -1
		}
		r.rowBins[y] = b
	}
}

func (r *Renderer) rebuildTone() {
	for i := range r.tone {
		x := float64(i) / (toneSize - 1)
		y := Tone(x, r.params.Sensitivity, r.params.Contrast)
		r.tone[i] = uint8(math.Round(y * (lutSize - 1)))
	}
}

func (r *Renderer) draw() error {
	h := r.target.Rect.Dy()
	stripes := min(max(r.workers, 1), h)
	per := (h + stripes - 1) / stripes

	var g errgroup.Group
	for y0 := 0; y0 < h; y0 += per {
		y1 := min(y0+per, h)
		g.Go(func() error {
			r.drawRows(y0, y1)
			return nil
		})
	}
	return g.Wait()
}

func (r *Renderer) drawRows(y0, y1 int) {
	w := r.target.Rect.Dx()
	// A full scale sine under a Hann taper peaks at a quarter of the window.
	norm := float32(4) / float32(max(r.params.WindowSize, 1))

	for y := y0; y < y1; y++ {
		bin := r.rowBins[y]
		lo := int(bin)
		frac := float32(bin - float64(lo))
		interp := bin >= 0 && frac > 0 && lo+1 < r.texH

		row := r.target.Pix[y*r.target.Stride : y*r.target.Stride+w*4]
		for x := range w {
			var m float32
			if bin >= 0 {
				base := ((r.cursor + x*r.texW/w) % r.texW) * r.texH
				m = r.tex[base+lo]
				if interp {
					m += (r.tex[base+lo+1] - m) * frac
				}
			}

			v := m * norm
			var idx int
			switch {
			case v <= 0:
			case v >= 1:
				idx = toneSize - 1
			default:
				idx = int(v*(toneSize-1) + 0.5)
			}

			c := r.lut[r.tone[idx]]
			px := row[x*4 : x*4+4 : x*4+4]
			px[0], px[1], px[2], px[3] = c.R, c.G, c.B, c.A
		}
	}
}

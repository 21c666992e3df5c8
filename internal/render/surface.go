// SPDX-License-Identifier: MIT
package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"sync"
)

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(frame *image.RGBA) error

func (f SurfaceFunc) Present(frame *image.RGBA) error { return f(frame) }

// Multi presents every frame to each surface in turn and joins their
// errors.
type Multi []Surface

func (m Multi) Present(frame *image.RGBA) error {
	var errs []error
	for _, s := range m {
		if err := s.Present(frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Snapshot keeps a copy of the latest presented frame so it can be written
// out as a PNG. It is safe for concurrent use.
type Snapshot struct {
	mu    sync.Mutex
	frame *image.RGBA
	count uint64
}

var _ Surface = (*Snapshot)(nil)

func (s *Snapshot) Present(frame *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil || s.frame.Rect != frame.Rect {
		s.frame = image.NewRGBA(frame.Rect)
	}
	copy(s.frame.Pix, frame.Pix)
	s.count++
	return nil
}

// Frames returns the number of frames presented.
func (s *Snapshot) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Image returns a copy of the latest frame, or nil before the first one.
func (s *Snapshot) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil
	}
	out := image.NewRGBA(s.frame.Rect)
	copy(out.Pix, s.frame.Pix)
	return out
}

// WritePNG encodes the latest frame.
func (s *Snapshot) WritePNG(w io.Writer) error {
	img := s.Image()
	if img == nil {
		return errors.New("render: no frame presented yet")
	}
	return png.Encode(w, img)
}

// Save writes the latest frame to path as a PNG.
func (s *Snapshot) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.WritePNG(f)
}

// SPDX-License-Identifier: MIT
package store

import (
	"errors"
	"testing"
)

func col(v float32, n int) []float32 {
	c := make([]float32, n)
	for i := range c {
		c[i] = v
	}
	return c
}

// firsts returns the first value of every valid column, oldest first.
func firsts(r *RingBuffer) []float32 {
	var out []float32
	for _, c := range r.Columns() {
		out = append(out, c[0])
	}
	return out
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEnqueueOrderAndEviction(t *testing.T) {
	r := New(3, 4, 1)

	tests := []struct {
		value      float32
		wantCount  int
		wantCursor int
		wantOrder  []float32
	}{
		{1, 1, 1, []float32{1}},
		{2, 2, 2, []float32{1, 2}},
		{3, 3, 0, []float32{1, 2, 3}},
		{4, 3, 1, []float32{2, 3, 4}},
		{5, 3, 2, []float32{3, 4, 5}},
	}

	for _, tt := range tests {
		if err := r.Enqueue(col(tt.value, 4)); err != nil {
			t.Fatalf("Enqueue(%v) error = %v", tt.value, err)
		}
		if r.Count() != tt.wantCount || r.Cursor() != tt.wantCursor {
			t.Errorf("after %v: count=%d cursor=%d, want %d/%d", tt.value, r.Count(), r.Cursor(), tt.wantCount, tt.wantCursor)
		}
		if got := firsts(r); !equal(got, tt.wantOrder) {
			t.Errorf("after %v: order = %v, want %v", tt.value, got, tt.wantOrder)
		}
	}
	if r.Written() != 5 {
		t.Errorf("Written() = %d, want 5", r.Written())
	}
	if r.Latest()[0] != 5 {
		t.Errorf("Latest() = %v, want 5", r.Latest()[0])
	}
}

func TestEnqueueShapeMismatch(t *testing.T) {
	r := New(4, 8, 2)
	err := r.Enqueue(col(1, 16), col(2, 8))
	if !errors.Is(err, ErrShape) {
		t.Fatalf("Enqueue() error = %v, want ErrShape", err)
	}
	if r.Count() != 0 || r.Written() != 0 {
		t.Errorf("a rejected enqueue wrote %d columns", r.Count())
	}
}

func TestEnqueueCopies(t *testing.T) {
	r := New(2, 2, 1)
	c := col(1, 2)
	r.Enqueue(c)
	c[0] = 9
	if r.Column(0)[0] != 1 {
		t.Errorf("stored column aliases the caller's slice")
	}
}

func TestResizeWidth(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		fill       int
		newWidth   int
		wantOrder  []float32
		wantCursor int
	}{
		{"Shrink Keeps Newest", 5, 5, 3, []float32{3, 4, 5}, 0},
		{"Shrink After Wrap", 4, 6, 2, []float32{5, 6}, 0},
		{"Grow Keeps All", 3, 5, 6, []float32{3, 4, 5}, 3},
		{"Grow Partially Filled", 4, 2, 8, []float32{1, 2}, 2},
		{"Shrink Partially Filled", 8, 2, 4, []float32{1, 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.width, 1, 1)
			for i := 1; i <= tt.fill; i++ {
				r.Enqueue([]float32{float32(i)})
			}
			r.ResizeWidth(tt.newWidth)

			if r.Width() != tt.newWidth {
				t.Errorf("Width() = %d, want %d", r.Width(), tt.newWidth)
			}
			if got := firsts(r); !equal(got, tt.wantOrder) {
				t.Errorf("order = %v, want %v", got, tt.wantOrder)
			}
			if r.Cursor() != tt.wantCursor {
				t.Errorf("Cursor() = %d, want %d", r.Cursor(), tt.wantCursor)
			}

			// The next column lands after the newest kept one.
			r.Enqueue([]float32{100})
			if got := r.Latest()[0]; got != 100 {
				t.Errorf("Latest() after resize = %v, want 100", got)
			}
		})
	}
}

func TestClear(t *testing.T) {
	r := New(3, 1, 1)
	r.Enqueue([]float32{1}, []float32{2})
	r.Clear()

	if r.Count() != 0 || r.Cursor() != 0 {
		t.Errorf("Clear() left count=%d cursor=%d", r.Count(), r.Cursor())
	}
	if r.Columns() == nil || len(r.Columns()) != 0 {
		t.Errorf("Columns() after Clear = %v", r.Columns())
	}
	if r.Latest() != nil {
		t.Errorf("Latest() after Clear = %v, want nil", r.Latest())
	}
	if r.Written() != 2 {
		t.Errorf("Clear() must not rewind Written(), got %d", r.Written())
	}
}

func TestNewClampsDimensions(t *testing.T) {
	r := New(0, -1, 0)
	if r.Width() != 1 || r.Height() != 1 || r.Depth() != 1 {
		t.Errorf("New(0,-1,0) = %dx%dx%d, want 1x1x1", r.Width(), r.Height(), r.Depth())
	}
}

func TestEnqueueZeroAllocs(t *testing.T) {
	r := New(64, 2048, 1)
	c := col(1, 2048)
	allocs := testing.AllocsPerRun(100, func() {
		_ = r.Enqueue(c)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Enqueue, got %.1f", allocs)
	}
}

func BenchmarkEnqueue(b *testing.B) {
	r := New(512, 2048, 1)
	c := col(1, 2048)
	b.ReportAllocs()
	for b.Loop() {
		_ = r.Enqueue(c)
	}
}

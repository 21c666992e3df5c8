// SPDX-License-Identifier: MIT
/*
Package store keeps the scrolling history of spectrum columns.

RingBuffer is a fixed number of column slots written in a circle. Once every
slot is used, each new column overwrites the oldest. The slot layout is
exposed (Slot, Cursor) so a renderer can mirror it in a texture and upload
only what changed since it last looked (Written).

A RingBuffer belongs to one goroutine.
*/
package store

import (
	"errors"
	"fmt"
)

// ErrShape is returned when a column does not match height*depth.
var ErrShape = errors.New("store: column shape mismatch")

// RingBuffer holds up to width columns of height*depth float32 values.
type RingBuffer struct {
	width  int
	height int
	depth  int
	stride int

	data    []float32
	cursor  int // next slot to write
	count   int // valid slots, <= width
	written uint64
}

// New allocates a RingBuffer. Dimensions below one are raised to one.
func New(width, height, depth int) *RingBuffer {
	width, height, depth = max(width, 1), max(height, 1), max(depth, 1)
	return &RingBuffer{
		width:  width,
		height: height,
		depth:  depth,
		stride: height * depth,
		data:   make([]float32, width*height*depth),
	}
}

// Enqueue writes columns oldest first at the cursor. If any column has the
// wrong length nothing is written.
func (r *RingBuffer) Enqueue(columns ...[]float32) error {
	for i, col := range columns {
		if len(col) != r.stride {
			return fmt.Errorf("%w: column %d has %d values, want %d", ErrShape, i, len(col), r.stride)
		}
	}
	for _, col := range columns {
		copy(r.Slot(r.cursor), col)
		r.cursor = (r.cursor + 1) % r.width
		r.count = min(r.count+1, r.width)
		r.written++
	}
	return nil
}

// ResizeWidth changes the number of slots. The newest min(Count(), w)
// columns are kept in temporal order and the cursor moves to the first free
// slot.
func (r *RingBuffer) ResizeWidth(w int) {
	w = max(w, 1)
	if w == r.width {
		return
	}
	cols := r.Columns()
	keep := min(len(cols), w)
	data := make([]float32, w*r.stride)
	for i, src := range cols[len(cols)-keep:] {
		copy(data[i*r.stride:(i+1)*r.stride], src)
	}
	r.data = data
	r.width = w
	r.count = keep
	r.cursor = keep % w
}

// Clear forgets every column. Slot contents are left as they are.
func (r *RingBuffer) Clear() {
	r.cursor = 0
	r.count = 0
}

// Column returns the i-th valid column, 0 being the oldest. The slice
// aliases the buffer.
func (r *RingBuffer) Column(i int) []float32 {
	if i < 0 || i >= r.count {
		return nil
	}
	return r.Slot((r.cursor - r.count + i + r.width) % r.width)
}

// Columns returns every valid column, oldest first.
func (r *RingBuffer) Columns() [][]float32 {
	out := make([][]float32, r.count)
	for i := range out {
		out[i] = r.Column(i)
	}
	return out
}

// Latest returns the newest column, or nil when empty.
func (r *RingBuffer) Latest() []float32 {
	return r.Column(r.count - 1)
}

// Slot returns the storage of slot i regardless of whether it holds a
// valid column.
func (r *RingBuffer) Slot(i int) []float32 {
	return r.data[i*r.stride : (i+1)*r.stride : (i+1)*r.stride]
}

// Written counts every column ever enqueued.
func (r *RingBuffer) Written() uint64 { return r.written }

func (r *RingBuffer) Cursor() int { return r.cursor }
func (r *RingBuffer) Count() int  { return r.count }
func (r *RingBuffer) Width() int  { return r.width }
func (r *RingBuffer) Height() int { return r.height }
func (r *RingBuffer) Depth() int  { return r.depth }

// SPDX-License-Identifier: MIT
package pitch

import (
	"sync"
	"time"

	"spectro/internal/log"
	"spectro/internal/segment"
)

// Window is an analysis window tagged with the session it belongs to.
type Window struct {
	Session uint64
	segment.AudioWindow
}

// Estimate is the detector's verdict for one window.
type Estimate struct {
	Session     uint64
	StartOffset int64
	Hz          float64
	OK          bool
	Duration    time.Duration
}

// Tracker runs a Detector on its own goroutine. Both its input and output
// hold a single value and a newer value replaces an unread one, so a slow
// detector or a slow reader only ever skips windows.
type Tracker struct {
	opts Options
	log  log.Logger

	in  chan Window
	out chan Estimate

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewTracker starts a tracker.
func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		opts: opts,
		log:  log.For("Pitch"),
		in:   make(chan Window, 1),
		out:  make(chan Estimate, 1),
		done: make(chan struct{}),
	}
	go t.run()
	return t
}

// Submit queues w, replacing any window the tracker has not picked up yet.
// It never blocks and is a no-op after Close.
func (t *Tracker) Submit(w Window) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	replace(t.in, w)
}

// Estimates delivers the latest estimate.
func (t *Tracker) Estimates() <-chan Estimate { return t.out }

// Close stops the goroutine and waits for it.
func (t *Tracker) Close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.in)
	}
	t.mu.Unlock()
	<-t.done
}

func (t *Tracker) run() {
	defer close(t.done)

	var d *Detector
	for w := range t.in {
		if d == nil || d.SampleRate() != w.SampleRate {
			d = NewDetector(w.SampleRate, t.opts)
			t.log.Debugf("detector at %.0f Hz", w.SampleRate)
		}

		begin := time.Now()
		hz, ok := d.Detect(w.Samples)
		replace(t.out, Estimate{
			Session:     w.Session,
			StartOffset: w.StartOffset,
			Hz:          hz,
			OK:          ok,
			Duration:    time.Since(begin),
		})
	}
}

// replace puts v into a one-slot channel, dropping a stale value first.
// Each channel has a single sender.
func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// SPDX-License-Identifier: MIT
package spectral

import (
	"errors"
	"sync"
	"time"

	"spectro/internal/log"
)

var (
	// ErrBusy is returned by Submit while a request occupies the slot.
	ErrBusy = errors.New("spectral: worker busy")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("spectral: worker closed")
)

var logger = log.For("Spectral")

// beforeProcess runs on the worker goroutine ahead of each request. Tests
// replace it to hold the worker busy.
var beforeProcess = func(Request) {}

// Request asks the worker to transform Buffer[Start:Start+Length].
// Submitting a request hands Buffer to the worker; the sender must not read
// or write it until the matching Result returns it.
type Request struct {
	ID      uint64
	Session uint64
	Buffer  []float32
	Start   int
	Length  int
	Options Options
}

// Result answers the Request with the same ID. Buffer is the request's
// buffer, returned to the caller. Err is set instead of Columns when the
// region was malformed.
type Result struct {
	ID       uint64
	Session  uint64
	Buffer   []float32
	Columns  [][]float32
	Carry    []float32
	Duration time.Duration
	Err      error
}

// Worker transforms one request at a time on its own goroutine.
type Worker struct {
	mu      sync.Mutex
	busy    bool
	closed  bool
	mailbox chan Request
	results chan Result
	done    chan struct{}

	transformer *Transformer
}

// NewWorker starts the worker goroutine.
func NewWorker() *Worker {
	w := &Worker{
		mailbox: make(chan Request, 1),
		results: make(chan Result, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit hands req to the worker. It never blocks.
func (w *Worker) Submit(req Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.busy {
		return ErrBusy
	}
	w.busy = true
	w.mailbox <- req
	return nil
}

// Results delivers one Result per accepted Request.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Busy reports whether a request is being processed.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

// Close stops accepting requests. A request already running finishes and
// its result is still delivered; Done closes once the goroutine exits.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.mailbox)
	}
	return nil
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for req := range w.mailbox {
		res := w.process(req)

		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()

		w.results <- res
	}
}

func (w *Worker) process(req Request) Result {
	beforeProcess(req)
	started := time.Now()
	res := Result{ID: req.ID, Session: req.Session, Buffer: req.Buffer}

	opts := req.Options
	if w.transformer == nil || w.transformer.Size() != opts.WindowSize || w.transformer.Window() != opts.Window {
		t, err := NewTransformer(opts.WindowSize, opts.Window)
		if err != nil {
			res.Err = err
			return res
		}
		w.transformer = t
	}

	out, err := w.transformer.Transform(req.Buffer, req.Start, req.Length, opts)
	res.Duration = time.Since(started)
	if err != nil {
		logger.Errorf("request %d: %v", req.ID, err)
		res.Err = err
		return res
	}
	res.Columns = out.Columns
	res.Carry = out.Carry
	return res
}

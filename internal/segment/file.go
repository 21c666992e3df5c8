// SPDX-License-Identifier: MIT
package segment

import (
	"fmt"
	"time"

	"spectro/pkg/bitint"
)

// Request names a region of a FilePoller's buffer to transform. Start and
// Length follow the transform contract: a start request covers whole
// windows from Start, a continuation looks back Overlap() samples before
// Start and Length is a multiple of the step size.
type Request struct {
	Start   int
	Length  int
	IsStart bool
}

// Windows returns the number of windows the request yields.
func (r Request) Windows(opts Options) int {
	if r.IsStart {
		return (r.Length-opts.WindowSize)/opts.StepSize + 1
	}
	return r.Length / opts.StepSize
}

// FilePoller paces a fully decoded track against the wall clock. Each poll
// asks for the windows that playback has reached since the previous
// request, rounded up to whole windows so the picture stays slightly ahead
// of the audio.
type FilePoller struct {
	opts       Options
	samples    []float32
	sampleRate float64
	started    time.Time
	duration   time.Duration

	// cursor is the first sample not yet covered by a request.
	cursor int
}

// NewFilePoller returns a poller whose playback clock starts at start.
func NewFilePoller(samples []float32, sampleRate float64, opts Options, start time.Time) (*FilePoller, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrSampleRate, sampleRate)
	}
	return &FilePoller{
		opts:       opts,
		samples:    samples,
		sampleRate: sampleRate,
		started:    start,
		duration:   time.Duration(float64(len(samples)) / sampleRate * float64(time.Second)),
	}, nil
}

// Samples returns the track buffer the requests refer to.
func (p *FilePoller) Samples() []float32 { return p.samples }

// SampleRate returns the track's sample rate.
func (p *FilePoller) SampleRate() float64 { return p.sampleRate }

// Duration returns the playback length of the track.
func (p *FilePoller) Duration() time.Duration { return p.duration }

// Interval is the polling period: half a step of audio.
func (p *FilePoller) Interval() time.Duration {
	return time.Duration(float64(p.opts.StepSize) / p.sampleRate / 2 * float64(time.Second))
}

// Elapsed returns the playback position at now.
func (p *FilePoller) Elapsed(now time.Time) time.Duration {
	return now.Sub(p.started)
}

// Done reports whether playback has passed the end of the track.
func (p *FilePoller) Done(now time.Time) bool {
	return p.Elapsed(now) >= p.duration
}

// Exhausted reports whether no further window fits in the track.
func (p *FilePoller) Exhausted() bool {
	if p.cursor == 0 {
		return len(p.samples) < p.opts.WindowSize
	}
	return len(p.samples)-p.cursor < p.opts.StepSize
}

// Poll returns the next request due at now, or false when playback has not
// reached a new window yet or the track is exhausted.
func (p *FilePoller) Poll(now time.Time) (Request, bool) {
	W, S := p.opts.WindowSize, p.opts.StepSize
	overlap := p.opts.Overlap()
	reached := int(p.Elapsed(now).Seconds() * p.sampleRate)

	first := p.cursor == 0
	windowStart := p.cursor
	if !first {
		windowStart -= overlap
	}
	ahead := reached - windowStart
	if ahead <= 0 {
		return Request{}, false
	}

	total := bitint.RoundUp(ahead, W)
	length := total
	if !first {
		length -= overlap
	}

	remaining := len(p.samples) - p.cursor
	length = min(length, remaining)
	if first {
		if length < W {
			return Request{}, false
		}
		length = W + (length-W)/S*S
	} else {
		length = length / S * S
		if length <= 0 {
			return Request{}, false
		}
	}

	req := Request{Start: p.cursor, Length: length, IsStart: first}
	p.cursor += length
	return req, true
}

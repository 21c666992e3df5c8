// SPDX-License-Identifier: MIT
/*
Package audio captures the microphone with PortAudio.

The Engine hands mono float chunks to a channel. The PortAudio callback
never blocks and never allocates: it mixes each buffer down into one of a
small ring of preallocated slices, applies the noise gate and offers it to
a pump goroutine. A chunk that finds the pump backed up is dropped and
counted. The pump optionally records the session to WAV and forwards the
chunk to the consumer. A slice stays valid until the consumer asks for the
next chunk.
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"spectro/internal/config"
	"spectro/internal/log"
	"spectro/internal/segment"
)

// ringSlots is the number of capture buffers in rotation. Up to
// ringSlots-3 wait for the pump, one sits in the pump and one with the
// consumer.
const ringSlots = 16

// ErrCapturing is returned by Start while a capture is running.
var ErrCapturing = errors.New("audio: already capturing")

type stream interface {
	Start() error
	Stop() error
	Close() error
}

var openStream = func(p portaudio.StreamParameters, cb func(in []float32)) (stream, error) {
	s, err := portaudio.OpenStream(p, cb)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Engine captures one input device.
type Engine struct {
	audio     config.AudioConfig
	recording config.RecordingConfig
	log       log.Logger

	mu     sync.Mutex
	stream stream
	rec    *Recorder
	quit   chan struct{}
	pumped sync.WaitGroup
	last   string

	// Callback state, fixed while a stream is open.
	ring      [ringSlots][]float32
	next      int
	raw       chan []float32
	channels  int
	threshold float32

	dropped atomic.Int64
	level   atomic.Uint32
}

// NewEngine returns an idle engine. Nothing is opened until Start.
func NewEngine(a config.AudioConfig, r config.RecordingConfig) *Engine {
	return &Engine{audio: a, recording: r, log: log.For("Audio")}
}

// Start opens the device and starts streaming. The returned channel is
// closed after Stop.
func (e *Engine) Start() (<-chan segment.Chunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream != nil {
		return nil, ErrCapturing
	}

	if err := Initialize(); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			if err := Terminate(); err != nil {
				e.log.Warnf("%v", err)
			}
		}
	}()

	device, err := InputDevice(e.audio.InputDevice)
	if err != nil {
		return nil, err
	}
	channels := max(1, min(e.audio.InputChannels, device.MaxInputChannels))
	latency := device.DefaultHighInputLatency
	if e.audio.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	frames := e.audio.FramesPerBuffer
	for i := range e.ring {
		e.ring[i] = make([]float32, frames)
	}
	e.next = 0
	e.channels = channels
	e.threshold = float32(e.audio.GateThreshold)
	e.raw = make(chan []float32, ringSlots-3)

	var rec *Recorder
	if e.recording.Enabled {
		if err := os.MkdirAll(e.recording.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("recording directory: %w", err)
		}
		rec, err = NewRecorder(recordingPath(e.recording.OutputDir, time.Now()), int(e.audio.SampleRate), e.recording.BitDepth)
		if err != nil {
			return nil, fmt.Errorf("starting recording: %w", err)
		}
	}
	discard := func() {
		if rec != nil {
			rec.Close()
			os.Remove(rec.Path())
		}
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		FramesPerBuffer: frames,
		SampleRate:      e.audio.SampleRate,
	}
	s, err := openStream(params, e.process)
	if err != nil {
		discard()
		return nil, fmt.Errorf("opening %s: %w", device.Name, err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		discard()
		return nil, fmt.Errorf("starting %s: %w", device.Name, err)
	}

	out := make(chan segment.Chunk)
	e.stream, e.rec = s, rec
	e.quit = make(chan struct{})
	e.pumped.Add(1)
	go e.pump(e.raw, out, e.quit, rec, e.audio.SampleRate)

	ok = true
	e.log.Infof("capturing from %s at %.0f Hz, %d channel(s)", device.Name, e.audio.SampleRate, channels)
	if rec != nil {
		e.log.Infof("recording to %s", rec.Path())
	}
	return out, nil
}

// Stop ends the capture, closes the chunk channel and finalises the
// recording. Stopping an idle engine does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stream == nil {
		return nil
	}

	errs := []error{e.stream.Stop(), e.stream.Close()}
	close(e.quit)
	e.pumped.Wait()

	if e.rec != nil {
		if err := e.rec.Close(); err != nil {
			errs = append(errs, err)
		} else {
			e.last = e.rec.Path()
			e.log.Infof("saved %s (%d samples)", e.last, e.rec.Frames())
		}
	}
	errs = append(errs, Terminate())

	if n := e.dropped.Load(); n > 0 {
		e.log.Warnf("dropped %d chunks while the consumer was busy", n)
	}
	e.stream, e.rec = nil, nil
	return errors.Join(errs...)
}

// Close is Stop, for use with defer.
func (e *Engine) Close() error { return e.Stop() }

// Dropped counts chunks discarded because the consumer fell behind.
func (e *Engine) Dropped() int64 { return e.dropped.Load() }

// Level is the peak of the most recent chunk before gating.
func (e *Engine) Level() float32 { return math.Float32frombits(e.level.Load()) }

// LastRecording is the file written by the most recent capture, if any.
func (e *Engine) LastRecording() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// process is the PortAudio callback.
func (e *Engine) process(in []float32) {
	frames := min(len(in)/e.channels, len(e.ring[e.next]))
	buf := e.ring[e.next][:frames]
	mix(buf, in[:frames*e.channels], e.channels)
	e.level.Store(math.Float32bits(peak(buf)))
	gate(buf, e.threshold)

	select {
	case e.raw <- buf:
		e.next = (e.next + 1) % ringSlots
	default:
		e.dropped.Add(1)
	}
}

func (e *Engine) pump(raw <-chan []float32, out chan<- segment.Chunk, quit <-chan struct{}, rec *Recorder, rate float64) {
	defer e.pumped.Done()
	defer close(out)
	for {
		select {
		case <-quit:
			return
		case buf := <-raw:
			if rec != nil {
				if err := rec.Write(buf); err != nil {
					e.log.Errorf("%v, recording stopped", err)
					rec = nil
				}
			}
			select {
			case out <- segment.Chunk{Samples: buf, SampleRate: rate}:
			case <-quit:
				return
			}
		}
	}
}

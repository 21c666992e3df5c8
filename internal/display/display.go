// SPDX-License-Identifier: MIT
/*
Package display runs the interactive side of the spectrogram.

A Display owns the segmenter, the scrolling store, the renderer, the pitch
label and the session handle. Its Run loop is the only goroutine that
touches them; everything else reaches it through channels:

	capture chunks   -+
	file poll ticks  -+
	worker results   -+
	pitch estimates  -+-> Run -> RingBuffer -> Renderer -> Surface
	frame ticks      -+
	resize debounce  -+
	Controls         -+

Exactly one transform request is in flight at a time. Every source start,
Stop and Clear begins a new session, and results tagged with an older
session are dropped. A request that outlives the transform timeout is
abandoned together with the worker running it.
*/
package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync/atomic"
	"time"

	"spectro/internal/config"
	"spectro/internal/decode"
	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/pitch"
	"spectro/internal/render"
	"spectro/internal/segment"
	"spectro/internal/spectral"
	"spectro/internal/store"
)

// Microphone is a live capture source.
type Microphone interface {
	// Start opens the device. Chunks arrive on the channel until Stop; the
	// channel is closed when capture ends on its own.
	Start() (<-chan segment.Chunk, error)
	Stop() error
}

// ColumnSink receives every new spectrum column, oldest first. The slice
// is only valid during the call.
type ColumnSink interface {
	Send(column []float32) error
}

// worker is the transform executor.
type worker interface {
	Submit(spectral.Request) error
	Results() <-chan spectral.Result
	Close() error
}

// newWorker is replaced by tests.
var newWorker = func() worker { return spectral.NewWorker() }

// Options configures a Display.
type Options struct {
	Segment segment.Options
	Window  spectral.WindowFunc

	// HistoryWidth is the number of stored columns. Zero follows the
	// canvas width, including across resizes.
	HistoryWidth int

	Width, Height    int
	FrameRate        int
	RenderWorkers    int
	TransformTimeout time.Duration
	ResizeDebounce   time.Duration
	Parameters       render.Parameters

	PitchEnabled bool
	Pitch        pitch.Options
}

// OptionsFromConfig maps the configuration file onto display options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	win, err := spectral.ParseWindowFunc(cfg.Spectrogram.WindowFunction)
	if err != nil {
		return Options{}, err
	}
	scale, err := render.ParseScale(cfg.Render.Scale)
	if err != nil {
		return Options{}, err
	}
	gradient, err := render.Preset(cfg.Render.Gradient)
	if err != nil {
		return Options{}, err
	}

	params := render.DefaultParameters()
	params.WindowSize = cfg.Spectrogram.WindowSize
	params.Sensitivity = cfg.Render.Sensitivity
	params.Contrast = cfg.Render.Contrast
	params.Zoom = cfg.Render.Zoom
	params.MinFrequencyHz = cfg.Render.MinFrequency
	params.MaxFrequencyHz = cfg.Render.MaxFrequency
	params.Scale = scale
	params.Gradient = gradient

	return Options{
		Segment: segment.Options{
			WindowSize:      cfg.Spectrogram.WindowSize,
			StepSize:        cfg.Spectrogram.StepSize,
			MaxBatchWindows: cfg.Spectrogram.MaxBatchWindows,
		},
		Window:           win,
		HistoryWidth:     cfg.Spectrogram.HistoryWidth,
		Width:            cfg.Render.Width,
		Height:           cfg.Render.Height,
		FrameRate:        cfg.Render.FrameRate,
		RenderWorkers:    cfg.Render.Workers,
		TransformTimeout: cfg.Spectrogram.TransformTimeout,
		ResizeDebounce:   cfg.Render.ResizeDebounce,
		Parameters:       params,
		PitchEnabled:     cfg.Pitch.Enabled,
		Pitch: pitch.Options{
			MinFrequency: cfg.Pitch.MinFrequency,
			MaxFrequency: cfg.Pitch.MaxFrequency,
			Threshold:    cfg.Pitch.Threshold,
			SilenceRMS:   cfg.Pitch.SilenceRMS,
		},
	}, nil
}

// Option attaches collaborators to a Display.
type Option func(*Display)

// WithSurface sets where frames are presented.
func WithSurface(s render.Surface) Option { return func(d *Display) { d.surface = s } }

// WithMicrophone sets the capture source used by StartMicrophone.
func WithMicrophone(m Microphone) Option { return func(d *Display) { d.mic = m } }

// WithStatusSink receives state and pitch changes.
func WithStatusSink(s StatusSink) Option { return func(d *Display) { d.status = s } }

// WithColumnSink receives each column a transform produces.
func WithColumnSink(s ColumnSink) Option { return func(d *Display) { d.columns = s } }

// WithMetrics records into m instead of the default instruments.
func WithMetrics(m *observe.Metrics) Option { return func(d *Display) { d.metrics = m } }

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceMic
	sourceFile
)

type request struct {
	id      uint64
	session uint64
}

// Display is a live spectrogram view and its controls.
type Display struct {
	opts    Options
	log     log.Logger
	metrics *observe.Metrics
	ctx     context.Context

	surface render.Surface
	mic     Microphone
	status  StatusSink
	columns ColumnSink

	cmds    chan command
	done    chan struct{}
	running atomic.Bool

	// Everything below belongs to the Run goroutine.
	seg      *segment.Segmenter
	ring     *store.RingBuffer
	renderer *render.Renderer
	worker   worker
	tracker  *pitch.Tracker
	label    pitch.Label

	state      PlayState
	source     sourceKind
	sourceName string
	started    time.Time
	duration   time.Duration
	session    uint64
	sampleRate float64

	nextID   uint64
	inflight *request
	deferred *segment.Batch
	dropped  int64

	micCh      <-chan segment.Chunk
	poller     *segment.FilePoller
	pollTicker *time.Ticker
	pollC      <-chan time.Time

	timeout  *time.Timer
	timeoutC <-chan time.Time

	resize      *time.Timer
	resizeC     <-chan time.Time
	pendingSize image.Point
}

// New builds a Display. Its Controls are usable immediately; commands are
// applied once Run starts.
func New(opts Options, options ...Option) (*Display, error) {
	seg, err := segment.New(opts.Segment)
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	if opts.FrameRate <= 0 {
		opts.FrameRate = config.DefaultFrameRate
	}
	if opts.TransformTimeout <= 0 {
		opts.TransformTimeout = config.DefaultTransformTimeout
	}
	if opts.ResizeDebounce <= 0 {
		opts.ResizeDebounce = config.DefaultResizeDebounce
	}
	opts.Width, opts.Height = max(opts.Width, 1), max(opts.Height, 1)

	history := opts.HistoryWidth
	if history <= 0 {
		history = opts.Width
	}
	bins := opts.Segment.WindowSize / 2
	params := opts.Parameters
	params.WindowSize = opts.Segment.WindowSize

	d := &Display{
		opts: opts,
		log:  log.For("Display"),
		ctx:  context.Background(),
		cmds: make(chan command, 64),
		done: make(chan struct{}),
		seg:  seg,
		ring: store.New(history, bins, 1),
	}
	for _, o := range options {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	d.renderer = render.New(d.surface, history, bins,
		render.WithParameters(params),
		render.WithCanvasSize(opts.Width, opts.Height),
		render.WithWorkers(opts.RenderWorkers),
	)
	return d, nil
}

// Controls returns the command surface.
func (d *Display) Controls() *Controls { return &Controls{d: d} }

// Done is closed when Run has returned.
func (d *Display) Done() <-chan struct{} { return d.done }

// Run is the display loop. It returns when ctx is cancelled, after
// releasing the source and the background goroutines.
func (d *Display) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("display: already running")
	}
	defer close(d.done)

	d.ctx = ctx
	d.worker = newWorker()
	if d.opts.PitchEnabled {
		d.tracker = pitch.NewTracker(d.opts.Pitch)
	}
	defer d.teardown()

	frames := time.NewTicker(time.Second / time.Duration(d.opts.FrameRate))
	defer frames.Stop()

	d.log.Debugf("running at %d fps, %d columns of %d bins", d.opts.FrameRate, d.ring.Width(), d.ring.Height())
	d.publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-d.cmds:
			d.handle(cmd)
		case c, ok := <-d.micCh:
			if !ok {
				d.log.Warnf("capture ended")
				d.micCh = nil
				d.detach()
				d.newSession()
				d.setState(Stopped)
				continue
			}
			d.onChunk(c)
		case <-d.pollC:
			d.poll(time.Now())
		case res := <-d.worker.Results():
			d.onResult(res)
		case est := <-d.estimates():
			d.onPitch(est)
		case <-d.timeoutC:
			d.onTimeout()
		case <-d.resizeC:
			d.onResized()
		case <-frames.C:
			d.frame()
		}
	}
}

func (d *Display) teardown() {
	d.detach()
	d.disarmTimeout()
	if d.resize != nil {
		d.resize.Stop()
	}
	if err := d.worker.Close(); err != nil {
		d.log.Warnf("closing worker: %v", err)
	}
	if d.tracker != nil {
		d.tracker.Close()
	}
	d.log.Debugf("stopped")
}

func (d *Display) estimates() <-chan pitch.Estimate {
	if d.tracker == nil {
		return nil
	}
	return d.tracker.Estimates()
}

func (d *Display) handle(cmd command) {
	var err error
	switch cmd.kind {
	case cmdStartMic:
		err = d.startMic()
	case cmdStartTrack:
		err = d.startTrack(cmd.track)
	case cmdStop:
		d.detach()
		d.newSession()
		d.setState(d.state.afterStop())
	case cmdClear:
		d.detach()
		d.newSession()
		d.clearContent()
		d.setState(Stopped)
	case cmdResize:
		d.resizeTo(cmd.w, cmd.h)
	case cmdParameters:
		d.renderer.UpdateParameters(cmd.update)
	case cmdRun:
		cmd.fn()
	}
	if cmd.reply != nil {
		cmd.reply <- err
	}
}

func (d *Display) startMic() error {
	if d.mic == nil {
		return ErrNoMicrophone
	}
	if d.state.Capturing() {
		return nil
	}

	// The current source keeps running until the device is open.
	prev := d.state
	resume := prev.resumes()
	d.setState(LoadingMic)

	ch, err := d.mic.Start()
	if err != nil {
		d.setState(prev)
		return fmt.Errorf("display: start microphone: %w", err)
	}

	d.detach()
	d.newSession()
	if !resume {
		d.clearContent()
	}
	d.micCh = ch
	d.source = sourceMic
	d.sourceName = "microphone"
	d.started = time.Now()
	d.duration = 0
	d.metrics.RecordSession(d.ctx, "mic")

	if resume {
		d.setState(PlayingMicAgain)
	} else {
		d.setState(PlayingMic)
	}
	d.log.Infof("capturing from microphone (session %d)", d.session)
	return nil
}

func (d *Display) startTrack(t *decode.Track) error {
	if t == nil || len(t.Samples) == 0 {
		return errors.New("display: empty track")
	}
	now := time.Now()
	poller, err := segment.NewFilePoller(t.Samples, t.SampleRate, d.seg.Options(), now)
	if err != nil {
		return fmt.Errorf("display: start %s: %w", t.Name, err)
	}

	d.setState(LoadingFile)
	d.detach()
	d.newSession()
	d.clearContent()

	d.renderer.UpdateParameters(render.ParameterUpdate{SampleRate: render.Ptr(t.SampleRate)})
	d.poller = poller
	d.pollTicker = time.NewTicker(max(poller.Interval(), time.Millisecond))
	d.pollC = d.pollTicker.C
	d.source = sourceFile
	d.sourceName = t.Name
	d.started = now
	d.duration = poller.Duration()
	d.metrics.RecordSession(d.ctx, "file")

	d.setState(PlayingFile)
	d.log.Infof("playing %s, %v at %.0f Hz (session %d)", t.Name, d.duration.Round(time.Millisecond), t.SampleRate, d.session)
	return nil
}

// detach releases the current source without touching the picture.
func (d *Display) detach() {
	if d.source == sourceMic && d.mic != nil {
		if err := d.mic.Stop(); err != nil {
			d.log.Warnf("stopping microphone: %v", err)
		}
	}
	if d.pollTicker != nil {
		d.pollTicker.Stop()
	}
	d.micCh = nil
	d.pollTicker, d.pollC, d.poller = nil, nil, nil
	d.source = sourceNone
}

// newSession retires everything in flight. A request still running keeps
// the worker busy until its result or its timeout arrives.
func (d *Display) newSession() {
	d.session++
	d.seg.Reset()
	d.deferred = nil
	d.sampleRate = 0
}

func (d *Display) clearContent() {
	d.ring.Clear()
	d.upload(true)
	d.label.Reset()
	d.publish()
}

func (d *Display) onChunk(c segment.Chunk) {
	if c.SampleRate <= 0 {
		d.log.Warnf("dropping chunk with sample rate %v", c.SampleRate)
		return
	}
	if c.SampleRate != d.sampleRate {
		if d.sampleRate != 0 {
			d.log.Infof("sample rate %.0f -> %.0f Hz, new session", d.sampleRate, c.SampleRate)
			d.newSession()
		}
		d.sampleRate = c.SampleRate
		d.renderer.UpdateParameters(render.ParameterUpdate{SampleRate: render.Ptr(c.SampleRate)})
	}

	b, err := d.seg.Append(c.Samples, c.SampleRate)
	if err != nil {
		d.log.Warnf("dropping chunk: %v", err)
		return
	}
	d.dispatch(b)
}

// dispatch taps the batch for pitch and submits it, or holds it while the
// worker finishes a request from an earlier session.
func (d *Display) dispatch(b *segment.Batch) {
	if n := d.seg.Dropped(); n > d.dropped {
		d.metrics.DroppedWindows.Add(d.ctx, n-d.dropped)
		d.dropped = n
	}
	if b == nil {
		return
	}
	d.tapPitch(b.Last())
	if d.inflight != nil {
		d.deferred = b
		return
	}
	start, length := b.TransformRange()
	d.submit(b.Samples, start, length, b.IsStart, b.SampleRate)
}

func (d *Display) flushDeferred() {
	b := d.deferred
	if b == nil || d.inflight != nil {
		return
	}
	d.deferred = nil
	start, length := b.TransformRange()
	d.submit(b.Samples, start, length, b.IsStart, b.SampleRate)
}

func (d *Display) submit(buf []float32, start, length int, isStart bool, sampleRate float64) {
	d.nextID++
	req := spectral.Request{
		ID:      d.nextID,
		Session: d.session,
		Buffer:  buf,
		Start:   start,
		Length:  length,
		Options: spectral.Options{
			WindowSize: d.opts.Segment.WindowSize,
			StepSize:   d.opts.Segment.StepSize,
			SampleRate: sampleRate,
			IsStart:    isStart,
			Window:     d.opts.Window,
		},
	}
	if err := d.worker.Submit(req); err != nil {
		d.log.Errorf("submit request %d: %v", req.ID, err)
		d.seg.Abandon()
		return
	}
	d.inflight = &request{id: req.ID, session: req.Session}
	d.armTimeout()
}

func (d *Display) onResult(res spectral.Result) {
	if d.inflight == nil || res.ID != d.inflight.id {
		d.log.Debugf("discarding result %d", res.ID)
		d.metrics.RecordStale(d.ctx, "transform")
		return
	}
	current := d.inflight.session == d.session
	d.inflight = nil
	d.disarmTimeout()

	switch {
	case !current:
		d.log.Debugf("discarding result %d of session %d", res.ID, res.Session)
		d.metrics.RecordStale(d.ctx, "transform")
	case res.Err != nil:
		d.log.Errorf("transform %d: %v", res.ID, res.Err)
		d.metrics.RecordTransformError(d.ctx, "error")
		d.seg.Abandon()
	default:
		if err := d.ring.Enqueue(res.Columns...); err != nil {
			d.log.Fatalf("%v", err)
			return
		}
		d.metrics.RecordTransform(d.ctx, res.Duration, len(res.Columns))
		if d.columns != nil {
			for _, col := range res.Columns {
				if err := d.columns.Send(col); err != nil {
					d.log.Debugf("column sink: %v", err)
					break
				}
			}
		}
		if d.source == sourceMic {
			d.dispatch(d.seg.Resolve(res.Carry))
		}
	}
	d.flushDeferred()
}

// onTimeout abandons the request in flight. The worker may be wedged on
// it, so it is retired and replaced; its late result is never read.
func (d *Display) onTimeout() {
	d.timeoutC = nil
	if d.inflight == nil {
		return
	}
	d.log.Warnf("request %d timed out after %v, restarting worker", d.inflight.id, d.opts.TransformTimeout)
	d.metrics.RecordTransformError(d.ctx, "timeout")

	if err := d.worker.Close(); err != nil {
		d.log.Warnf("closing worker: %v", err)
	}
	d.worker = newWorker()

	if d.inflight.session == d.session {
		d.seg.Abandon()
	}
	d.inflight = nil
	d.flushDeferred()
}

func (d *Display) armTimeout() {
	if d.timeout == nil {
		d.timeout = time.NewTimer(d.opts.TransformTimeout)
	} else {
		d.timeout.Reset(d.opts.TransformTimeout)
	}
	d.timeoutC = d.timeout.C
}

func (d *Display) disarmTimeout() {
	if d.timeout != nil {
		d.timeout.Stop()
	}
	d.timeoutC = nil
}

func (d *Display) poll(now time.Time) {
	p := d.poller
	if p == nil || d.inflight != nil {
		return
	}
	if req, ok := p.Poll(now); ok {
		W := d.opts.Segment.WindowSize
		end := req.Start + req.Length
		d.tapPitch(segment.AudioWindow{
			Samples:     p.Samples()[end-W : end],
			StartOffset: int64(end - W),
			Length:      W,
			SampleRate:  p.SampleRate(),
			IsStart:     req.IsStart && req.Length == W,
		})
		d.submit(p.Samples(), req.Start, req.Length, req.IsStart, p.SampleRate())
		return
	}
	if p.Done(now) {
		d.log.Infof("finished %s", d.sourceName)
		d.detach()
		d.setState(Stopped)
	}
}

func (d *Display) tapPitch(w segment.AudioWindow) {
	if d.tracker == nil {
		return
	}
	w.Samples = slices.Clone(w.Samples)
	d.tracker.Submit(pitch.Window{Session: d.session, AudioWindow: w})
}

func (d *Display) onPitch(est pitch.Estimate) {
	if est.Session != d.session {
		d.metrics.RecordStale(d.ctx, "pitch")
		return
	}
	d.metrics.RecordPitch(d.ctx, est.OK)
	if d.label.Observe(est.Hz, est.OK) {
		d.publish()
	}
}

func (d *Display) resizeTo(w, h int) {
	w, h = max(w, 1), max(h, 1)
	d.renderer.FastResizeCanvas(w, h)
	d.pendingSize = image.Pt(w, h)
	if d.resize == nil {
		d.resize = time.NewTimer(d.opts.ResizeDebounce)
	} else {
		d.resize.Reset(d.opts.ResizeDebounce)
	}
	d.resizeC = d.resize.C
}

func (d *Display) onResized() {
	d.resizeC = nil
	size := d.pendingSize
	if d.opts.HistoryWidth <= 0 {
		d.ring.ResizeWidth(size.X)
	}
	d.renderer.ResizeCanvas(size.X, size.Y)
	d.upload(true)
	d.log.Debugf("resized to %dx%d, %d columns", size.X, size.Y, d.ring.Width())
}

func (d *Display) frame() {
	d.upload(false)
	draws := d.renderer.Draws()
	if err := d.renderer.Render(); err != nil {
		d.log.Errorf("present: %v", err)
	}
	d.metrics.RecordFrame(d.ctx, d.renderer.Draws() != draws)
}

func (d *Display) upload(force bool) {
	if err := d.renderer.UpdateSpectrogram(d.ring, force); err != nil {
		d.log.Fatalf("%v", err)
	}
}

func (d *Display) setState(s PlayState) {
	if s == d.state {
		return
	}
	d.log.Debugf("%s -> %s", d.state, s)
	d.state = s
	d.publish()
}

func (d *Display) publish() {
	if d.status == nil {
		return
	}
	hz, set := d.label.Value()
	d.status.PublishStatus(Status{
		State:    d.state,
		Source:   d.sourceName,
		Session:  d.session,
		Pitch:    d.label.Text(),
		PitchHz:  hz,
		HasPitch: set,
		Started:  d.started,
		Duration: d.duration,
	})
}

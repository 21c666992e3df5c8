// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"spectro/internal/analysis"
	"spectro/internal/audio"
	"spectro/internal/config"
	"spectro/internal/decode"
	"spectro/internal/display"
	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/render"
	"spectro/internal/transport"
	"spectro/internal/transport/udp"
	"spectro/internal/tui"
)

// source is what a run shows: the microphone when path is empty.
type source struct {
	path     string
	headless bool
	snapshot string
}

// statusSinks fans a status out to every sink.
type statusSinks []display.StatusSink

func (s statusSinks) PublishStatus(st display.Status) {
	for _, sink := range s {
		sink.PublishStatus(st)
	}
}

// columnSinks fans a column out to every sink and joins their errors.
type columnSinks []display.ColumnSink

func (s columnSinks) Send(column []float32) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Send(column); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finished reports when a file run has played to the end.
type finished struct {
	playing bool
	done    chan struct{}
}

func (f *finished) PublishStatus(st display.Status) {
	switch {
	case st.State == display.PlayingFile:
		f.playing = true
	case f.playing && st.State == display.Stopped:
		f.playing = false
		select {
		case <-f.done:
		default:
			close(f.done)
		}
	}
}

// run wires the display to its source and outputs and blocks until the
// user quits, ctx is cancelled or a headless file run ends.
func run(ctx context.Context, cfg *config.Config, src source) (err error) {
	closeLog, err := setupLogging(cfg, src.headless)
	if err != nil {
		return err
	}
	defer closeLog()

	opts, err := display.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	var track *decode.Track
	if src.path != "" {
		if track, err = decode.DecodeFile(src.path); err != nil {
			return err
		}
		track.Name = filepath.Base(src.path)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var (
		surfaces render.Multi
		sinks    statusSinks
		columns  columnSinks
		options  []display.Option
	)

	// Metrics
	var (
		metrics        *observe.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		p, perr := observe.InitProvider(ctx)
		if perr != nil {
			return perr
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			err = errors.Join(err, p.Shutdown(shutdownCtx))
		}()
		metrics = p.Metrics()
		metricsHandler = p.Handler()
		options = append(options, display.WithMetrics(metrics))
	}

	// WebSocket
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, cfg.Transport.FrameInterval, metrics)
		if metricsHandler != nil && cfg.Metrics.Address == cfg.Transport.WebSocketAddress {
			ws.Handle("/metrics", metricsHandler)
			metricsHandler = nil
		}
		surfaces = append(surfaces, ws)
		sinks = append(sinks, ws)

		rate := cfg.Audio.SampleRate
		if track != nil {
			rate = track.SampleRate
		}
		meter, merr := analysis.NewBandMeter(ws, analysis.DefaultBands, cfg.Spectrogram.WindowSize, rate, cfg.Transport.FrameInterval)
		if merr != nil {
			return merr
		}
		columns = append(columns, meter)
		g.Go(func() error { return ws.ListenAndServe(ctx) })
	}
	if metricsHandler != nil {
		g.Go(func() error { return observe.Serve(ctx, cfg.Metrics.Address, metricsHandler) })
	}

	// UDP
	if cfg.Transport.UDPEnabled {
		sender, serr := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if serr != nil {
			return serr
		}
		pub, perr := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender)
		if perr != nil {
			return errors.Join(perr, sender.Close())
		}
		pub.Start()
		defer func() {
			err = errors.Join(err, pub.Close(), sender.Close())
		}()
		columns = append(columns, pub)
	}
	if len(columns) > 0 {
		options = append(options, display.WithColumnSink(columns))
	}

	// Microphone
	var engine *audio.Engine
	if track == nil {
		engine = audio.NewEngine(cfg.Audio, cfg.Recording)
		options = append(options, display.WithMicrophone(engine))
	}

	var snapshot *render.Snapshot
	if src.snapshot != "" {
		snapshot = &render.Snapshot{}
		surfaces = append(surfaces, snapshot)
	}

	var view *tui.Surface
	if src.headless {
		sinks = append(sinks, transport.NewLoggingTransport())
	} else {
		view = &tui.Surface{}
		surfaces = append(surfaces, view)
		sinks = append(sinks, view)
	}

	end := &finished{done: make(chan struct{})}
	if track != nil && src.headless {
		sinks = append(sinks, end)
	}

	options = append(options, display.WithSurface(surfaces), display.WithStatusSink(sinks))
	d, err := display.New(opts, options...)
	if err != nil {
		return err
	}
	ctl := d.Controls()

	g.Go(func() error { return d.Run(ctx) })

	if track != nil {
		if err := ctl.StartTrack(track); err != nil {
			cancel()
			return errors.Join(err, g.Wait())
		}
	} else if err := ctl.StartMicrophone(); err != nil {
		if src.headless {
			cancel()
			return errors.Join(err, g.Wait())
		}
		log.Warnf("Main: %v", err)
	}

	if view != nil {
		g.Go(func() error {
			defer cancel()
			m := tui.NewModel(ctl, view, opts.Parameters, cfg.Render.FrameRate)
			if engine != nil {
				m = m.WithMeter(engine)
			}
			return tui.Run(ctx, m)
		})
	} else {
		g.Go(func() error {
			select {
			case <-end.done:
				log.Infof("Main: %s finished", track.Name)
				// one more frame picks up the last columns
				time.Sleep(2 * time.Second / time.Duration(opts.FrameRate))
				cancel()
			case <-ctx.Done():
			}
			return nil
		})
	}

	err = g.Wait()

	if snapshot != nil {
		if serr := snapshot.Save(src.snapshot); serr != nil {
			err = errors.Join(err, serr)
		} else {
			log.Infof("Main: snapshot written to %s", src.snapshot)
		}
	}
	if engine != nil {
		if path := engine.LastRecording(); path != "" {
			log.Infof("Main: recording saved to %s", path)
		}
	}
	return err
}

// setupLogging applies the log level and, while the terminal view owns the
// screen, moves the log to the configured file or drops it.
func setupLogging(cfg *config.Config, headless bool) (func(), error) {
	if !log.SetLevelString(cfg.Level()) {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level())
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		return func() {
			log.SetOutput(os.Stderr)
			f.Close()
		}, nil
	}
	if !headless {
		log.SetOutput(io.Discard)
		return func() { log.SetOutput(os.Stderr) }, nil
	}
	return func() {}, nil
}

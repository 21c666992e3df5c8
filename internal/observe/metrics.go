// SPDX-License-Identifier: MIT
// Package observe holds the OpenTelemetry instruments of the pipeline and
// the Prometheus bridge that exposes them on /metrics.
//
// Tests should build their own Metrics with NewMetrics and a ManualReader
// backed provider instead of touching the global one.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "spectro"

// Metrics holds every instrument. All fields are safe for concurrent use.
type Metrics struct {
	// TransformDuration is the worker time per request.
	TransformDuration metric.Float64Histogram

	// TransformWindows counts spectrum columns produced.
	TransformWindows metric.Int64Counter

	// TransformErrors counts failed requests by attribute "kind"
	// (timeout, error).
	TransformErrors metric.Int64Counter

	// DroppedWindows counts windows the segmenter discarded to keep batches
	// bounded.
	DroppedWindows metric.Int64Counter

	// StaleResults counts results discarded for a retired session or
	// request, by attribute "kind" (transform, pitch).
	StaleResults metric.Int64Counter

	// Sessions counts started sources by attribute "source" (mic, file).
	Sessions metric.Int64Counter

	// Frames counts presented frames; Redraws counts the ones that were
	// actually rasterised.
	Frames  metric.Int64Counter
	Redraws metric.Int64Counter

	// PitchEstimates counts detector runs by attribute "voiced".
	PitchEstimates metric.Int64Counter

	// Clients is the number of connected websocket clients.
	Clients metric.Int64UpDownCounter

	// FramesSent counts frames written to websocket clients.
	FramesSent metric.Int64Counter
}

// durationBuckets in seconds, sized for per-batch FFT work.
var durationBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TransformDuration, err = m.Float64Histogram("spectro.transform.duration",
		metric.WithDescription("Worker time per transform request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TransformWindows, err = m.Int64Counter("spectro.transform.windows",
		metric.WithDescription("Spectrum columns produced."),
	); err != nil {
		return nil, err
	}
	if met.TransformErrors, err = m.Int64Counter("spectro.transform.errors",
		metric.WithDescription("Failed or timed out transform requests by kind."),
	); err != nil {
		return nil, err
	}
	if met.DroppedWindows, err = m.Int64Counter("spectro.segment.dropped_windows",
		metric.WithDescription("Windows dropped to keep batches bounded."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("spectro.stale_results",
		metric.WithDescription("Results discarded for a retired session or request."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("spectro.sessions",
		metric.WithDescription("Sources started by kind."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("spectro.render.frames",
		metric.WithDescription("Frames presented."),
	); err != nil {
		return nil, err
	}
	if met.Redraws, err = m.Int64Counter("spectro.render.redraws",
		metric.WithDescription("Frames rasterised."),
	); err != nil {
		return nil, err
	}
	if met.PitchEstimates, err = m.Int64Counter("spectro.pitch.estimates",
		metric.WithDescription("Pitch detector runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Clients, err = m.Int64UpDownCounter("spectro.transport.clients",
		metric.WithDescription("Connected websocket clients."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("spectro.transport.frames_sent",
		metric.WithDescription("Frames written to websocket clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics, created on first use
// from the global meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTransform records one successful request.
func (m *Metrics) RecordTransform(ctx context.Context, d time.Duration, windows int) {
	m.TransformDuration.Record(ctx, d.Seconds())
	m.TransformWindows.Add(ctx, int64(windows))
}

// RecordTransformError records a failed request; kind is "timeout" or
// "error".
func (m *Metrics) RecordTransformError(ctx context.Context, kind string) {
	m.TransformErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordStale records a discarded result; kind is "transform" or "pitch".
func (m *Metrics) RecordStale(ctx context.Context, kind string) {
	m.StaleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSession records a started source; source is "mic" or "file".
func (m *Metrics) RecordSession(ctx context.Context, source string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordFrame records a presented frame and whether it was redrawn.
func (m *Metrics) RecordFrame(ctx context.Context, redrawn bool) {
	m.Frames.Add(ctx, 1)
	if redrawn {
		m.Redraws.Add(ctx, 1)
	}
}

// RecordPitch records one detector verdict.
func (m *Metrics) RecordPitch(ctx context.Context, voiced bool) {
	m.PitchEstimates.Add(ctx, 1, metric.WithAttributes(attribute.Bool("voiced", voiced)))
}

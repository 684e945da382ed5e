// Package observe provides application-wide observability primitives for
// fretsense: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so they can be scraped from
// /metrics. [DefaultMetrics] returns a package-level instance bound to the
// global provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all fretsense metrics.
const meterName = "github.com/MrWong99/fretsense"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// FramesProcessed counts frames pulled from the capture source.
	FramesProcessed metric.Int64Counter

	// FramesRejected counts frames refused by the gate. Use with attribute:
	//   attribute.String("reason", ...)
	FramesRejected metric.Int64Counter

	// FramesAccepted counts frames passed on to the stabilizer.
	FramesAccepted metric.Int64Counter

	// StableEmissions counts frequencies the stabilizer emitted.
	StableEmissions metric.Int64Counter

	// EstimatorErrors counts frames the pitch estimator failed on.
	EstimatorErrors metric.Int64Counter

	// PublishedStates counts values delivered to subscribers. Use with
	// attribute:
	//   attribute.String("kind", "detected"|"no_signal")
	PublishedStates metric.Int64Counter

	// ActiveSubscribers tracks open publisher subscriptions.
	ActiveSubscribers metric.Int64UpDownCounter

	// PipelineRunning is 1 while the coordinator is running.
	PipelineRunning metric.Int64UpDownCounter

	// FrameDuration tracks per-frame processing time (estimate through
	// publish).
	FrameDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// frameBuckets are histogram bounds in seconds. A 4096/2048 frame at
// 44.1 kHz arrives every ~46 ms, so anything near that is a problem.
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("fretsense.frames.processed",
		metric.WithDescription("Total audio frames processed."),
	); err != nil {
		return nil, err
	}
	if met.FramesRejected, err = m.Int64Counter("fretsense.frames.rejected",
		metric.WithDescription("Frames rejected by the gate, by reason."),
	); err != nil {
		return nil, err
	}
	if met.FramesAccepted, err = m.Int64Counter("fretsense.frames.accepted",
		metric.WithDescription("Frames accepted by the gate."),
	); err != nil {
		return nil, err
	}
	if met.StableEmissions, err = m.Int64Counter("fretsense.stabilizer.emissions",
		metric.WithDescription("Stable frequencies emitted by the stabilizer."),
	); err != nil {
		return nil, err
	}
	if met.EstimatorErrors, err = m.Int64Counter("fretsense.estimator.errors",
		metric.WithDescription("Frames the pitch estimator could not process."),
	); err != nil {
		return nil, err
	}
	if met.PublishedStates, err = m.Int64Counter("fretsense.publisher.states",
		metric.WithDescription("States fanned out to subscribers, by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSubscribers, err = m.Int64UpDownCounter("fretsense.publisher.subscribers",
		metric.WithDescription("Number of open subscriptions."),
	); err != nil {
		return nil, err
	}
	if met.PipelineRunning, err = m.Int64UpDownCounter("fretsense.pipeline.running",
		metric.WithDescription("1 while the pipeline coordinator is running."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("fretsense.frame.duration",
		metric.WithDescription("Processing time per audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fretsense.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordRejected increments the rejected-frame counter for reason.
func (m *Metrics) RecordRejected(ctx context.Context, reason string) {
	m.FramesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordPublished increments the published-state counter. kind is
// "detected" or "no_signal".
func (m *Metrics) RecordPublished(ctx context.Context, kind string) {
	m.PublishedStates.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

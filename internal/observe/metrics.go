// Package observe provides application-wide observability primitives for
// Vigil: OpenTelemetry metrics and the SDK provider setup that bridges them
// to a Prometheus /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Vigil metrics.
const meterName = "github.com/framelens/vigil"

// Cycle outcome values for the cycles counter.
const (
	CycleOK      = "ok"      // feed updated (regular result or notification)
	CycleSkipped = "skipped" // source not ready, no inference issued
	CycleError   = "error"   // an inference call failed, feed untouched
	CycleIdle    = "idle"    // both answers empty, nothing to push
)

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CycleDuration tracks full capture→inference→feed cycle latency.
	CycleDuration metric.Float64Histogram

	// InferenceDuration tracks single inference call latency, including any
	// rate-limit backoff spent inside the client.
	InferenceDuration metric.Float64Histogram

	// Cycles counts engine cycles. Use with attribute:
	//   attribute.String("outcome", CycleOK|CycleSkipped|CycleError|CycleIdle)
	Cycles metric.Int64Counter

	// InferenceRequests counts inference calls. Use with attributes:
	//   attribute.String("kind", "summary"|"trigger"), attribute.String("status", "ok"|"error")
	InferenceRequests metric.Int64Counter

	// Detections counts trigger matches. Use with attribute:
	//   attribute.String("trigger", <trigger id>)
	Detections metric.Int64Counter

	// ActiveStreams tracks the number of engines currently in the Active state.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Cycle
// latency is dominated by the remote inference round-trip, with rate-limit
// backoff stretching the tail to ~15s.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CycleDuration, err = m.Float64Histogram("vigil.cycle.duration",
		metric.WithDescription("Latency of one full capture/inference/feed cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("vigil.inference.duration",
		metric.WithDescription("Latency of a single vision inference call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Cycles, err = m.Int64Counter("vigil.cycles",
		metric.WithDescription("Total engine cycles by outcome."),
	); err != nil {
		return nil, err
	}
	if met.InferenceRequests, err = m.Int64Counter("vigil.inference.requests",
		metric.WithDescription("Total vision inference calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("vigil.detections",
		metric.WithDescription("Total trigger matches by trigger id."),
	); err != nil {
		return nil, err
	}

	if met.ActiveStreams, err = m.Int64UpDownCounter("vigil.active_streams",
		metric.WithDescription("Number of engines currently streaming."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordCycle records one finished cycle with its outcome and duration.
func (m *Metrics) RecordCycle(ctx context.Context, outcome string, seconds float64) {
	m.Cycles.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
	m.CycleDuration.Record(ctx, seconds)
}

// RecordInference records one inference call with its kind, status, and
// duration.
func (m *Metrics) RecordInference(ctx context.Context, kind, status string, seconds float64) {
	m.InferenceRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		))
	m.InferenceDuration.Record(ctx, seconds)
}

// RecordDetection records one trigger match.
func (m *Metrics) RecordDetection(ctx context.Context, triggerID string) {
	m.Detections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("trigger", triggerID)))
}

// Package observe provides application-wide observability primitives for
// captrail: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all captrail metrics.
const meterName = "github.com/captrail/captrail"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TickDuration tracks processing latency of one ingestion tick.
	TickDuration metric.Float64Histogram

	// SummarizeDuration tracks chunk and final summarization latency.
	SummarizeDuration metric.Float64Histogram

	// SinkDuration tracks persistence sink save latency.
	SinkDuration metric.Float64Histogram

	// --- Counters ---

	// Fragments counts observed caption fragments. Use with attribute:
	//   attribute.String("verdict", ...): "caption" or a rejection reason
	Fragments metric.Int64Counter

	// Finalized counts finalized utterances. Use with attribute:
	//   attribute.String("trigger", ...): "snapshot", "sweep", or "stop"
	Finalized metric.Int64Counter

	// Appends counts transcript store decisions. Use with attribute:
	//   attribute.String("outcome", ...): "appended", "amended", "dropped"
	Appends metric.Int64Counter

	// Chunks counts chunk scheduler cycles that submitted text. Use with attribute:
	//   attribute.String("status", ...): "ok" or "error"
	Chunks metric.Int64Counter

	// Snapshots counts observer snapshot deliveries. Use with attribute:
	//   attribute.String("transport", ...): "ws" or "http"
	Snapshots metric.Int64Counter

	// ProviderRequests counts LLM/embedding provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Ticks sit
// in the sub-millisecond range; summarization calls take whole seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TickDuration, err = m.Float64Histogram("captrail.tick.duration",
		metric.WithDescription("Processing latency of one ingestion tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummarizeDuration, err = m.Float64Histogram("captrail.summarize.duration",
		metric.WithDescription("Latency of chunk and final summarization calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SinkDuration, err = m.Float64Histogram("captrail.sink.duration",
		metric.WithDescription("Latency of persistence sink saves."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Fragments, err = m.Int64Counter("captrail.fragments",
		metric.WithDescription("Observed caption fragments by classification verdict."),
	); err != nil {
		return nil, err
	}
	if met.Finalized, err = m.Int64Counter("captrail.utterances.finalized",
		metric.WithDescription("Finalized utterances by trigger."),
	); err != nil {
		return nil, err
	}
	if met.Appends, err = m.Int64Counter("captrail.transcript.appends",
		metric.WithDescription("Transcript store decisions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Chunks, err = m.Int64Counter("captrail.chunks",
		metric.WithDescription("Chunk summarization attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Snapshots, err = m.Int64Counter("captrail.snapshots",
		metric.WithDescription("Observer snapshots received by transport."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("captrail.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("captrail.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("captrail.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("captrail.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFragment records one observed fragment with its classification
// verdict ("caption" for accepted speech, otherwise the rejection reason).
func (m *Metrics) RecordFragment(ctx context.Context, verdict string) {
	m.Fragments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("verdict", verdict)),
	)
}

// RecordFinalized records n utterances finalized by the given trigger.
func (m *Metrics) RecordFinalized(ctx context.Context, trigger string, n int64) {
	if n == 0 {
		return
	}
	m.Finalized.Add(ctx, n,
		metric.WithAttributes(attribute.String("trigger", trigger)),
	)
}

// RecordAppend records one transcript store decision.
func (m *Metrics) RecordAppend(ctx context.Context, outcome string) {
	m.Appends.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordChunk records one chunk summarization attempt.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.Chunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSnapshot records one observer snapshot delivery over the given
// transport ("ws" or "http").
func (m *Metrics) RecordSnapshot(ctx context.Context, transport string) {
	m.Snapshots.Add(ctx, 1,
		metric.WithAttributes(attribute.String("transport", transport)),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

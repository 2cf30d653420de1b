// Package observe provides application-wide observability primitives for
// Tandem: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
//
// Every convenience method is nil-receiver safe, so components can carry an
// optional *Metrics without guarding each call site.
type Metrics struct {
	// --- Latency histograms per reconciliation stage ---

	// STTDuration tracks a single STT pass. Attributes: provider, role
	// (primary|secondary).
	STTDuration metric.Float64Histogram

	// AlignDuration tracks word alignment latency.
	AlignDuration metric.Float64Histogram

	// MergeDuration tracks voting merge / span substitution latency.
	MergeDuration metric.Float64Histogram

	// RefineDuration tracks the LLM refinement pass.
	RefineDuration metric.Float64Histogram

	// ReconcileDuration tracks end-to-end reconciliation latency.
	// Attributes: mode, status.
	ReconcileDuration metric.Float64Histogram

	// --- Counters ---

	// ReconcileRequests counts reconciliation requests by mode and status.
	ReconcileRequests metric.Int64Counter

	// ProviderErrors counts STT/LLM provider errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// FailedSpans counts low-confidence spans whose re-transcription failed.
	FailedSpans metric.Int64Counter

	// HotwordCorrections counts words replaced by the hotword corrector.
	HotwordCorrections metric.Int64Counter

	// --- Gauges ---

	// InFlightRequests tracks reconciliation requests currently running.
	InFlightRequests metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). STT and
// LLM calls dominate, so buckets reach well into the tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		field *metric.Float64Histogram
		name  string
		desc  string
	}{
		{&met.STTDuration, "tandem.stt.duration", "Latency of one STT pass."},
		{&met.AlignDuration, "tandem.align.duration", "Latency of word alignment."},
		{&met.MergeDuration, "tandem.merge.duration", "Latency of voting merge or span substitution."},
		{&met.RefineDuration, "tandem.refine.duration", "Latency of the LLM refinement pass."},
		{&met.ReconcileDuration, "tandem.reconcile.duration", "End-to-end reconciliation latency by mode and status."},
	}
	for _, h := range histograms {
		if *h.field, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	if met.ReconcileRequests, err = m.Int64Counter("tandem.reconcile.requests",
		metric.WithDescription("Total reconciliation requests by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("tandem.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.FailedSpans, err = m.Int64Counter("tandem.reconcile.failed_spans",
		metric.WithDescription("Low-confidence spans whose re-transcription failed."),
	); err != nil {
		return nil, err
	}
	if met.HotwordCorrections, err = m.Int64Counter("tandem.hotword.corrections",
		metric.WithDescription("Words replaced by the hotword corrector."),
	); err != nil {
		return nil, err
	}

	if met.InFlightRequests, err = m.Int64UpDownCounter("tandem.reconcile.in_flight",
		metric.WithDescription("Reconciliation requests currently running."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("tandem.http.request.duration",
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

// RecordSTT records one STT pass's latency.
func (m *Metrics) RecordSTT(ctx context.Context, provider, role string, seconds float64) {
	if m == nil {
		return
	}
	m.STTDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("role", role),
	))
}

// RecordAlign records word alignment latency.
func (m *Metrics) RecordAlign(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.AlignDuration.Record(ctx, seconds)
}

// RecordMerge records voting merge / span substitution latency.
func (m *Metrics) RecordMerge(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.MergeDuration.Record(ctx, seconds)
}

// RecordRefine records LLM refinement latency.
func (m *Metrics) RecordRefine(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.RefineDuration.Record(ctx, seconds)
}

// RecordReconcile records one finished reconciliation request.
func (m *Metrics) RecordReconcile(ctx context.Context, mode, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.ReconcileRequests.Add(ctx, 1, attrs)
	m.ReconcileDuration.Record(ctx, seconds, attrs)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// AddFailedSpans counts spans that kept their low-confidence words because
// re-transcription failed.
func (m *Metrics) AddFailedSpans(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FailedSpans.Add(ctx, int64(n))
}

// AddHotwordCorrections counts applied hotword replacements.
func (m *Metrics) AddHotwordCorrections(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HotwordCorrections.Add(ctx, int64(n))
}

// AddInFlight adjusts the in-flight request gauge by delta.
func (m *Metrics) AddInFlight(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.InFlightRequests.Add(ctx, delta)
}

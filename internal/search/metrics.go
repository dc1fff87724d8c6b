package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/patentd/internal/search"

// Metrics records retrieval engine metrics.
type Metrics struct {
	searches    metric.Int64Counter
	duration    metric.Float64Histogram
	resultCount metric.Int64Histogram
	growthSteps metric.Int64Counter
}

// NewMetrics creates engine metrics on the global meter.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	m.searches, _ = meter.Int64Counter(
		"patentd.search.requests_total",
		metric.WithDescription("Similarity searches executed, labeled by tenant and whether a filter was applied."),
		metric.WithUnit("{search}"),
	)
	m.duration, _ = meter.Float64Histogram(
		"patentd.search.duration_seconds",
		metric.WithDescription("Engine scan duration in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	m.resultCount, _ = meter.Int64Histogram(
		"patentd.search.results",
		metric.WithDescription("Result count per search. Shorter than k indicates a selective filter."),
		metric.WithUnit("{chunk}"),
	)
	m.growthSteps, _ = meter.Int64Counter(
		"patentd.search.overfetch_growth_steps_total",
		metric.WithDescription("Over-fetch window doublings. Sustained growth suggests raising oversample_factor."),
		metric.WithUnit("{step}"),
	)

	return m
}

// RecordSearch records one engine search.
func (m *Metrics) RecordSearch(ctx context.Context, tenant string, dur time.Duration, results, growthSteps int, filtered bool) {
	attrs := metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.Bool("filtered", filtered),
	)

	if m.searches != nil {
		m.searches.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, dur.Seconds(), attrs)
	}
	if m.resultCount != nil {
		m.resultCount.Record(ctx, int64(results), attrs)
	}
	if m.growthSteps != nil && growthSteps > 0 {
		m.growthSteps.Add(ctx, int64(growthSteps), attrs)
	}
}

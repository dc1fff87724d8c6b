package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/patentd/internal/embeddings"

// Metrics records embedding generation metrics.
type Metrics struct {
	generations metric.Int64Counter
	duration    metric.Float64Histogram
	inputs      metric.Int64Counter
}

// NewMetrics creates embedding metrics on the global meter.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	// Instrument creation failures degrade to nil instruments; recording
	// guards against nil so the client keeps working without metrics.
	m.generations, _ = meter.Int64Counter(
		"patentd.embeddings.generations_total",
		metric.WithDescription("Embedding generation calls labeled by model, operation, and outcome."),
		metric.WithUnit("{call}"),
	)
	m.duration, _ = meter.Float64Histogram(
		"patentd.embeddings.generation_duration_seconds",
		metric.WithDescription("Embedding generation latency in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	m.inputs, _ = meter.Int64Counter(
		"patentd.embeddings.inputs_total",
		metric.WithDescription("Number of texts embedded."),
		metric.WithUnit("{text}"),
	)

	return m
}

// RecordGeneration records one embedding call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, dur time.Duration, inputs int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)

	if m.generations != nil {
		m.generations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, dur.Seconds(), attrs)
	}
	if m.inputs != nil && inputs > 0 {
		m.inputs.Add(ctx, int64(inputs), attrs)
	}
}

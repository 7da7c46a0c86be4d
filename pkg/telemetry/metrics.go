package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts holds options for creating metrics
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter wraps an OTel counter. A nil *Counter records nothing.
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new counter metric on the global meter.
func NewCounter(opts MetricOpts) (*Counter, error) {
	counter, err := Meter().Int64Counter(
		opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{counter: counter}, nil
}

// Add increments the counter by the given value
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by 1
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram wraps an OTel histogram. A nil *Histogram records nothing.
type Histogram struct {
	histogram metric.Float64Histogram
}

// NewHistogram creates a new histogram metric on the global meter.
func NewHistogram(opts MetricOpts) (*Histogram, error) {
	h, err := Meter().Float64Histogram(
		opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{histogram: h}, nil
}

// Record records a value in the histogram
func (h *Histogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// Attribute helpers shared across components.

func OutcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}

func PaymentStatusAttr(status string) attribute.KeyValue {
	return attribute.String("payment.status", status)
}

func SweepKindAttr(kind string) attribute.KeyValue {
	return attribute.String("sweep.kind", kind)
}

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricDaysTotal      = "loctrail.collect.days.total"
	metricDayDuration    = "loctrail.collect.day.duration.seconds"
	metricFallbacksTotal = "loctrail.oracle.fallbacks.total"
	metricRowsAppended   = "loctrail.ledger.rows.appended.total"

	attrStatus = "status"
)

// Day outcome statuses.
const (
	StatusAppended = "appended"
	StatusSkipped  = "skipped"
	StatusDegraded = "degraded"
)

// dayBucketBoundaries covers 50ms to 10 minutes: a day step is dominated by
// the external oracle.
var dayBucketBoundaries = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// metricBuilder accumulates instrument creation errors so a set of
// instruments is built with a single error check.
type metricBuilder struct {
	meter metric.Meter
	err   error
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.setErr(name, err)

	return c
}

func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.setErr(name, err)

	return h
}

func (b *metricBuilder) setErr(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("create %s: %w", name, err)
	}
}

// CollectMetrics holds the instruments of a collection run.
type CollectMetrics struct {
	days      metric.Int64Counter
	duration  metric.Float64Histogram
	fallbacks metric.Int64Counter
	appended  metric.Int64Counter
}

// NewCollectMetrics creates the collection instruments from mt.
func NewCollectMetrics(mt metric.Meter) (*CollectMetrics, error) {
	b := &metricBuilder{meter: mt}

	m := &CollectMetrics{
		days:      b.counter(metricDaysTotal, "Commit days processed by outcome", "{day}"),
		duration:  b.histogram(metricDayDuration, "Time to collect one commit day", "s", dayBucketBoundaries...),
		fallbacks: b.counter(metricFallbacksTotal, "Measurements served by the built-in line counter", "{measurement}"),
		appended:  b.counter(metricRowsAppended, "Rows durably appended to the ledger", "{row}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return m, nil
}

// RecordDay records the outcome and duration of one day step.
func (m *CollectMetrics) RecordDay(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	m.days.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)

	if status != StatusSkipped {
		m.appended.Add(ctx, 1)
	}
}

// RecordFallback counts one oracle fallback.
func (m *CollectMetrics) RecordFallback(ctx context.Context) {
	if m == nil {
		return
	}

	m.fallbacks.Add(ctx, 1)
}

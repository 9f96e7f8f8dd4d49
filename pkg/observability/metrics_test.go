package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/loctrail/pkg/observability"
)

func setupTestMeter(t *testing.T) (*observability.CollectMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := observability.NewCollectMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for i := range rm.ScopeMetrics {
		for j := range rm.ScopeMetrics[i].Metrics {
			if rm.ScopeMetrics[i].Metrics[j].Name == name {
				return &rm.ScopeMetrics[i].Metrics[j]
			}
		}
	}

	return nil
}

func TestCollectMetricsRecordDay(t *testing.T) {
	t.Parallel()

	m, reader := setupTestMeter(t)
	ctx := context.Background()

	m.RecordDay(ctx, observability.StatusAppended, 200*time.Millisecond)
	m.RecordDay(ctx, observability.StatusAppended, time.Second)
	m.RecordDay(ctx, observability.StatusSkipped, time.Millisecond)

	days := findMetric(t, reader, "loctrail.collect.days.total")
	require.NotNil(t, days)

	sum, ok := days.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byStatus := map[string]int64{}

	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byStatus[status.AsString()] = dp.Value
	}

	assert.Equal(t, map[string]int64{"appended": 2, "skipped": 1}, byStatus)

	appended := findMetric(t, reader, "loctrail.ledger.rows.appended.total")
	require.NotNil(t, appended)

	rows, ok := appended.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, rows.DataPoints, 1)
	assert.Equal(t, int64(2), rows.DataPoints[0].Value)

	hist := findMetric(t, reader, "loctrail.collect.day.duration.seconds")
	require.NotNil(t, hist)
}

func TestCollectMetricsFallback(t *testing.T) {
	t.Parallel()

	m, reader := setupTestMeter(t)

	m.RecordFallback(context.Background())
	m.RecordFallback(context.Background())

	fallbacks := findMetric(t, reader, "loctrail.oracle.fallbacks.total")
	require.NotNil(t, fallbacks)

	sum, ok := fallbacks.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestCollectMetricsNilIsNoop(t *testing.T) {
	t.Parallel()

	var m *observability.CollectMetrics

	assert.NotPanics(t, func() {
		m.RecordDay(context.Background(), observability.StatusDegraded, time.Second)
		m.RecordFallback(context.Background())
	})
}

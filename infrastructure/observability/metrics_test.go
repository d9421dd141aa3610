package observability

import (
	"context"
	"testing"
	"time"

	"raffler/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m.Data
		}
	}
	return found
}

func TestMetricsProvider_Records(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.MetricsEnabled = true
	cfg.MetricsExporter = "console"

	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProvider(cfg)
	mp.reader = reader
	require.NoError(t, mp.Initialize(context.Background()))
	defer mp.Shutdown(context.Background())

	ctx := context.Background()
	mp.RecordDrawOutcome(ctx, "completed", "", 2*time.Second)
	mp.RecordDrawOutcome(ctx, "skipped", "lock_held", time.Millisecond)
	mp.RecordPayout(ctx, "winner", true, 316_666_666)
	mp.RecordPayout(ctx, "winner", false, 316_666_666)
	mp.RecordLockContention(ctx)

	data := collect(t, reader)

	draws, ok := data[DrawsTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, draws.DataPoints, 2)

	amount, ok := data[PayoutAmountTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, amount.DataPoints, 1)
	assert.Equal(t, int64(316_666_666), amount.DataPoints[0].Value)

	contention, ok := data[LockContentionTotal].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), contention.DataPoints[0].Value)

	_, ok = data[DrawDuration].(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestMetricsProvider_DisabledIsNoop(t *testing.T) {
	cfg := config.NewTestConfig()
	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))

	assert.NotPanics(t, func() {
		mp.RecordDrawOutcome(context.Background(), "completed", "", time.Second)
		mp.RecordPayout(context.Background(), "secondary", true, 1)
		mp.RecordLockContention(context.Background())
	})
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_UnknownExporter(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.MetricsEnabled = true
	cfg.MetricsExporter = "prometheus"
	assert.Error(t, NewMetricsProvider(cfg).Initialize(context.Background()))
}

package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

func newTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestInstruments_Counter(t *testing.T) {
	provider, reader := newTestMeter(t)
	ctx := context.Background()

	in := telemetry.NewInstruments(provider.Meter("test"))
	c := in.Counter("crm_test_total", "test counter", "{calls}")
	require.NoError(t, in.Err())

	c.Inc(ctx, telemetry.AttrCRMProvider.String("local"))
	c.Add(ctx, 4, telemetry.AttrCRMProvider.String("local"))
	c.Inc(ctx, telemetry.AttrCRMProvider.String("salesforce"))

	m := collect(t, reader)["crm_test_total"]
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)

	byProvider := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(telemetry.AttrCRMProvider)
		byProvider[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"local": 5, "salesforce": 1}, byProvider)
}

func TestInstruments_Duration(t *testing.T) {
	provider, reader := newTestMeter(t)
	ctx := context.Background()

	in := telemetry.NewInstruments(provider.Meter("test"))
	h := in.Duration("crm_test_duration_seconds", "test histogram", telemetry.CRMDurationBuckets)
	plain := in.Duration("plain_duration_seconds", "default buckets", nil)
	require.NoError(t, in.Err())

	h.Observe(ctx, 300*time.Millisecond)
	h.Observe(ctx, 12*time.Second)
	plain.Observe(ctx, time.Second)

	metrics := collect(t, reader)
	hist, ok := metrics["crm_test_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(2), dp.Count)
	assert.Equal(t, telemetry.CRMDurationBuckets, dp.Bounds)
	assert.InDelta(t, 12.3, dp.Sum, 0.0001)
	assert.Equal(t, "s", metrics["crm_test_duration_seconds"].Unit)

	defaults := metrics["plain_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.NotEqual(t, telemetry.HTTPDurationBuckets, defaults.DataPoints[0].Bounds)
}

func TestInstruments_UpDown(t *testing.T) {
	provider, reader := newTestMeter(t)
	ctx := context.Background()

	in := telemetry.NewInstruments(provider.Meter("test"))
	g := in.UpDown("in_flight", "in-flight work", "{request}")
	require.NoError(t, in.Err())
	g.Add(ctx, 3)
	g.Add(ctx, -1)

	sum := collect(t, reader)["in_flight"].Data.(metricdata.Sum[int64])
	assert.False(t, sum.IsMonotonic)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestInstruments_CollectsErrors(t *testing.T) {
	provider, _ := newTestMeter(t)
	in := telemetry.NewInstruments(provider.Meter("test"))

	c := in.Counter("1-not-a-name", "bad", "")
	h := in.Duration("2-not-a-name", "bad", nil)
	in.Counter("fine_total", "ok", "")

	err := in.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1-not-a-name")
	assert.Contains(t, err.Error(), "2-not-a-name")

	assert.Nil(t, c)
	assert.Nil(t, h)
	assert.NotPanics(t, func() {
		c.Inc(context.Background())
		h.Observe(context.Background(), time.Second)
	})
}

func TestBucketsAscending(t *testing.T) {
	for name, buckets := range map[string][]float64{
		"http": telemetry.HTTPDurationBuckets,
		"db":   telemetry.DBDurationBuckets,
		"crm":  telemetry.CRMDurationBuckets,
	} {
		for i := 1; i < len(buckets); i++ {
			assert.Less(t, buckets[i-1], buckets[i], "%s buckets must ascend", name)
		}
	}
}

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counterValue sums the data points of an int64 counter that carry attr
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, found := dp.Attributes.Value(attr.Key); found && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func newTestCRMMetrics(t *testing.T) (*CRMMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewCRMMetrics(CRMMetricsConfig{Meter: provider.Meter("crm-test")})
	require.NoError(t, err)
	return m, reader
}

func TestNewCRMMetrics_NilMeter(t *testing.T) {
	m, err := NewCRMMetrics(CRMMetricsConfig{})
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestCRMMetrics_RecordCall(t *testing.T) {
	m, reader := newTestCRMMetrics(t)
	ctx := context.Background()

	m.RecordCall(ctx, "salesforce", "SearchHouseholds", "", 120*time.Millisecond)
	m.RecordCall(ctx, "salesforce", "SearchHouseholds", "AUTH", 30*time.Millisecond)
	m.RecordCall(ctx, "local", "CreateTask", "", time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), counterValue(t, rm, "crm_calls_total", AttrCRMProvider.String("salesforce")))
	assert.Equal(t, int64(1), counterValue(t, rm, "crm_calls_total", AttrCRMProvider.String("local")))
	assert.Equal(t, int64(1), counterValue(t, rm, "crm_errors_total", AttrCRMErrorKind.String("AUTH")))
}

func TestCRMMetrics_FeatureAbsentAndUnmatched(t *testing.T) {
	m, reader := newTestCRMMetrics(t)
	ctx := context.Background()

	m.RecordFeatureAbsent(ctx, "salesforce", "QueryFinancialAccounts")
	m.RecordFeatureAbsent(ctx, "salesforce", "QueryFinancialAccounts")
	m.RecordUnmatchedError(ctx, "salesforce", "CreateContactRelationship")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(2), counterValue(t, rm, "crm_feature_absent_total", AttrCRMOperation.String("QueryFinancialAccounts")))
	assert.Equal(t, int64(1), counterValue(t, rm, "crm_unmatched_errors_total", AttrCRMOperation.String("CreateContactRelationship")))
}

func TestCRMMetrics_NilReceiver(t *testing.T) {
	var m *CRMMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordCall(ctx, "salesforce", "op", "QUERY", time.Second)
		m.RecordFeatureAbsent(ctx, "salesforce", "op")
		m.RecordUnmatchedError(ctx, "salesforce", "op")
	})
}

package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// CRMMetrics counts calls made through the CRM port and how they ended.
// A nil *CRMMetrics is valid and records nothing.
type CRMMetrics struct {
	logger *zap.Logger

	callsTotal         *Counter
	errorsTotal        *Counter
	featureAbsentTotal *Counter
	unmatchedTotal     *Counter
	callDuration       *Histogram
}

// CRMMetricsConfig holds configuration for CRM metrics.
type CRMMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewCRMMetrics creates the CRM instruments on the given meter.
func NewCRMMetrics(cfg CRMMetricsConfig) (*CRMMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	in := NewInstruments(cfg.Meter)
	m := &CRMMetrics{
		logger:      logger,
		callsTotal:  in.Counter("crm_calls_total", "Total number of CRM port operations", "{calls}"),
		errorsTotal: in.Counter("crm_errors_total", "CRM port operations that failed, by error kind", "{errors}"),
		featureAbsentTotal: in.Counter("crm_feature_absent_total",
			"Optional CRM operations that found the feature missing for the tenant", "{calls}"),
		unmatchedTotal: in.Counter("crm_unmatched_errors_total",
			"Provider errors in optional operations that matched no feature-absent signature", "{errors}"),
		callDuration: in.Duration("crm_call_duration_seconds", "Duration of CRM port operations", CRMDurationBuckets),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCall records one finished operation. errKind is empty on success.
func (m *CRMMetrics) RecordCall(ctx context.Context, provider, operation, errKind string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrCRMProvider.String(provider),
		AttrCRMOperation.String(operation),
	}
	m.callsTotal.Inc(ctx, attrs...)
	m.callDuration.Observe(ctx, d, attrs...)
	if errKind != "" {
		m.errorsTotal.Inc(ctx, append(attrs, AttrCRMErrorKind.String(errKind))...)
	}
}

// RecordFeatureAbsent records that an optional feature was missing
func (m *CRMMetrics) RecordFeatureAbsent(ctx context.Context, provider, operation string) {
	if m == nil {
		return
	}
	m.featureAbsentTotal.Inc(ctx,
		AttrCRMProvider.String(provider),
		AttrCRMOperation.String(operation),
	)
}

// RecordUnmatchedError records a provider error the feature-absent heuristic did not recognize
func (m *CRMMetrics) RecordUnmatchedError(ctx context.Context, provider, operation string) {
	if m == nil {
		return
	}
	m.unmatchedTotal.Inc(ctx,
		AttrCRMProvider.String(provider),
		AttrCRMOperation.String(operation),
	)
}

// ErrMeterNil is returned when an instrument set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

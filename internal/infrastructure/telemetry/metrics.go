package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments creates instruments on one meter and keeps every creation
// error, so a component can declare all of its instruments and check once:
//
//	in := telemetry.NewInstruments(meter)
//	calls := in.Counter("crm_calls_total", "CRM calls", "{calls}")
//	latency := in.Duration("crm_call_duration_seconds", "CRM latency", telemetry.CRMDurationBuckets)
//	if err := in.Err(); err != nil { ... }
type Instruments struct {
	meter metric.Meter
	errs  []error
}

// NewInstruments returns a builder on meter
func NewInstruments(meter metric.Meter) *Instruments {
	return &Instruments{meter: meter}
}

// Counter declares a monotonic int64 counter
func (in *Instruments) Counter(name, description, unit string) *Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("counter %s: %w", name, err))
		return nil
	}
	return &Counter{counter: c}
}

// Duration declares a histogram of seconds. Nil buckets keep the SDK defaults.
func (in *Instruments) Duration(name, description string, buckets []float64) *Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("histogram %s: %w", name, err))
		return nil
	}
	return &Histogram{histogram: h}
}

// UpDown declares an int64 up-down counter for in-flight style values
func (in *Instruments) UpDown(name, description, unit string) metric.Int64UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("up-down counter %s: %w", name, err))
		return nil
	}
	return c
}

// Err joins the errors of every failed declaration
func (in *Instruments) Err() error {
	if len(in.errs) == 0 {
		return nil
	}
	return fmt.Errorf("failed to create instruments: %w", errors.Join(in.errs...))
}

// Counter is an int64 counter. A nil *Counter records nothing.
type Counter struct {
	counter metric.Int64Counter
}

// Add adds n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram records durations in seconds. A nil *Histogram records nothing.
type Histogram struct {
	histogram metric.Float64Histogram
}

// Observe records d
func (h *Histogram) Observe(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.histogram.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// Attribute keys shared by the HTTP, database and CRM instruments
var (
	AttrTenantID  = attribute.Key("tenant_id")
	AttrUserID    = attribute.Key("user_id")
	AttrRequestID = attribute.Key("request_id")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")

	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")

	AttrCRMProvider  = attribute.Key("crm.provider")
	AttrCRMOperation = attribute.Key("crm.operation")
	AttrCRMErrorKind = attribute.Key("crm.error_kind")
)

// Bucket boundaries in seconds
var (
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	DBDurationBuckets   = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	// CRMDurationBuckets reach further since every call is a remote round trip
	CRMDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

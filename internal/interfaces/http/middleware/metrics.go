package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

type httpMetrics struct {
	requests *telemetry.Counter
	latency  *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	in := telemetry.NewInstruments(meter)
	m := &httpMetrics{
		requests: in.Counter("http_server_request_total", "Total number of HTTP requests", "{request}"),
		latency:  in.Duration("http_server_request_duration_seconds", "HTTP request latency", telemetry.HTTPDurationBuckets),
		inFlight: in.UpDown("http_server_active_requests", "Number of in-flight HTTP requests", "{request}"),
	}
	return m, in.Err()
}

// HTTPMetrics records request count, latency and in-flight requests. A nil
// meter or an instrument error yields a pass-through handler.
func HTTPMetrics(meter metric.Meter) gin.HandlerFunc {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.inFlight.Add(ctx, 1)
		c.Next()
		m.inFlight.Add(ctx, -1)

		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(routePattern(c)),
		}
		m.latency.Observe(ctx, time.Since(start), base...)

		attrs := append(base, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))
		if tenantID := GetTenantID(c); tenantID != "" {
			attrs = append(attrs, telemetry.AttrTenantID.String(tenantID))
		}
		m.requests.Inc(ctx, attrs...)
	}
}

// routePattern keeps label cardinality bounded by using the matched route
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

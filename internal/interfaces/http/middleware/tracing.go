package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// Tracing starts a server span per request. Span names follow
// "METHOD /route/:pattern".
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(serviceName)
}

// TraceAttributes enriches the request span with request and caller
// identity and marks it as failed for 5xx responses. Place it after
// RequestID and Identity so both are already resolved.
func TraceAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(telemetry.AttrRequestID.String(id))
		}
		if id := GetTenantID(c); id != "" {
			span.SetAttributes(telemetry.AttrTenantID.String(id))
		}
		if id := GetUserID(c); id != "" {
			span.SetAttributes(telemetry.AttrUserID.String(id))
		}

		c.Next()

		markSpanStatus(span, c.Writer.Status())
	}
}

// 4xx are caller errors and leave the span unset
func markSpanStatus(span trace.Span, status int) {
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

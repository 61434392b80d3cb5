package telemetry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

type recordingLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingLogExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingLogExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingLogExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

// restoreGlobals puts back the global providers Setup replaces.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, lp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), global.GetLoggerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		global.SetLoggerProvider(lp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestSetup_Disabled(t *testing.T) {
	ctx := context.Background()
	p, err := telemetry.Setup(ctx, telemetry.Config{ServiceName: "advisor-backend"}, nil)
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Meter("test"))
	assert.False(t, p.LogCore(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))

	base := zap.NewNop()
	assert.Same(t, base, p.Bridge(base, zapcore.InfoLevel))
	assert.NoError(t, p.ForceFlush(ctx))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestSetup_Enabled(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	logs := &recordingLogExporter{}

	p, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        true,
		ServiceName:    "advisor-backend",
		ServiceVersion: "1.2.3",
		SamplingRatio:  1,
	}, nil,
		telemetry.WithSpanExporter(spans),
		telemetry.WithMetricReader(reader),
		telemetry.WithLogExporter(logs),
	)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := telemetry.StartServiceSpan(ctx, "practice", "Dashboard")
	span.End()

	in := telemetry.NewInstruments(p.Meter("test"))
	counter := in.Counter("advisor_test_total", "", "")
	require.NoError(t, in.Err())
	counter.Inc(ctx)

	core, observed := observer.New(zapcore.DebugLevel)
	log := p.Bridge(zap.New(core), zapcore.InfoLevel)
	log.Debug("below threshold")
	log.Info("household onboarded")

	require.NoError(t, p.ForceFlush(ctx))

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "practice.Dashboard", got[0].Name)
	version, ok := got[0].Resource.Set().Value("service.version")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", version.AsString())

	assert.Contains(t, collect(t, reader), "advisor_test_total")

	assert.Equal(t, []string{"household onboarded"}, logs.bodies())
	assert.Equal(t, 2, observed.Len(), "base core still receives every entry")

	assert.NoError(t, p.Shutdown(ctx))
}

func TestSetup_SamplingRatioZeroDropsRootSpans(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()
	spans := tracetest.NewInMemoryExporter()

	p, err := telemetry.Setup(ctx, telemetry.Config{Enabled: true, ServiceName: "svc"}, nil,
		telemetry.WithSpanExporter(spans),
		telemetry.WithMetricReader(sdkmetric.NewManualReader()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	_, span := telemetry.StartSpan(ctx, "op")
	span.End()
	require.NoError(t, p.ForceFlush(ctx))

	assert.Empty(t, spans.GetSpans())
}

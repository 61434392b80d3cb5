package telemetry_test

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

func TestParseProfileTypes(t *testing.T) {
	types, err := telemetry.ParseProfileTypes(nil)
	require.NoError(t, err)
	assert.Contains(t, types, pyroscope.ProfileCPU)

	types, err = telemetry.ParseProfileTypes([]string{"CPU", " goroutines "})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{pyroscope.ProfileCPU, pyroscope.ProfileGoroutines}, types)

	_, err = telemetry.ParseProfileTypes([]string{"heap"})
	assert.Error(t, err)
}

func TestStartProfiler_Disabled(t *testing.T) {
	p, err := telemetry.StartProfiler(telemetry.ProfilerConfig{}, nil, nil)
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestStartProfiler_RequiresServer(t *testing.T) {
	_, err := telemetry.StartProfiler(telemetry.ProfilerConfig{Enabled: true, ApplicationName: "advisor"}, nil, nil)
	assert.Error(t, err)
}

func TestWithProfileLabels(t *testing.T) {
	var provider string
	telemetry.WithProfileLabels(context.Background(), func(ctx context.Context) {
		provider, _ = pprof.Label(ctx, "crm_provider")
	}, "crm_provider", "salesforce", "dangling")
	assert.Equal(t, "salesforce", provider)

	called := false
	telemetry.WithProfileLabels(context.Background(), func(context.Context) { called = true })
	assert.True(t, called)
}

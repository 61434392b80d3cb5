package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)
	quieter, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
	assert.Equal(t, gormlogger.Error, quieter.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx, _ := WithTenantID(context.Background(), nil, "tenant-a")
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []GormLoggerOption
		elapsed time.Duration
		err     error
		wantMsg string
		wantLvl zapcore.Level
	}{
		{name: "error", level: gormlogger.Warn, err: errors.New("constraint failed"), wantMsg: "SQL error", wantLvl: zapcore.ErrorLevel},
		{name: "record not found ignored", level: gormlogger.Info, err: gormlogger.ErrRecordNotFound},
		{name: "record not found logged", level: gormlogger.Info, err: gormlogger.ErrRecordNotFound,
			opts: []GormLoggerOption{WithIgnoreRecordNotFoundError(false)}, wantMsg: "SQL error", wantLvl: zapcore.ErrorLevel},
		{name: "slow", level: gormlogger.Warn, opts: []GormLoggerOption{WithSlowThreshold(time.Millisecond)},
			elapsed: 50 * time.Millisecond, wantMsg: "Slow SQL", wantLvl: zapcore.WarnLevel},
		{name: "slow disabled", level: gormlogger.Warn, opts: []GormLoggerOption{WithSlowThreshold(0)}, elapsed: time.Second},
		{name: "normal at info", level: gormlogger.Info, wantMsg: "SQL", wantLvl: zapcore.DebugLevel},
		{name: "normal at warn", level: gormlogger.Warn},
		{name: "silent", level: gormlogger.Silent, err: errors.New("ignored")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gl, recorded := newObservedGormLogger(tt.level, tt.opts...)
			gl.Trace(ctx, time.Now().Add(-tt.elapsed), statement("SELECT * FROM crm_households", 3), tt.err)

			if tt.wantMsg == "" {
				assert.Zero(t, recorded.Len())
				return
			}
			require.Equal(t, 1, recorded.Len())
			entry := recorded.All()[0]
			assert.Equal(t, tt.wantMsg, entry.Message)
			assert.Equal(t, tt.wantLvl, entry.Level)
			assert.Equal(t, "gorm", entry.LoggerName)
			fields := entry.ContextMap()
			assert.Equal(t, "SELECT * FROM crm_households", fields["sql"])
			assert.Equal(t, int64(3), fields["rows"])
			assert.Equal(t, "tenant-a", fields["tenant_id"])
		})
	}
}

func TestGormLogger_Messages(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "migrating %s", "crm_tasks")
	gl.Warn(ctx, "deprecated column %s", "due")
	gl.Error(ctx, "failed: %v", errors.New("locked"))

	entries := recorded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "deprecated column due", entries[0].Message)
	assert.Equal(t, "failed: locked", entries[1].Message)
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("anything"))
}

package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func openInstrumentedDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func int64Points(t *testing.T, m metricdata.Metrics) []metricdata.DataPoint[int64] {
	t.Helper()
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		return data.DataPoints
	case metricdata.Gauge[int64]:
		return data.DataPoints
	default:
		t.Fatalf("%s has unexpected data type %T", m.Name, m.Data)
		return nil
	}
}

func TestInstrumentDB_QueryMetrics(t *testing.T) {
	provider, reader := newTestMeter(t)
	db := openInstrumentedDB(t)

	in, err := telemetry.InstrumentDB(db, provider.Meter("db"), telemetry.DBConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })

	ctx := context.Background()
	require.NoError(t, db.AutoMigrate(&note{}))
	require.NoError(t, db.WithContext(ctx).Create(&note{Body: "review allocation"}).Error)
	var got []note
	require.NoError(t, db.WithContext(ctx).Find(&got).Error)
	require.NoError(t, db.WithContext(ctx).Exec("DELETE FROM notes").Error)

	metrics := collect(t, reader)
	require.Contains(t, metrics, "db_query_total")

	ops := map[string]int64{}
	for _, dp := range int64Points(t, metrics["db_query_total"]) {
		op, _ := dp.Attributes.Value(telemetry.AttrDBOperation)
		ops[op.AsString()] += dp.Value
	}
	assert.Equal(t, int64(1), ops["create"])
	assert.GreaterOrEqual(t, ops["select"], int64(1))
	assert.Equal(t, int64(1), ops["delete"], "raw statements are classified by keyword")

	assert.Contains(t, metrics, "db_query_duration_seconds")

	maxConns := int64Points(t, metrics["db_pool_connections_max"])
	require.Len(t, maxConns, 1)
	assert.Equal(t, int64(1), maxConns[0].Value)
	assert.Len(t, int64Points(t, metrics["db_pool_connections"]), 2)
}

func TestInstrumentDB_SlowQueries(t *testing.T) {
	provider, reader := newTestMeter(t)
	db := openInstrumentedDB(t)
	core, logs := observer.New(zapcore.WarnLevel)

	// A 1ns threshold marks every statement slow.
	in, err := telemetry.InstrumentDB(db, provider.Meter("db"), telemetry.DBConfig{SlowQueryThreshold: 1}, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })

	require.NoError(t, db.AutoMigrate(&note{}))
	require.NoError(t, db.WithContext(context.Background()).Create(&note{Body: "x"}).Error)

	metrics := collect(t, reader)
	require.Contains(t, metrics, "db_slow_query_total")
	assert.NotZero(t, logs.FilterMessage("Slow query").Len())
}

func TestInstrumentDB_Tracing(t *testing.T) {
	sr := setupTestTracer(t)
	db := openInstrumentedDB(t)

	in, err := telemetry.InstrumentDB(db, nil, telemetry.DBConfig{Tracing: true}, nil)
	require.NoError(t, err)
	assert.NoError(t, in.Close())

	require.NoError(t, db.AutoMigrate(&note{}))
	before := len(sr.Ended())

	ctx, parent := telemetry.StartSpan(context.Background(), "crm.local.CreateTask")
	require.NoError(t, db.WithContext(ctx).Create(&note{Body: "call client"}).Error)
	parent.End()

	spans := sr.Ended()[before:]
	require.Len(t, spans, 2)
	assert.Equal(t, parent.SpanContext().SpanID(), spans[0].Parent().SpanID())
}

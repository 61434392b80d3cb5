package telemetry

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls database instrumentation.
type DBConfig struct {
	// Tracing registers otelgorm spans on every statement
	Tracing bool
	// WithQueryVariables keeps bind values in span statements (development only)
	WithQueryVariables bool
	// DBSystem names the database in spans (postgresql, sqlite)
	DBSystem string
	// SlowQueryThreshold marks slow statements; zero means 200ms
	SlowQueryThreshold time.Duration
}

type queryStartKey struct{}

// DBInstrumentation records statement metrics and connection pool gauges
// for one gorm handle.
type DBInstrumentation struct {
	config DBConfig
	logger *zap.Logger

	queryTotal     *Counter
	slowQueryTotal *Counter
	queryDuration  *Histogram
	registration   metric.Registration
}

// InstrumentDB attaches tracing and metric callbacks to db. meter may be nil,
// in which case only tracing is registered.
func InstrumentDB(db *gorm.DB, meter metric.Meter, cfg DBConfig, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = db.Dialector.Name()
	}
	in := &DBInstrumentation{config: cfg, logger: logger}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.WithQueryVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}

	if meter == nil {
		return in, nil
	}
	if err := in.initInstruments(meter); err != nil {
		return nil, err
	}
	if err := in.registerPoolGauges(db, meter); err != nil {
		return nil, err
	}
	if err := in.registerCallbacks(db); err != nil {
		return nil, err
	}

	logger.Info("Database instrumentation enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Bool("tracing", cfg.Tracing),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return in, nil
}

func (in *DBInstrumentation) initInstruments(meter metric.Meter) error {
	b := NewInstruments(meter)
	in.queryTotal = b.Counter("db_query_total", "Total number of database statements by operation", "{query}")
	in.slowQueryTotal = b.Counter("db_slow_query_total", "Database statements slower than the configured threshold", "{query}")
	in.queryDuration = b.Duration("db_query_duration_seconds", "Database statement latency in seconds", DBDurationBuckets)
	return b.Err()
}

// registerPoolGauges reports sql.DB pool stats at each collection.
func (in *DBInstrumentation) registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for because the pool was exhausted"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return err
	}

	in.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waits, stats.WaitCount)
		return nil
	}, connections, maxOpen, waits)
	return err
}

func (in *DBInstrumentation) registerCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	registrations := []func() error{
		func() error { return cb.Create().Before("gorm:create").Register("metrics:before_create", in.before) },
		func() error {
			return cb.Create().After("gorm:create").Register("metrics:after_create", in.after("create"))
		},
		func() error { return cb.Query().Before("gorm:query").Register("metrics:before_query", in.before) },
		func() error {
			return cb.Query().After("gorm:query").Register("metrics:after_query", in.after("select"))
		},
		func() error { return cb.Update().Before("gorm:update").Register("metrics:before_update", in.before) },
		func() error {
			return cb.Update().After("gorm:update").Register("metrics:after_update", in.after("update"))
		},
		func() error { return cb.Delete().Before("gorm:delete").Register("metrics:before_delete", in.before) },
		func() error {
			return cb.Delete().After("gorm:delete").Register("metrics:after_delete", in.after("delete"))
		},
		func() error { return cb.Row().Before("gorm:row").Register("metrics:before_row", in.before) },
		func() error { return cb.Row().After("gorm:row").Register("metrics:after_row", in.after("select")) },
		func() error { return cb.Raw().Before("gorm:raw").Register("metrics:before_raw", in.before) },
		func() error { return cb.Raw().After("gorm:raw").Register("metrics:after_raw", in.after("raw")) },
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

func (in *DBInstrumentation) before(db *gorm.DB) {
	if db.Statement.Context == nil {
		db.Statement.Context = context.Background()
	}
	db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
}

func (in *DBInstrumentation) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		start, ok := ctx.Value(queryStartKey{}).(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		attrs := []attribute.KeyValue{
			AttrDBOperation.String(operationFor(op, db.Statement.SQL.String())),
			AttrDBTable.String(db.Statement.Table),
		}
		in.queryTotal.Inc(ctx, attrs...)
		in.queryDuration.Observe(ctx, elapsed, attrs...)
		if elapsed >= in.config.SlowQueryThreshold {
			in.slowQueryTotal.Inc(ctx, attrs...)
			in.logger.Warn("Slow query",
				zap.String("table", db.Statement.Table),
				zap.Duration("elapsed", elapsed),
			)
		}
	}
}

// operationFor refines raw statements by their leading keyword.
func operationFor(op, sql string) string {
	if op != "raw" {
		return op
	}
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return op
	}
	switch kw := strings.ToLower(fields[0]); kw {
	case "select", "insert", "update", "delete", "with":
		return kw
	default:
		return op
	}
}

// Close unregisters the pool gauge callback.
func (in *DBInstrumentation) Close() error {
	if in == nil || in.registration == nil {
		return nil
	}
	return in.registration.Unregister()
}

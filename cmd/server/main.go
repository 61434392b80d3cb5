package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/advisorhub/backend/internal/application/practice"
	"github.com/advisorhub/backend/internal/infrastructure/auth"
	"github.com/advisorhub/backend/internal/infrastructure/config"
	"github.com/advisorhub/backend/internal/infrastructure/crm/local"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/infrastructure/persistence"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
	"github.com/advisorhub/backend/internal/interfaces/http/handler"
	"github.com/advisorhub/backend/internal/interfaces/http/middleware"
	"github.com/advisorhub/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "advisor-backend: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := logger.ForEnvironment(cfg.App.Env, logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	base, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = base.Sync()
	}()
	level, _ := logger.ParseLevel(logCfg.Level)

	ctx := context.Background()
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		ExportLogs:        cfg.Telemetry.ExportLogs,
	}, base)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	log := providers.Bridge(base, level)

	log.Info("Starting advisor backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.String("crm_provider", cfg.CRM.Provider),
	)

	profiler, err := telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
		SpanProfiles:      cfg.Profiling.SpanProfiles,
	}, providers, log)
	if err != nil {
		return err
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return err
	}
	if db.Driver == persistence.DriverSQLite {
		if err := db.AutoMigrate(local.Models()...); err != nil {
			return err
		}
	}
	log.Info("Database connected", zap.String("driver", db.Driver))

	dbInstr, err := telemetry.InstrumentDB(db.DB, providers.Meter("advisor/db"), telemetry.DBConfig{
		Tracing: cfg.Telemetry.Enabled && cfg.Telemetry.DBTracing,
	}, log)
	if err != nil {
		return err
	}

	crmMetrics, err := telemetry.NewCRMMetrics(telemetry.CRMMetricsConfig{
		Meter:  providers.Meter("advisor/crm"),
		Logger: log,
	})
	if err != nil {
		return err
	}

	registry, err := buildRegistry(ctx, cfg, db, crmMetrics, log)
	if err != nil {
		return err
	}
	if err := registry.Init(); err != nil {
		return err
	}

	service := practice.NewService(registry, practice.WithLogger(log))
	verifier := auth.NewVerifier(cfg.Auth)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(cfg.Telemetry.ServiceName, providers.Enabled()),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.CORS(middleware.CORSConfig{
			AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
			AllowMethods:  cfg.HTTP.CORSAllowMethods,
			AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders: []string{"X-Request-ID"},
			MaxAge:        12 * time.Hour,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.RequestTimeout),
		middleware.HTTPMetrics(providers.Meter("advisor/http")),
	)

	api := []gin.HandlerFunc{
		middleware.Identity(middleware.IdentityConfig{
			Verifier:     verifier,
			AllowHeaders: cfg.Auth.AllowHeaderIdentity,
			Logger:       log,
		}),
		middleware.TraceAttributes(),
		middleware.ProfileLabels(),
	}
	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
		api = append(api, middleware.RateLimit(limiter))
	}

	router.NewRouter(engine, router.WithAPIVersion("v1"), router.WithMiddleware(api...)).
		RegisterPublic(handler.NewHealthHandler(registry, db, version)).
		Register(handler.NewHouseholdHandler(registry)).
		Register(handler.NewContactHandler(registry)).
		Register(handler.NewTaskHandler(registry)).
		Register(handler.NewFinancialAccountHandler(registry)).
		Register(handler.NewPracticeHandler(registry, service)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if limiter != nil {
		limiter.Stop()
	}
	if err := dbInstr.Close(); err != nil {
		log.Warn("Error removing database instrumentation", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		base.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited")
	return runErr
}

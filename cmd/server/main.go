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

	"github.com/joho/godotenv"

	"github.com/acoplu/borsa-aslani/internal/api"
	"github.com/acoplu/borsa-aslani/internal/cache"
	"github.com/acoplu/borsa-aslani/internal/config"
	"github.com/acoplu/borsa-aslani/internal/database"
	"github.com/acoplu/borsa-aslani/internal/logging"
	"github.com/acoplu/borsa-aslani/internal/metrics"
	"github.com/acoplu/borsa-aslani/internal/services"
	"github.com/acoplu/borsa-aslani/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var connectRetry = database.DefaultRetryPolicy()

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and config file still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)

	if err := telemetry.InitTelemetry(telemetryConfig(cfg)); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := buildDependencies(ctx, cfg, logger, metrics.New())
	if err != nil {
		return err
	}
	defer cleanup()

	srv := newHTTPServer(cfg.Server.Port, api.NewRouter(deps))

	serveErr := make(chan error, 1)
	go func() {
		logger.LogStartup(deps.ServiceName, deps.Version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.LogShutdown(deps.ServiceName, "signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Logger().Info("Server exited gracefully")
	return nil
}

// buildDependencies connects the enabled backends and assembles the
// preparation service. The returned cleanup closes whatever was opened.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *logging.StandardLogger, recorder *metrics.Recorder) (api.Dependencies, func(), error) {
	deps := api.Dependencies{
		Metrics:        recorder,
		Logger:         logger,
		ServiceName:    cfg.Telemetry.ServiceName,
		Version:        telemetry.ServiceVersion,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := []services.PreparationOption{services.WithMetrics(recorder)}

	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnectionWithRetry(ctx, cfg.Database, connectRetry)
		if err != nil {
			cleanup()
			return api.Dependencies{}, nil, err
		}
		closers = append(closers, db.Close)
		deps.DB = db
		deps.Prices = database.NewPriceRepository(database.NewTracedPool(db.Pool))
	} else {
		logger.Logger().Info("Database disabled; price endpoints will return 503")
	}

	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisConnectionWithRetry(ctx, cfg.Redis, connectRetry)
		if err != nil {
			cleanup()
			return api.Dependencies{}, nil, err
		}
		closers = append(closers, rdb.Close)

		ttl, err := cfg.Pipeline.ScalerTTLDuration()
		if err != nil {
			cleanup()
			return api.Dependencies{}, nil, fmt.Errorf("invalid scaler TTL: %w", err)
		}
		store := cache.NewRedisScalerStore(rdb.Client, ttl, logger.Logger())
		deps.Redis = rdb
		deps.Scalers = store
		opts = append(opts, services.WithScalerStore(store))
	} else {
		logger.Logger().Info("Redis disabled; scalers will not be persisted")
	}

	prepCfg, err := services.PreparationConfigFrom(cfg)
	if err != nil {
		cleanup()
		return api.Dependencies{}, nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	svc, err := services.NewPreparationService(prepCfg, logger.Logger(), opts...)
	if err != nil {
		cleanup()
		return api.Dependencies{}, nil, fmt.Errorf("failed to create preparation service: %w", err)
	}
	deps.Preparation = svc

	return deps, cleanup, nil
}

func telemetryConfig(cfg *config.Config) telemetry.TelemetryConfig {
	tc := *telemetry.DefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Exporter = cfg.Telemetry.Exporter
	if cfg.Telemetry.Endpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.Endpoint
	}
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.Environment = cfg.Environment
	return tc
}

// newHTTPServer wraps handler with the read, write and idle timeouts.
func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

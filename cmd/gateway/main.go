package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"snapgate/internal/config"
	"snapgate/internal/handlers"
	"snapgate/internal/httpserver"
	"snapgate/internal/metrics"
	"snapgate/internal/telemetry"
	"snapgate/internal/upstream"
	"snapgate/pkg/interceptor"
	"snapgate/pkg/logging/logging"
	"snapgate/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./"+config.DefaultFile+" if present)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run(configPath string) error {
	// ----- Config -----
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()
	logging.SetDefault(logger)

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.Int("port", cfg.Server.Port),
		zap.String("snapshot_dir", cfg.Snapshot.Dir),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
		zap.Bool("update_snapshot", cfg.Snapshot.Update),
		zap.String("test", cfg.Snapshot.Test),
		zap.String("upstream_base_url", cfg.Upstream.BaseURL),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)

	// ----- Tracing -----
	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer shutdown error", zap.Error(err))
			}
		}()
	}

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Snapshot.Backend == store.BackendRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
	}

	// ----- Snapshot store -----
	backend, err := store.NewStore(store.Config{
		Backend: cfg.Snapshot.Backend,
		BaseDir: cfg.Snapshot.Dir,
		Prefix:  cfg.Redis.Prefix,
	}, redisClient)
	if err != nil {
		return err
	}
	snapshots := store.NewLoggingStore(backend, nil)

	// ----- Live transport -----
	live := upstream.New(upstream.Config{
		Timeout:     cfg.Upstream.Timeout,
		MaxRetries:  cfg.Upstream.MaxRetries,
		BaseBackoff: cfg.Upstream.BaseBackoff,
		Tracing:     cfg.Tracing.Enabled,
	}, logger)

	// ----- Interceptor -----
	test, err := cfg.TestPattern()
	if err != nil {
		return err
	}
	ic, err := interceptor.New(interceptor.Config{
		Test:           test,
		SnapshotDir:    cfg.Snapshot.Dir,
		UpdateSnapshot: cfg.Snapshot.Update,
	},
		interceptor.WithStore(snapshots),
		interceptor.WithTransport(live),
	)
	if err != nil {
		return err
	}

	// ----- Handlers -----
	snapshotHandler, err := handlers.NewSnapshotHandler(ic, live, cfg.Upstream.BaseURL)
	if err != nil {
		return err
	}

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, snapshotHandler, httpserver.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Tracing:        cfg.Tracing.Enabled,
	})

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"sitewatch/internal/config"
	"sitewatch/internal/httpapi"
	"sitewatch/internal/httpapi/middleware"
	"sitewatch/internal/logging"
	"sitewatch/internal/probe"
	"sitewatch/internal/repo"
	"sitewatch/internal/repo/memory"
	"sitewatch/internal/repo/postgres"
	"sitewatch/internal/repo/sqlite"
	"sitewatch/internal/scheduler"
	"sitewatch/internal/tracker"
)

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer closeStore()

	svc := tracker.New(store, store, store, logger)

	httpChecker := probe.NewHTTPChecker(cfg.HTTPTimeout)
	var checker probe.Checker = httpChecker
	if cfg.RetryAttempts > 1 {
		checker = &probe.RetryChecker{
			Inner:    httpChecker,
			Attempts: cfg.RetryAttempts,
			Backoff:  cfg.RetryBackoff,
		}
	}

	api := httpapi.NewServer(logger, svc, checker)
	api.Fetcher = httpChecker
	api.Keys = middleware.Keys{Owners: cfg.OwnerAPIKeys, Admin: cfg.AdminAPIKeys}
	api.Limits = httpapi.Limits{
		PublicRPM:   cfg.PublicRPM,
		PublicBurst: cfg.PublicBurst,
		AdminRPM:    cfg.AdminRPM,
		AdminBurst:  cfg.AdminBurst,
	}
	api.Origins = cfg.AllowedOrigins

	rechecker := scheduler.NewRechecker(
		logger, svc, store, store, checker,
		cfg.CheckInterval, cfg.HTTPTimeout, cfg.MaxConcurrentChecks, cfg.RetentionDays,
	)
	rechecker.Fetcher = httpChecker
	go rechecker.Run(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: api.Router()}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("api_serve_failed", zap.Error(err))
	}
}

// openStore picks the backing store: postgres when DATABASE_URL is set,
// sqlite when SQLITE_PATH is set, in-memory otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		st, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store_open", zap.String("backend", "postgres"))
		return st, st.Close, nil
	case cfg.SQLitePath != "":
		st, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store_open", zap.String("backend", "sqlite"), zap.String("path", cfg.SQLitePath))
		return st, func() { _ = st.Close() }, nil
	default:
		logger.Warn("store_open", zap.String("backend", "memory"))
		return memory.New(), func() {}, nil
	}
}

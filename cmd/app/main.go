package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wa-bridge/internal/ai"
	"wa-bridge/internal/cache"
	"wa-bridge/internal/config"
	"wa-bridge/internal/convo"
	"wa-bridge/internal/directory"
	"wa-bridge/internal/httpserver"
	"wa-bridge/internal/logging"
	"wa-bridge/internal/mediastore"
	"wa-bridge/internal/metrics"
	"wa-bridge/internal/repo"
	"wa-bridge/internal/wa"
	"wa-bridge/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting wa-bridge", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := newRepository(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed, continuing without cache hits", "error", err)
		}
	} else {
		logger.Info("redis not configured, channel config caching disabled")
	}

	tenantDirectory := directory.New(repository, redisClient, logger, cfg.ConfigCacheTTL)

	waClient := wa.New(wa.Config{
		BaseURL: cfg.GraphBaseURL,
		Timeout: cfg.GraphTimeout,
	}, logger, metricRegistry)

	aiClient := ai.New(ai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		VisionModel: cfg.OpenAIVisionModel,
		AudioModel:  cfg.OpenAIAudioModel,
		Timeout:     cfg.OpenAITimeout,
	}, logger, metricRegistry)

	mediaStore := mediastore.New(cfg.MediaDir, logger)

	engine := convo.New(repository, tenantDirectory, waClient, aiClient, mediaStore, metricRegistry, logger, convo.EngineConfig{
		HistoryLimit: cfg.HistoryLimit,
	})

	webhookHandler := wa.NewWebhookHandler(logger, metricRegistry, tenantDirectory, engine, cfg.ProcessTimeout)

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Handlers{
		Webhook: webhookHandler,
	}, cfg.PublicBasePath)
	httpSrv.SetDependencies(httpserver.Dependencies{
		Repository: repository,
		Directory:  tenantDirectory,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

// newRepository selects the storage backend: Postgres when DATABASE_URL is
// set, a local SQLite file otherwise.
func newRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Repository, error) {
	if cfg.DatabaseURL != "" {
		return repo.NewPostgres(ctx, cfg.DatabaseURL, logger)
	}
	logger.Info("DATABASE_URL not set, using sqlite", "path", cfg.SQLitePath)
	return repo.NewSQLite(ctx, cfg.SQLitePath, logger)
}

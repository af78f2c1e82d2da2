package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/arthgyan/onboarding/internal/config"
	"github.com/arthgyan/onboarding/internal/infra"
	"github.com/arthgyan/onboarding/internal/logging"
	"github.com/arthgyan/onboarding/internal/notification"
	"github.com/arthgyan/onboarding/internal/provider"
	"github.com/arthgyan/onboarding/internal/routes"
	"github.com/arthgyan/onboarding/internal/server"
	"github.com/arthgyan/onboarding/internal/subject"
)

const connectTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	checks := map[string]routes.HealthCheck{}
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	repo, err := openStore(ctx, cfg, logger, checks, &cleanups)
	if err != nil {
		return err
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		})
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx).Err() }
	} else {
		logger.Warn("REDIS_URL not set; idempotency, otp rate limiting and pincode caching are disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := provider.NewMetrics(registry)

	issuer := provider.ClientCredentials{
		TokenURL:     cfg.Provider.TokenURL,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		Timeout:      cfg.Provider.Timeout,
	}
	tokens := provider.NewCredentialCache(issuer,
		provider.WithRefreshMargin(cfg.Provider.RefreshMargin),
		provider.WithRefreshTimeout(cfg.Provider.Timeout),
		provider.WithCacheMetrics(metrics),
	)
	client := provider.NewClient(tokens, provider.Options{
		BaseURL:           cfg.Provider.BaseURL,
		Timeout:           cfg.Provider.Timeout,
		RequestsPerSecond: cfg.Provider.RequestsPerS,
		Metrics:           metrics,
		Logger:            logger,
	})

	notifier := notification.Router{SMS: notification.NewLoggerNotifier(logger)}
	if cfg.SMTP.Host != "" {
		notifier.Email = notification.NewEmailNotifier(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
	}

	srv, err := server.New(cfg, routes.Deps{
		Subjects: repo,
		Provider: client,
		Notifier: notifier,
		Cache:    cache,
		Metrics:  registry,
		Checks:   checks,
	}, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Address(), "store", cfg.StoreDriver, "env", cfg.AppEnv)
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore connects the subject store selected by STORE_DRIVER and
// registers its health check and cleanup.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, checks map[string]routes.HealthCheck, cleanups *[]func()) (subject.Repository, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{AppName: cfg.AppName})
		if err != nil {
			return nil, err
		}
		*cleanups = append(*cleanups, db.Close)
		checks["postgres"] = db.Ping

		repo := subject.NewPostgresRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	case config.StoreMongo:
		client, err := infra.NewMongoClient(ctx, cfg.MongoURI, cfg.AppName)
		if err != nil {
			return nil, err
		}
		*cleanups = append(*cleanups, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("close mongo", "error", err)
			}
		})
		checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

		repo := subject.NewMongoRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return repo, nil

	default:
		logger.Warn("using in-memory subject store; data is lost on restart")
		return subject.NewMemoryRepository(), nil
	}
}

// Package main - точка входа сервиса прогрессии.
//
// Процесс поднимает движок (XP, уровни, миссии, бейджи, лидерборд),
// REST API на fiber и фоновые задачи:
// - Прогрев кеша лидерборда
// - Сверка журнала XP с итоговыми суммами
// - Еженедельный архив лидерборда в S3
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/alem-hub/alem-progression/config"
	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/bootstrap"
	"github.com/alem-hub/alem-progression/internal/infrastructure/messaging"
	httpiface "github.com/alem-hub/alem-progression/internal/interface/http"
	"github.com/alem-hub/alem-progression/internal/interface/http/handlers"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// SIGINT/SIGTERM отменяют корневой контекст
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	// .env необязателен: в проде переменные приходят из окружения.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := bootstrap.NewLogger(cfg, os.Stdout)
	slog.SetDefault(log)
	log.Info("starting progression service",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("timezone", cfg.App.Timezone))

	flags, err := config.NewFeatureFlags(cfg.Features)
	if err != nil {
		return fmt.Errorf("feature flags: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КАТАЛОГ И ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	cat, err := config.LoadCatalog(cfg.Engine.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	backend, err := bootstrap.OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		log.Info("closing storage...")
		if err := backend.Close(); err != nil {
			log.Error("storage close failed", logger.Err(err))
		}
	}()

	if err := backend.Prepare(ctx, cfg.Storage, cat, log); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	cache, err := bootstrap.OpenCache(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if cache != nil {
		defer cache.Close()
		log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. СОБЫТИЯ И УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: cfg.Engine.EventWorkers,
		Logger:         log,
	})
	defer func() {
		if err := bus.Close(); err != nil {
			log.Error("event bus close failed", logger.Err(err))
		}
	}()

	sinks, err := bootstrap.BuildSinks(cfg.Notifier, log)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ДВИЖОК
	// ─────────────────────────────────────────────────────────────────────────
	opts, err := bootstrap.EngineOptions(cfg, cat, backend, cache, flags, log)
	if err != nil {
		return err
	}
	opts.Bus = bus
	opts.Sink = sinks.Sink

	eng, err := engine.New(opts)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := setupScheduler(ctx, cfg, flags, eng, cache, opts.Cache != nil, log)
	if err != nil {
		return err
	}
	if sched != nil {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version, nil)
	health.AddCheck("storage", handlers.NewPingCheck(backend))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	}
	if sinks.Webhook != nil {
		health.AddOptionalCheck("webhook", handlers.NewBreakerCheck(sinks.Webhook.Breaker()))
	}

	var server *httpiface.Server
	var serverErr <-chan error
	if cfg.HTTP.Enabled {
		server = httpiface.NewServer(httpiface.Config{
			Host:          cfg.HTTP.Host,
			Port:          cfg.HTTP.Port,
			ReadTimeout:   cfg.HTTP.ReadTimeout,
			WriteTimeout:  cfg.HTTP.WriteTimeout,
			IdleTimeout:   cfg.HTTP.IdleTimeout,
			APIKeyHeader:  "X-API-Key",
			APIKeys:       cfg.HTTP.APIKeys,
			WebhookSecret: cfg.HTTP.WebhookSecret,
		}, httpiface.Dependencies{
			Service: eng,
			Health:  health,
			Logger:  log,
			Name:    cfg.App.Name,
			Version: cfg.App.Version,
		})
		serverErr = server.StartAsync()
	}

	log.Info("progression service started")

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ОЖИДАНИЕ СИГНАЛА И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok && err != nil {
			runErr = err
			log.Error("http server stopped", logger.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", logger.Err(err))
		}
	}
	if sched != nil {
		if err := sched.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("scheduler stop failed", logger.Err(err))
		}
	}
	bus.Wait()

	log.Info("progression service stopped")
	return runErr
}

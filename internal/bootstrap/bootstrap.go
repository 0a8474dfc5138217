// Package bootstrap собирает зависимости движка из конфигурации.
// Используется обоими бинарниками: cmd/worker и cmd/progressionctl.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alem-hub/alem-progression/config"
	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/domain/catalog"
	"github.com/alem-hub/alem-progression/internal/domain/notification"
	"github.com/alem-hub/alem-progression/internal/infrastructure/notifier"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// NewLogger строит корневой логгер из секций App и Log.
func NewLogger(cfg *config.Config, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}
	return logger.New(logger.Options{
		Output:  out,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Env:     string(cfg.App.Environment),
		Version: cfg.App.Version,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE BACKEND
// ══════════════════════════════════════════════════════════════════════════════

// SyncSummary counts catalog rows written by SyncCatalog.
type SyncSummary struct {
	Levels      int `json:"levels"`
	Badges      int `json:"badges"`
	Missions    int `json:"missions"`
	Deactivated int `json:"deactivated"`
}

// Backend is the selected persistence driver behind one handle.
type Backend struct {
	Driver string
	Store  engine.Store

	// Postgres is set only for the postgres driver.
	Postgres *postgres.Connection

	ping    func(context.Context) error
	migrate func(context.Context) (int, error)
	sync    func(context.Context, *catalog.Catalog) (SyncSummary, error)
	close   func() error
}

// OpenBackend connects to the configured storage driver. Migrations are
// not applied here.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.DatabaseURL)
		pgCfg.MaxConns = cfg.MaxConns
		pgCfg.MinConns = cfg.MinConns
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		st := postgres.NewStore(conn)
		return &Backend{
			Driver:   cfg.Driver,
			Store:    st,
			Postgres: conn,
			ping:     st.Ping,
			migrate:  postgres.NewMigrator(conn).Migrate,
			sync: func(ctx context.Context, cat *catalog.Catalog) (SyncSummary, error) {
				res, err := st.SyncCatalog(ctx, cat)
				return SyncSummary(res), err
			},
			close: st.Close,
		}, nil

	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath, sqlite.Options{BusyTimeout: cfg.SQLiteBusyTimeout})
		if err != nil {
			return nil, err
		}
		return &Backend{
			Driver:  cfg.Driver,
			Store:   st,
			ping:    st.Ping,
			migrate: st.Migrate,
			sync: func(ctx context.Context, cat *catalog.Catalog) (SyncSummary, error) {
				res, err := st.SyncCatalog(ctx, cat)
				return SyncSummary(res), err
			},
			close: st.Close,
		}, nil

	case config.DriverMemory:
		st := memory.NewStore()
		return &Backend{
			Driver:  cfg.Driver,
			Store:   st,
			ping:    st.Ping,
			migrate: func(context.Context) (int, error) { return 0, nil },
			sync: func(context.Context, *catalog.Catalog) (SyncSummary, error) {
				return SyncSummary{}, nil
			},
			close: st.Close,
		}, nil

	default:
		return nil, fmt.Errorf("bootstrap: unknown storage driver %q", cfg.Driver)
	}
}

// Ping checks the backend.
func (b *Backend) Ping(ctx context.Context) error { return b.ping(ctx) }

// Migrate applies pending migrations and returns how many ran.
func (b *Backend) Migrate(ctx context.Context) (int, error) { return b.migrate(ctx) }

// SyncCatalog writes catalog definitions into the backend tables.
// The memory driver reads the catalog directly and has nothing to sync.
func (b *Backend) SyncCatalog(ctx context.Context, cat *catalog.Catalog) (SyncSummary, error) {
	return b.sync(ctx, cat)
}

// Close releases the backend.
func (b *Backend) Close() error { return b.close() }

// Prepare runs migrations (when enabled) and syncs the catalog.
func (b *Backend) Prepare(ctx context.Context, cfg config.StorageConfig, cat *catalog.Catalog, log *slog.Logger) error {
	if cfg.MigrateOnStart {
		n, err := b.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", slog.String("driver", b.Driver), slog.Int("count", n))
	}
	res, err := b.SyncCatalog(ctx, cat)
	if err != nil {
		return fmt.Errorf("sync catalog: %w", err)
	}
	log.Info("catalog synced",
		slog.Int("levels", res.Levels),
		slog.Int("badges", res.Badges),
		slog.Int("missions", res.Missions),
		slog.Int("deactivated", res.Deactivated))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// OpenCache connects to Redis when enabled. It returns nil, nil otherwise.
func OpenCache(ctx context.Context, cfg config.RedisConfig) (*redis.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return redis.NewCache(ctx, redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   3,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		KeyPrefix:    cfg.KeyPrefix,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Sinks is the assembled notification pipeline.
type Sinks struct {
	Sink    notification.Sink
	Webhook *notifier.WebhookSink
}

// BuildSinks assembles the log, webhook and Telegram sinks. Sink is nil when none
// is configured.
func BuildSinks(cfg config.NotifierConfig, log *slog.Logger) (Sinks, error) {
	fan := notifier.NewFanoutSink()
	var out Sinks

	if cfg.LogNotifications {
		fan.Add(notification.ChannelLog, notifier.NewLogSink(log))
	}
	if cfg.WebhookURL != "" {
		wh, err := notifier.NewWebhookSink(notifier.WebhookConfig{
			URL:             cfg.WebhookURL,
			Secret:          cfg.WebhookSecret,
			Timeout:         cfg.Timeout,
			BreakerFailures: cfg.BreakerFailures,
			BreakerOpenFor:  cfg.BreakerOpenFor,
			Logger:          log,
		})
		if err != nil {
			return Sinks{}, err
		}
		fan.Add(notification.ChannelWebhook, wh)
		out.Webhook = wh
	}
	if cfg.TelegramToken != "" {
		types := make([]notification.Type, 0, len(cfg.TelegramTypes))
		for _, t := range cfg.TelegramTypes {
			nt := notification.Type(strings.TrimSpace(t))
			if !nt.IsValid() {
				return Sinks{}, fmt.Errorf("telegram: unknown notification type %q", t)
			}
			types = append(types, nt)
		}
		tg, err := notifier.NewTelegramSink(notifier.TelegramConfig{
			Token:   cfg.TelegramToken,
			ChatID:  cfg.TelegramChatID,
			Timeout: cfg.Timeout,
			Types:   types,
			Logger:  log,
		})
		if err != nil {
			return Sinks{}, err
		}
		fan.Add(notification.ChannelTelegram, tg)
	}

	if fan.Len() > 0 {
		out.Sink = fan
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// EngineOptions maps config onto engine.Options. The leaderboard cache is
// attached only when Redis is connected and the cache flag is on.
func EngineOptions(cfg *config.Config, cat *catalog.Catalog, backend *Backend, cache *redis.Cache,
	flags *config.FeatureFlags, log *slog.Logger) (engine.Options, error) {
	if cat == nil || backend == nil {
		return engine.Options{}, errors.New("bootstrap: catalog and backend are required")
	}

	opts := engine.Options{
		Catalog:             cat,
		Store:               backend.Store,
		CacheTTL:            cfg.Redis.LeaderboardTTL,
		AutoCheckBadges:     cfg.Engine.AutoCheckBadges,
		Location:            cfg.App.Location,
		Logger:              log,
		TxMaxAttempts:       cfg.Engine.TxMaxAttempts,
		TxInitialDelay:      cfg.Engine.TxInitialDelay,
		TxMaxDelay:          cfg.Engine.TxMaxDelay,
		DefaultPageSize:     cfg.Engine.DefaultPageSize,
		MaxPageSize:         cfg.Engine.MaxPageSize,
		NotificationTimeout: cfg.Engine.NotificationTimeout,
	}
	if flags != nil {
		opts.Gate = flags
	}
	if cache != nil && (flags == nil || flags.IsEnabled(config.FeatureLeaderboardCache)) {
		opts.Cache = redis.NewLeaderboardCache(cache)
	}
	return opts, nil
}

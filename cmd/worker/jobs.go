package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/alem-progression/config"
	"github.com/alem-hub/alem-progression/internal/application/engine"
	"github.com/alem-hub/alem-progression/internal/infrastructure/archive"
	"github.com/alem-hub/alem-progression/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/alem-progression/internal/infrastructure/scheduler"
	"github.com/alem-hub/alem-progression/internal/infrastructure/scheduler/jobs"
)

// setupScheduler registers the background jobs enabled by config and flags.
// It returns nil when the scheduler is disabled.
func setupScheduler(ctx context.Context, cfg *config.Config, flags *config.FeatureFlags, eng *engine.Engine,
	cache *redis.Cache, cacheOn bool, log *slog.Logger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled")
		return nil, nil
	}

	schedCfg := scheduler.Config{
		Logger:     log,
		Location:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	}
	// Несколько воркеров: каждый запуск выполняется только на одном.
	if cache != nil {
		schedCfg.Locker = redis.NewJobLocker(cache, cfg.Scheduler.JobTimeout)
	}

	sched, err := scheduler.New(schedCfg)
	if err != nil {
		return nil, err
	}

	if cacheOn {
		job := jobs.NewWarmLeaderboardJob(eng, cfg.Scheduler.WarmLeaderboardPages, log)
		if err := sched.Register(job, scheduler.Every(cfg.Scheduler.WarmLeaderboardInterval)); err != nil {
			return nil, err
		}
	}

	if flags.IsEnabled(config.FeatureLedgerAudit) {
		job := jobs.NewAuditLedgerJob(eng, log)
		if err := sched.Register(job, scheduler.Every(cfg.Scheduler.AuditLedgerInterval)); err != nil {
			return nil, err
		}
	}

	if cfg.Archive.Enabled && flags.IsEnabled(config.FeatureLeaderboardArchive) {
		archCfg := archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			TopN:            cfg.Archive.TopN,
		}
		client, err := archive.NewS3Client(ctx, archCfg)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiver, err := archive.NewArchiver(eng, client, archCfg, nil, log)
		if err != nil {
			return nil, err
		}
		schedule := scheduler.Weekly(cfg.Scheduler.ArchiveWeekday, cfg.Scheduler.ArchiveHour, cfg.Scheduler.ArchiveMinute)
		if err := sched.Register(jobs.NewArchiveLeaderboardJob(archiver), schedule); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

// Package archive stores weekly leaderboard snapshots in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

// ErrNotConfigured is returned when the archive has no bucket.
var ErrNotConfigured = errors.New("archive: bucket is not configured")

// Uploader is the subset of the S3 client used by the archiver.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SnapshotSource reads the top of the leaderboard bypassing any cache.
type SnapshotSource interface {
	LeaderboardSnapshot(ctx context.Context, n int) (*leaderboard.Page, error)
}

// Config configures the S3 client.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	TopN            int
}

// NewS3Client builds an S3 client. A custom endpoint switches to path-style
// addressing, which R2 and MinIO expect. Empty keys fall back to the default
// AWS credential chain.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Archiver uploads leaderboard snapshots as JSON objects keyed
// <prefix>/<year>-W<week>/<id>.json.
type Archiver struct {
	source   SnapshotSource
	uploader Uploader
	bucket   string
	prefix   string
	topN     int
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewArchiver creates an archiver.
func NewArchiver(source SnapshotSource, uploader Uploader, cfg Config, clock clockwork.Clock, log *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 100
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{
		source:   source,
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		topN:     cfg.TopN,
		clock:    clock,
		logger:   log.With(logger.Component("archive")),
	}, nil
}

// Result describes an uploaded snapshot.
type Result struct {
	Key      string
	Snapshot *leaderboard.Snapshot
}

// ObjectKey returns the object key for a snapshot.
func (a *Archiver) ObjectKey(s *leaderboard.Snapshot) string {
	return path.Join(a.prefix, s.Period, s.ID+".json")
}

// Archive takes a snapshot of the top N and uploads it.
func (a *Archiver) Archive(ctx context.Context) (*Result, error) {
	page, err := a.source.LeaderboardSnapshot(ctx, a.topN)
	if err != nil {
		return nil, fmt.Errorf("archive: load leaderboard: %w", err)
	}

	snap := leaderboard.NewSnapshot(uuid.NewString(), a.clock.Now(), page.Rows)
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal snapshot: %w", err)
	}

	key := a.ObjectKey(snap)
	_, err = a.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"period":      snap.Period,
			"total-users": fmt.Sprint(snap.TotalUsers),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: upload %s: %w", key, err)
	}

	a.logger.Info("leaderboard snapshot archived",
		slog.String("key", key),
		slog.String("period", snap.Period),
		slog.Int("users", snap.TotalUsers),
		slog.Int("average_xp", snap.AverageXP()))

	return &Result{Key: key, Snapshot: snap}, nil
}

package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/domain/leaderboard"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeUploader) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakeSource struct {
	rows []leaderboard.Row
	n    int
}

func (f *fakeSource) LeaderboardSnapshot(_ context.Context, n int) (*leaderboard.Page, error) {
	f.n = n
	return &leaderboard.Page{Rows: f.rows}, nil
}

func TestArchiver_UploadsWeeklySnapshot(t *testing.T) {
	src := &fakeSource{rows: []leaderboard.Row{
		{Rank: 1, UserID: "alice", TotalXP: 500, Level: 3},
		{Rank: 2, UserID: "bob", TotalXP: 300, Level: 2},
	}}
	up := &fakeUploader{}
	// Sunday 2026-03-08 is still ISO week 10.
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 8, 23, 55, 0, 0, time.UTC))

	a, err := NewArchiver(src, up, Config{Bucket: "snapshots", Prefix: "leaderboard", TopN: 50}, clock, logger.Discard())
	require.NoError(t, err)

	res, err := a.Archive(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, src.n)
	assert.True(t, strings.HasPrefix(res.Key, "leaderboard/2026-W10/"))
	assert.True(t, strings.HasSuffix(res.Key, ".json"))
	assert.Equal(t, "snapshots", aws.ToString(up.input.Bucket))
	assert.Equal(t, res.Key, aws.ToString(up.input.Key))

	var snap leaderboard.Snapshot
	require.NoError(t, json.Unmarshal(up.body, &snap))
	assert.Equal(t, "2026-W10", snap.Period)
	assert.Equal(t, 2, snap.TotalUsers)
	assert.Equal(t, 800, snap.TotalXP)
	assert.Equal(t, "alice", snap.Rows[0].UserID)
}

func TestArchiver_UploadError(t *testing.T) {
	boom := errors.New("boom")
	a, err := NewArchiver(&fakeSource{}, &fakeUploader{err: boom}, Config{Bucket: "b"}, nil, logger.Discard())
	require.NoError(t, err)

	_, err = a.Archive(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestNewArchiver_RequiresBucket(t *testing.T) {
	_, err := NewArchiver(&fakeSource{}, &fakeUploader{}, Config{}, nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

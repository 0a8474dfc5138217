package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/pkg/logger"
)

type testJob struct {
	name  string
	runs  atomic.Int32
	runFn func(ctx context.Context) error
}

func (j *testJob) Name() string        { return j.name }
func (j *testJob) Description() string { return "test job " + j.name }
func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.runFn != nil {
		return j.runFn(ctx)
	}
	return nil
}

func newScheduler(t *testing.T, cfg Config) *Scheduler {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if s.IsRunning() {
			_ = s.Stop()
		}
	})
	return s
}

func TestScheduler_RunsIntervalJob(t *testing.T) {
	s := newScheduler(t, Config{})
	job := &testJob{name: "tick"}

	require.NoError(t, s.Register(job, Every(20*time.Millisecond)))
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "tick", infos[0].Name)
	assert.Equal(t, "@every 20ms", infos[0].Schedule)
	assert.GreaterOrEqual(t, infos[0].RunCount, int64(2))
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := newScheduler(t, Config{})
	job := &testJob{name: "dup"}

	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
}

func TestScheduler_RunNowRecordsResults(t *testing.T) {
	s := newScheduler(t, Config{})
	boom := errors.New("boom")
	ok := &testJob{name: "ok"}
	bad := &testJob{name: "bad", runFn: func(context.Context) error { return boom }}
	panicky := &testJob{name: "panicky", runFn: func(context.Context) error { panic("oops") }}

	require.NoError(t, s.Register(ok, Weekly(time.Sunday, 23, 55)))
	require.NoError(t, s.Register(bad, Every(time.Hour)))
	require.NoError(t, s.Register(panicky, Cron("0 3 * * *")))

	ctx := context.Background()
	res, err := s.RunNow(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(ctx, "bad")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)

	_, err = s.RunNow(ctx, "panicky")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "ok", history[0].JobName)
	assert.Equal(t, "panicky", history[2].JobName)
	assert.Len(t, s.History(1), 1)
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := newScheduler(t, Config{JobTimeout: 20 * time.Millisecond})
	slow := &testJob{name: "slow", runFn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	require.NoError(t, s.Register(slow, Every(time.Hour)))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type countingLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	calls atomic.Int32
}

type countingLock struct {
	l   *countingLocker
	key string
}

func (l *countingLocker) Lock(_ context.Context, key string) (gocron.Lock, error) {
	l.calls.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, errors.New("held")
	}
	l.held[key] = true
	return &countingLock{l: l, key: key}, nil
}

func (c *countingLock) Unlock(context.Context) error {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	delete(c.l.held, c.key)
	return nil
}

func TestScheduler_UsesDistributedLocker(t *testing.T) {
	locker := &countingLocker{held: map[string]bool{}}
	s := newScheduler(t, Config{Locker: locker})
	job := &testJob{name: "locked"}

	require.NoError(t, s.Register(job, Every(20*time.Millisecond)))
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, locker.calls.Load(), int32(1))
}

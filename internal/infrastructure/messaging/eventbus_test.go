package messaging

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-progression/internal/domain/shared"
	"github.com/alem-hub/alem-progression/pkg/logger"
)

var at = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func newBus(async bool) *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      async,
		WorkerPoolSize: 2,
		Logger:         logger.Discard(),
	})
}

func TestInMemoryEventBus_RoutesByType(t *testing.T) {
	bus := newBus(true)
	defer bus.Close()

	var badges, all atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		badges.Add(1)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("u1", "b1", "B", "manual", at)))
	require.NoError(t, bus.Publish(shared.NewXPAwardedEvent("u1", 1, 10, "login", 10, false, at)))
	bus.Wait()

	assert.Equal(t, int32(1), badges.Load())
	assert.Equal(t, int32(2), all.Load())

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Published[shared.EventBadgeEarned])
	assert.Equal(t, int64(3), snap.HandlerSuccesses)
}

func TestInMemoryEventBus_HandlerFailuresAreSwallowed(t *testing.T) {
	bus := newBus(false)
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		return errors.New("sink down")
	}))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		panic("bad handler")
	}))

	err := bus.Publish(shared.NewLevelUpEvent("u1", 1, 2, "Learner", 100, at))
	assert.NoError(t, err)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := newBus(true)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2, "Learner", 100, at)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_CloseDrainsQueuedEvents(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 1,
		Logger:         logger.Discard(),
	})

	gate := make(chan struct{})
	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		<-gate
		handled.Add(1)
		return nil
	}))

	const events = 5
	for i := 0; i < events; i++ {
		require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("u1", "b1", "B", "manual", at)))
	}

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()

	// Close is in effect while four events still wait for the single worker.
	require.Eventually(t, func() bool {
		return errors.Is(bus.Publish(shared.NewLevelUpEvent("u1", 1, 2, "Learner", 100, at)), ErrEventBusClosed)
	}, time.Second, time.Millisecond)
	close(gate)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int32(events), handled.Load())
}

func TestInMemoryEventBus_Validation(t *testing.T) {
	bus := newBus(true)
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventLevelUp, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

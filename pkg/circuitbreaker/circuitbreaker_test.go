package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	cb := New("test",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithTimeout(10*time.Second),
		WithClock(clock),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	fail := func(context.Context) error { return errors.New("down") }
	ok := func(context.Context) error { return nil }

	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)

	clock.Advance(11 * time.Second)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
	assert.Equal(t, 3, cb.Counts().Requests)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock))

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	clock.Advance(2 * time.Second)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })

	assert.Equal(t, StateOpen, cb.State())
}

func TestWebhookBreaker_IgnoresCancellation(t *testing.T) {
	cb := WebhookBreaker(1, time.Minute, nil)
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "notification-webhook", cb.Name())
}

package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/alem-progression/internal/domain/notification"
)

// FanoutSink delivers each notification to every sink in order.
// A failing sink does not stop the others; all errors are joined.
type FanoutSink struct {
	sinks []namedSink
}

type namedSink struct {
	channel notification.ChannelType
	sink    notification.Sink
}

// NewFanoutSink creates an empty fan-out.
func NewFanoutSink() *FanoutSink {
	return &FanoutSink{}
}

// Add registers a sink for a channel. The channel prefixes its errors.
func (f *FanoutSink) Add(channel notification.ChannelType, sink notification.Sink) *FanoutSink {
	if sink != nil {
		f.sinks = append(f.sinks, namedSink{channel: channel, sink: sink})
	}
	return f
}

// Len returns the number of registered sinks.
func (f *FanoutSink) Len() int { return len(f.sinks) }

// Notify implements notification.Sink.
func (f *FanoutSink) Notify(ctx context.Context, n *notification.Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.channel, err))
		}
	}
	return errors.Join(errs...)
}

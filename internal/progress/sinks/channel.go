package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/creator-ingest/internal/progress"
)

// ChannelSink forwards log and error events to a channel for streaming to a client. Done
// events are left to the caller, which writes the final report itself. The channel is closed
// when the sink is closed.
type ChannelSink struct {
	ch        chan progress.Event
	closeOnce sync.Once
}

// NewChannelSink creates a sink with the given channel capacity.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity < 0 {
		capacity = 0
	}
	return &ChannelSink{ch: make(chan progress.Event, capacity)}
}

// Events returns the receive side of the stream.
func (s *ChannelSink) Events() <-chan progress.Event {
	return s.ch
}

// Consume sends the batch in order, giving up when ctx ends.
func (s *ChannelSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Type == progress.TypeDone {
			continue
		}
		select {
		case s.ch <- evt:
		case <-ctx.Done():
			return fmt.Errorf("channel sink send: %w", ctx.Err())
		}
	}
	return nil
}

// Close closes the event channel.
func (s *ChannelSink) Close(context.Context) error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

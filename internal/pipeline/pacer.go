package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Pacer sleeps between fetches.
type Pacer interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimerPacer waits on a timer and returns early when ctx ends.
type TimerPacer struct{}

// Wait blocks for d or until ctx is done.
func (TimerPacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pacing wait: %w", ctx.Err())
	}
}

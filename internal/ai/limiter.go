package ai

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Spacer enforces a minimum gap between the end of one call and the start of the next.
// Calls are serialized: the single slot is held across the wait and the call itself,
// and a caller queued behind a slow call gives up when its context ends.
type Spacer struct {
	slot    *semaphore.Weighted
	min     time.Duration
	lastEnd time.Time
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewSpacer(min time.Duration) *Spacer {
	return &Spacer{slot: semaphore.NewWeighted(1), min: min, now: time.Now, sleep: sleepCtx}
}

// Do waits out the remaining gap, runs fn and records its end time.
func (s *Spacer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.slot.Release(1)

	if !s.lastEnd.IsZero() {
		if wait := s.min - s.now().Sub(s.lastEnd); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	err := fn(ctx)
	s.lastEnd = s.now()
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

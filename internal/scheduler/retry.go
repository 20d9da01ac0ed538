package scheduler

import (
	"context"
	"fmt"
	"time"

	"market_briefing/internal/logger"
)

// Retry calls fn up to attempts times, sleeping base*attempt between tries.
func Retry(ctx context.Context, name string, attempts int, base time.Duration, sleep func(context.Context, time.Duration) error, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := base * time.Duration(attempt)
		logger.Warnf("%s failed (attempt %d/%d): %v. Retrying in %s", name, attempt, attempts, err, delay)
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
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

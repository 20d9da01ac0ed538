package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"market_briefing/internal/logger"
	"market_briefing/internal/models"

	"golang.org/x/sync/errgroup"
)

// ErrAllSourcesFailed is returned when no configured channel could be read.
var ErrAllSourcesFailed = errors.New("sources: every channel failed")

// Collect lists every channel's items in the window, tags them with the channel name,
// drops duplicate IDs and returns them newest first. Failing channels are logged and
// skipped unless all of them fail.
func Collect(ctx context.Context, src VideoSource, channels []models.Channel, start, end time.Time) ([]models.Item, error) {
	if len(channels) == 0 {
		return nil, nil
	}

	results := make([][]models.Item, len(channels))
	var mu sync.Mutex
	var errs []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ch := range channels {
		g.Go(func() error {
			items, err := src.ListItems(gctx, ch, start, end)
			if err != nil {
				logger.Warnf("Source %s (%s) failed: %v", ch.Name, ch.ID, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			for j := range items {
				items[j].Source = ch.Name
			}
			results[i] = items
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(errs) == len(channels) {
		return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
	}

	seen := make(map[string]bool)
	var merged []models.Item
	for _, items := range results {
		for _, it := range items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			merged = append(merged, it)
		}
	}
	SortNewestFirst(merged)
	return merged, nil
}

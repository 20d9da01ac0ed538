package market

import (
	"context"
	"sync"
	"time"

	"market_briefing/internal/models"

	"golang.org/x/sync/singleflight"
)

// Latest remembers the most recent snapshot so that detail requests between runs
// do not refetch every quote. Concurrent refreshes share one build.
type Latest struct {
	builder *SnapshotBuilder
	maxAge  time.Duration

	mu   sync.RWMutex
	snap *models.MarketSnapshot
	sf   singleflight.Group
	now  func() time.Time
}

func NewLatest(builder *SnapshotBuilder, maxAge time.Duration) *Latest {
	return &Latest{builder: builder, maxAge: maxAge, now: time.Now}
}

// Refresh builds a new snapshot and remembers it.
func (l *Latest) Refresh(ctx context.Context) (*models.MarketSnapshot, error) {
	v, err, _ := l.sf.Do("snapshot", func() (any, error) {
		snap, err := l.builder.Build(ctx)
		if err != nil {
			return nil, err
		}
		l.Set(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.MarketSnapshot), nil
}

// Get returns the remembered snapshot if it is younger than maxAge, else refreshes.
func (l *Latest) Get(ctx context.Context) (*models.MarketSnapshot, error) {
	l.mu.RLock()
	snap := l.snap
	l.mu.RUnlock()
	if snap != nil && l.now().Sub(snap.FetchedAt) < l.maxAge {
		return snap, nil
	}
	return l.Refresh(ctx)
}

func (l *Latest) Set(snap *models.MarketSnapshot) {
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
}

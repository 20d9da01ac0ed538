// Package storage persists recommendations and scheduler state.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"market_briefing/internal/models"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when updating a recommendation that does not exist.
var ErrNotFound = errors.New("storage: recommendation not found")

// Order selects the sort direction on briefing date.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// Query filters recommendations. Zero fields do not filter.
type Query struct {
	From   time.Time // inclusive
	To     time.Time // exclusive
	Action string
	Ticker string
	Order  Order
	Limit  int
}

// RecommendationStore is the persistence boundary for BUY calls.
type RecommendationStore interface {
	Create(ctx context.Context, rec *models.Recommendation) (uint, error)
	Query(ctx context.Context, q Query) ([]models.Recommendation, error)
	// UpdatePrice refreshes the last observed price of a recommendation.
	UpdatePrice(ctx context.Context, id uint, price decimal.Decimal) error
	Close() error
}

// Open picks Postgres when databaseURL is set and the local SQLite file otherwise.
func Open(ctx context.Context, databaseURL, sqlitePath string) (RecommendationStore, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	return NewGormStore(sqlitePath)
}

// DateOnly truncates t to midnight UTC of its calendar date in t's own zone,
// which is how briefing dates are stored.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

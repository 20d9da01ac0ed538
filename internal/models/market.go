package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteSnapshot is a single market data point.
type QuoteSnapshot struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// IsUp reports the derived direction. A flat session counts as up.
func (q QuoteSnapshot) IsUp() bool {
	return !q.Change.IsNegative()
}

// MarketSnapshot aggregates index and sector quotes for one run.
// Sectors are ranked descending by ChangePercent.
type MarketSnapshot struct {
	Indices    []QuoteSnapshot `json:"indices"`
	Sectors    []QuoteSnapshot `json:"sectors"`
	Hot        []string        `json:"hot"`  // top 3 sector names
	Cold       []string        `json:"cold"` // bottom 3, weakest first
	MarketOpen *bool           `json:"market_open,omitempty"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

// Package market builds the index and sector snapshot that frames every briefing.
package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"market_briefing/internal/logger"
	"market_briefing/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrNoQuote means the provider had no usable data for a symbol.
var ErrNoQuote = errors.New("market: no quote")

// Quote is the raw provider answer for one symbol.
type Quote struct {
	Price         decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
}

// QuoteSource fetches the latest quote for a symbol.
// Implementations return ErrNoQuote (possibly wrapped) when the symbol has no data.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// ClockSource reports whether the US market is currently open.
type ClockSource interface {
	IsOpen(ctx context.Context) (bool, error)
}

// Symbol pairs a display name with the ticker used to track it.
type Symbol struct {
	Name   string
	Symbol string
}

// DefaultIndices are tracked through their liquid ETF proxies.
var DefaultIndices = []Symbol{
	{Name: "S&P 500", Symbol: "SPY"},
	{Name: "나스닥 100", Symbol: "QQQ"},
	{Name: "다우존스", Symbol: "DIA"},
	{Name: "러셀 2000", Symbol: "IWM"},
}

// DefaultSectors are the SPDR sector funds.
var DefaultSectors = []Symbol{
	{Name: "기술", Symbol: "XLK"},
	{Name: "에너지", Symbol: "XLE"},
	{Name: "헬스케어", Symbol: "XLV"},
	{Name: "유틸리티", Symbol: "XLU"},
	{Name: "부동산", Symbol: "XLRE"},
	{Name: "필수소비재", Symbol: "XLP"},
	{Name: "금융", Symbol: "XLF"},
	{Name: "산업재", Symbol: "XLI"},
	{Name: "임의소비재", Symbol: "XLY"},
	{Name: "소재", Symbol: "XLB"},
	{Name: "커뮤니케이션", Symbol: "XLC"},
}

const rankSize = 3

// SnapshotBuilder assembles a MarketSnapshot from a QuoteSource.
type SnapshotBuilder struct {
	quotes      QuoteSource
	clock       ClockSource // optional
	indices     []Symbol
	sectors     []Symbol
	concurrency int
	now         func() time.Time
}

func NewSnapshotBuilder(quotes QuoteSource, clock ClockSource) *SnapshotBuilder {
	return &SnapshotBuilder{
		quotes:      quotes,
		clock:       clock,
		indices:     DefaultIndices,
		sectors:     DefaultSectors,
		concurrency: 4,
		now:         time.Now,
	}
}

// WithSymbols overrides the tracked indices and sectors.
func (b *SnapshotBuilder) WithSymbols(indices, sectors []Symbol) *SnapshotBuilder {
	b.indices = indices
	b.sectors = sectors
	return b
}

// Build fetches every tracked symbol. Individual misses are logged and skipped;
// it fails only when no quote at all could be fetched.
func (b *SnapshotBuilder) Build(ctx context.Context) (*models.MarketSnapshot, error) {
	indices := make([]*models.QuoteSnapshot, len(b.indices))
	sectors := make([]*models.QuoteSnapshot, len(b.sectors))

	var mu sync.Mutex
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	fetch := func(sym Symbol, dst **models.QuoteSnapshot) {
		g.Go(func() error {
			q, err := b.quotes.Quote(gctx, sym.Symbol)
			if err != nil {
				logger.Warnf("Quote %s (%s) unavailable: %v", sym.Name, sym.Symbol, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			*dst = &models.QuoteSnapshot{
				Name:          sym.Name,
				Symbol:        sym.Symbol,
				Price:         q.Price,
				Change:        q.Change,
				ChangePercent: q.ChangePercent,
			}
			return nil
		})
	}
	for i, s := range b.indices {
		fetch(s, &indices[i])
	}
	for i, s := range b.sectors {
		fetch(s, &sectors[i])
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &models.MarketSnapshot{
		Indices:   compact(indices),
		Sectors:   compact(sectors),
		FetchedAt: b.now(),
	}
	if len(snap.Indices) == 0 && len(snap.Sectors) == 0 {
		if firstErr == nil {
			firstErr = ErrNoQuote
		}
		return nil, fmt.Errorf("market snapshot: all %d quotes failed: %w", len(b.indices)+len(b.sectors), firstErr)
	}

	RankSectors(snap)

	if b.clock != nil {
		if open, err := b.clock.IsOpen(ctx); err != nil {
			logger.Warnf("Market clock unavailable: %v", err)
		} else {
			snap.MarketOpen = &open
		}
	}
	return snap, nil
}

// RankSectors sorts sectors by percent change descending and fills Hot (top three)
// and Cold (bottom three, weakest first).
func RankSectors(snap *models.MarketSnapshot) {
	sort.SliceStable(snap.Sectors, func(i, j int) bool {
		return snap.Sectors[i].ChangePercent.GreaterThan(snap.Sectors[j].ChangePercent)
	})

	n := len(snap.Sectors)
	k := min(rankSize, n)
	snap.Hot = make([]string, 0, k)
	snap.Cold = make([]string, 0, k)
	for i := 0; i < k; i++ {
		snap.Hot = append(snap.Hot, snap.Sectors[i].Name)
		snap.Cold = append(snap.Cold, snap.Sectors[n-1-i].Name)
	}
}

func compact(in []*models.QuoteSnapshot) []models.QuoteSnapshot {
	out := make([]models.QuoteSnapshot, 0, len(in))
	for _, q := range in {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}

package alpaca

import (
	"context"
	"fmt"

	"market_briefing/internal/market"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// Provider serves quotes and the market clock from Alpaca.
// Credentials come from APCA_API_KEY_ID / APCA_API_SECRET_KEY.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
}

var (
	_ market.QuoteSource = (*Provider)(nil)
	_ market.ClockSource = (*Provider)(nil)
)

// NewProvider builds both clients with empty options; the SDK reads keys and
// the base URL (paper or live) from the environment itself.
func NewProvider() *Provider {
	return &Provider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
	}
}

// Quote compares the latest trade with the previous daily close.
func (p *Provider) Quote(ctx context.Context, symbol string) (market.Quote, error) {
	// The SDK takes no context, so at least refuse to start once cancelled.
	if err := ctx.Err(); err != nil {
		return market.Quote{}, err
	}
	// One snapshot call returns both the latest trade and the previous daily bar.
	snap, err := p.mdClient.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return market.Quote{}, fmt.Errorf("alpaca snapshot %s: %w", symbol, err)
	}
	// Thin or halted symbols can come back with missing parts.
	if snap == nil || snap.LatestTrade == nil || snap.PrevDailyBar == nil {
		return market.Quote{}, fmt.Errorf("%w: %s", market.ErrNoQuote, symbol)
	}
	return quoteFrom(snap.LatestTrade.Price, snap.PrevDailyBar.Close)
}

// LatestPrice is the last trade price, used to refresh stored recommendations.
func (p *Provider) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	trade, err := p.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, err
	}
	if trade == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", market.ErrNoQuote, symbol)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

// IsOpen asks the trading API clock, which accounts for holidays and early closes.
func (p *Provider) IsOpen(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c, err := p.tradeClient.GetClock()
	if err != nil {
		return false, err
	}
	return c.IsOpen, nil
}

func quoteFrom(last, prevClose float64) (market.Quote, error) {
	if prevClose <= 0 {
		return market.Quote{}, fmt.Errorf("%w: previous close %v", market.ErrNoQuote, prevClose)
	}
	// Converted to decimal before any arithmetic to avoid float drift in the percentage.
	price := decimal.NewFromFloat(last)
	prev := decimal.NewFromFloat(prevClose)
	change := price.Sub(prev)
	return market.Quote{
		Price:         price,
		Change:        change,
		ChangePercent: change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2),
	}, nil
}

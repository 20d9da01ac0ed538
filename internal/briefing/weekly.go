package briefing

import (
	"context"
	"fmt"
	"time"

	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/models"
	"market_briefing/internal/storage"

	"github.com/shopspring/decimal"
)

// Reviewer is the part of the analysis engine the weekly job needs.
type Reviewer interface {
	WeeklyReview(ctx context.Context, recs []models.Recommendation) models.WeeklyReview
}

// PriceSource supplies the latest trade price for a ticker.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// WeeklyJob reviews the last seven days of BUY recommendations.
type WeeklyJob struct {
	Store    storage.RecommendationStore
	Engine   Reviewer
	Prices   PriceSource // optional; refreshes CurrentPrice before the review
	Delivery Deliverer
	Location *time.Location // briefing dates are local calendar dates in this zone
	Now      func() time.Time
}

// Run reviews, renders and sends the weekly report.
func (j *WeeklyJob) Run(ctx context.Context) (models.WeeklyReview, error) {
	now := time.Now()
	if j.Now != nil {
		now = j.Now()
	}
	if j.Location != nil {
		now = now.In(j.Location)
	}
	to := storage.DateOnly(now).AddDate(0, 0, 1)
	recs, err := j.Store.Query(ctx, storage.Query{
		From:   to.AddDate(0, 0, -7),
		To:     to,
		Action: string(models.ActionBuy),
		Order:  storage.OldestFirst,
	})
	if err != nil {
		return models.WeeklyReview{}, fmt.Errorf("query recommendations: %w", err)
	}

	if len(recs) == 0 {
		logger.Infof("Weekly review: no recommendations")
		return models.WeeklyReview{}, j.Delivery.SendMessage(ctx, delivery.NoRecommendationsNotice())
	}

	if j.Prices != nil {
		j.refreshPrices(ctx, recs)
	}

	review := j.Engine.WeeklyReview(ctx, recs)
	if err := j.Delivery.SendMessage(ctx, delivery.RenderWeeklyReview(review, len(recs))); err != nil {
		return review, err
	}
	return review, nil
}

func (j *WeeklyJob) refreshPrices(ctx context.Context, recs []models.Recommendation) {
	prices := make(map[string]decimal.Decimal)
	for i := range recs {
		r := &recs[i]
		price, ok := prices[r.Ticker]
		if !ok {
			p, err := j.Prices.LatestPrice(ctx, r.Ticker)
			if err != nil {
				logger.Warnf("Price refresh %s failed: %v", r.Ticker, err)
				continue
			}
			prices[r.Ticker] = p
			price = p
		}
		if err := j.Store.UpdatePrice(ctx, r.ID, price); err != nil {
			logger.Warnf("Update price %s (#%d) failed: %v", r.Ticker, r.ID, err)
			continue
		}
		r.CurrentPrice = decimal.NewNullDecimal(price)
	}
}

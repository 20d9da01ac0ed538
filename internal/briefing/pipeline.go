// Package briefing runs the full and update briefings and the weekly review.
package briefing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market_briefing/internal/cache"
	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/models"
	"market_briefing/internal/sources"

	"github.com/google/uuid"
)

// ErrNoSources is returned when no channel is configured.
var ErrNoSources = errors.New("briefing: no sources configured")

// Analyzer is the part of the analysis engine a run needs.
type Analyzer interface {
	Summarize(ctx context.Context, item models.Item, transcript string, market *models.MarketSnapshot) (models.BriefAnalysis, error)
	OneLineInsight(ctx context.Context, items []models.ProcessedItem, market *models.MarketSnapshot) string
}

// MarketFetcher returns a fresh snapshot for the run.
type MarketFetcher interface {
	Refresh(ctx context.Context) (*models.MarketSnapshot, error)
}

// Deliverer sends a plan and ad-hoc notices.
type Deliverer interface {
	Deliver(ctx context.Context, plan models.DeliveryPlan) error
	SendMessage(ctx context.Context, text string) error
}

// RecommendationWriter persists BUY calls.
type RecommendationWriter interface {
	Create(ctx context.Context, rec *models.Recommendation) (uint, error)
}

// Result summarizes one run.
type Result struct {
	RunID           string
	Kind            models.RunKind
	Window          Window
	Items           int
	Failed          int
	Recommendations int
}

// Pipeline orchestrates one briefing run.
type Pipeline struct {
	Channels    []models.Channel
	Videos      sources.VideoSource
	Transcripts sources.TranscriptSource
	Market      MarketFetcher
	Engine      Analyzer
	Cache       *cache.ItemCache
	Store       RecommendationWriter
	Delivery    Deliverer
	Location    *time.Location
	ItemTimeout time.Duration
}

// RunFull runs the morning briefing for date.
func (p *Pipeline) RunFull(ctx context.Context, date time.Time) (Result, error) {
	return p.run(ctx, models.RunFull, date, FullWindow(date, p.loc()))
}

// RunUpdate runs the intraday update ending at now.
func (p *Pipeline) RunUpdate(ctx context.Context, now time.Time) (Result, error) {
	return p.run(ctx, models.RunUpdate, now, UpdateWindow(now))
}

func (p *Pipeline) run(ctx context.Context, kind models.RunKind, date time.Time, w Window) (Result, error) {
	res := Result{RunID: uuid.NewString(), Kind: kind, Window: w}
	if len(p.Channels) == 0 {
		return res, ErrNoSources
	}
	logger.Infof("[%s] %s run: window %s ~ %s", short(res.RunID), kind,
		w.Start.Format("01/02 15:04"), w.End.Format("01/02 15:04 MST"))

	snap, err := p.Market.Refresh(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch market snapshot: %w", err)
	}

	items, err := sources.Collect(ctx, p.Videos, p.Channels, w.Start, w.End)
	if err != nil {
		return res, fmt.Errorf("list items: %w", err)
	}
	// Sources filter by window themselves; keep the boundary authoritative here.
	items = filterWindow(items, w)
	res.Items = len(items)

	if len(items) == 0 {
		logger.Infof("[%s] No new items", short(res.RunID))
		if kind == models.RunFull {
			return res, p.Delivery.SendMessage(ctx, delivery.NoItemsNotice(date.In(p.loc())))
		}
		return res, nil
	}

	processed := make([]models.ProcessedItem, 0, len(items))
	var pending []models.Recommendation
	for i, item := range items {
		logger.Infof("[%s] (%d/%d) %s - %s", short(res.RunID), i+1, len(items), item.Source, item.Title)
		pi, failed := p.processItem(ctx, item, snap)
		if failed {
			res.Failed++
		}
		pending = append(pending, BuildRecommendations(item, pi.Analysis, date.In(p.loc()))...)
		processed = append(processed, pi)
	}

	insight := p.Engine.OneLineInsight(ctx, processed, snap)

	plan := models.DeliveryPlan{
		Kind:    kind,
		Date:    date.In(p.loc()),
		Market:  snap,
		Items:   processed,
		Insight: insight,
	}
	if err := p.Delivery.Deliver(ctx, plan); err != nil {
		return res, fmt.Errorf("deliver: %w", err)
	}
	// Saved only once delivered: a failed delivery is retried as a whole run.
	res.Recommendations = p.saveRecommendations(ctx, pending)
	logger.Infof("[%s] %s run delivered: %d items, %d failed, %d recommendations",
		short(res.RunID), kind, res.Items, res.Failed, res.Recommendations)
	return res, nil
}

// processItem never aborts the batch: every failure degrades to a fallback analysis.
func (p *Pipeline) processItem(ctx context.Context, item models.Item, snap *models.MarketSnapshot) (models.ProcessedItem, bool) {
	ictx, cancel := context.WithTimeout(ctx, p.itemTimeout())
	defer cancel()

	failed := false
	transcript, err := p.Transcripts.Fetch(ictx, item.ID)
	if err != nil {
		if !errors.Is(err, sources.ErrNoTranscript) {
			logger.Warnf("Transcript for %s failed: %v", item.ID, err)
		}
		transcript = ""
	}
	hasTranscript := transcript != ""

	// The item record must be visible before its message can reference it.
	if err := p.Cache.PutItem(ctx, item, hasTranscript); err != nil {
		logger.Warnf("Cache item %s failed: %v", item.ID, err)
	}
	if hasTranscript {
		if err := p.Cache.PutTranscript(ctx, item.ID, transcript); err != nil {
			logger.Warnf("Cache transcript %s failed: %v", item.ID, err)
		}
	}

	analysis, err := p.Engine.Summarize(ictx, item, transcript, snap)
	if err != nil {
		logger.Warnf("Analysis for %s failed, using fallback: %v", item.ID, err)
		failed = true
	}

	return models.ProcessedItem{Item: item, Analysis: analysis, HasTranscript: hasTranscript}, failed
}

func (p *Pipeline) saveRecommendations(ctx context.Context, recs []models.Recommendation) int {
	saved := 0
	for i := range recs {
		if _, err := p.Store.Create(ctx, &recs[i]); err != nil {
			logger.Warnf("Save recommendation %s failed: %v", recs[i].Ticker, err)
			continue
		}
		saved++
	}
	return saved
}

func filterWindow(items []models.Item, w Window) []models.Item {
	out := items[:0]
	for _, it := range items {
		if w.Contains(it.PublishedAt) {
			out = append(out, it)
		}
	}
	return out
}

func (p *Pipeline) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p *Pipeline) itemTimeout() time.Duration {
	if p.ItemTimeout <= 0 {
		return 3 * time.Minute
	}
	return p.ItemTimeout
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package bot

import (
	"context"

	"market_briefing/internal/cache"
	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/models"
	"market_briefing/internal/telegram"
)

// HandleCallback processes button presses from Telegram.
func (h *Handler) HandleCallback(ctx context.Context, q telegram.CallbackQuery) {
	// Acknowledge first so the client stops its spinner.
	if err := h.out.AnswerCallback(ctx, q.ID, ""); err != nil {
		logger.Warnf("Answer callback %s failed: %v", q.ID, err)
	}

	id, ok := cache.ParseDetailRef(q.Data)
	if !ok {
		logger.Warnf("Unknown callback data: %q", q.Data)
		return
	}
	if err := h.ShowDetail(ctx, id); err != nil {
		logger.Errorf("Detail for %s not delivered: %v", id, err)
	}
}

// ShowDetail sends the detailed analysis of item id, computing it at most once
// per cache lifetime. An item that is no longer cached gets the expiry notice.
func (h *Handler) ShowDetail(ctx context.Context, id string) error {
	rec, ok, err := h.cache.GetItem(ctx, id)
	if err != nil {
		logger.Warnf("Cache read for %s failed: %v", id, err)
	}
	if !ok {
		logger.Infof("Detail requested for expired item %s", id)
		return h.out.SendMessage(ctx, delivery.ExpiredNotice)
	}

	if d, ok := h.cachedDetail(ctx, id); ok {
		logger.Debugf("Detail cache hit for %s", id)
		return h.out.SendMessage(ctx, delivery.RenderDetail(rec.Item, d))
	}

	// Concurrent presses on the same item share one computation.
	v, _, shared := h.inflight.Do(id, func() (any, error) {
		return h.computeDetail(ctx, rec), nil
	})
	if shared {
		logger.Debugf("Detail for %s shared with an in-flight request", id)
	}
	return h.out.SendMessage(ctx, delivery.RenderDetail(rec.Item, v.(models.DetailedAnalysis)))
}

func (h *Handler) cachedDetail(ctx context.Context, id string) (models.DetailedAnalysis, bool) {
	d, ok, err := h.cache.GetDetail(ctx, id)
	if err != nil {
		logger.Warnf("Detail cache read for %s failed: %v", id, err)
		return models.DetailedAnalysis{}, false
	}
	return d, ok
}

func (h *Handler) computeDetail(ctx context.Context, rec cache.ItemRecord) models.DetailedAnalysis {
	id := rec.Item.ID
	// A request that queued behind a finished computation finds its result here.
	if d, ok := h.cachedDetail(ctx, id); ok {
		return d
	}

	if err := h.out.SendMessage(ctx, delivery.GeneratingNotice(rec.Item.Title)); err != nil {
		logger.Warnf("Generating notice for %s failed: %v", id, err)
	}

	var transcript string
	if rec.HasTranscript {
		text, ok, err := h.cache.GetTranscript(ctx, id)
		if err != nil {
			logger.Warnf("Transcript cache read for %s failed: %v", id, err)
		}
		if ok {
			transcript = text
		}
	}

	snap, err := h.market.Get(ctx)
	if err != nil {
		logger.Warnf("Market snapshot for detail %s unavailable: %v", id, err)
		snap = nil
	}

	d, err := h.engine.Detail(ctx, rec.Item, transcript, snap)
	if err != nil {
		logger.Warnf("Detail analysis for %s failed: %v", id, err)
	}
	// Fallbacks are not memoized so a later press can try again.
	if d.Fallback {
		return d
	}
	if err := h.cache.PutDetail(ctx, id, d); err != nil {
		logger.Warnf("Cache detail %s failed: %v", id, err)
	}
	return d
}

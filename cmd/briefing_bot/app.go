package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"market_briefing/internal/ai"
	"market_briefing/internal/bot"
	"market_briefing/internal/briefing"
	"market_briefing/internal/cache"
	"market_briefing/internal/config"
	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/market"
	"market_briefing/internal/market/alpaca"
	"market_briefing/internal/scheduler"
	"market_briefing/internal/sources"
	"market_briefing/internal/storage"
	"market_briefing/internal/telegram"
)

const marketMaxAge = 15 * time.Minute

// app holds every wired component of one process.
type app struct {
	cfg      *config.Config
	telegram *telegram.Client
	channel  *delivery.Channel
	engine   *ai.Engine
	items    *cache.ItemCache
	memory   *cache.MemoryStore // nil with the redis backend
	latest   *market.Latest
	store    storage.RecommendationStore
	jobs     *scheduler.Jobs
	bot      *bot.Handler
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	a.engine = ai.NewEngine(backend, ai.Options{
		MinInterval:     cfg.LLMMinInterval,
		MaxAttempts:     cfg.LLMMaxAttempts,
		RetryBase:       cfg.LLMRetryBase,
		MaxContentChars: cfg.TranscriptMaxChars,
	})
	logger.Infof("Analysis backend: %s", a.engine.Name())

	var store cache.Store
	switch cfg.CacheBackend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, "briefing:")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	default:
		a.memory = cache.NewMemoryStore()
		store = a.memory
	}
	a.items = cache.NewItemCache(store, cfg.CacheTTL)

	a.store, err = storage.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open recommendation store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	provider := alpaca.NewProvider()
	a.latest = market.NewLatest(market.NewSnapshotBuilder(provider, provider), marketMaxAge)

	a.telegram = telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID)
	a.channel = delivery.NewChannel(a.telegram, cfg.MessageDelay)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	pipeline := &briefing.Pipeline{
		Channels:    cfg.Channels,
		Videos:      sources.NewYouTubeFeed(httpClient),
		Transcripts: sources.NewTimedText(httpClient, cfg.TranscriptLang, "en"),
		Market:      a.latest,
		Engine:      a.engine,
		Cache:       a.items,
		Store:       a.store,
		Delivery:    a.channel,
		Location:    cfg.Location,
		ItemTimeout: cfg.ItemTimeout,
	}
	weekly := &briefing.WeeklyJob{
		Store:    a.store,
		Engine:   a.engine,
		Prices:   provider,
		Delivery: a.channel,
		Location: cfg.Location,
	}
	a.jobs = scheduler.NewJobs(pipeline, weekly, a.channel, cfg.SchedulerRetries, cfg.SchedulerBackoff)

	a.bot = bot.New(bot.Deps{
		Cache:    a.items,
		Engine:   a.engine,
		Market:   a.latest,
		Out:      a.channel,
		Runner:   a.jobs,
		Recs:     a.store,
		Location: cfg.Location,
	})
	return a, nil
}

func newBackend(cfg *config.Config) (ai.Backend, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=anthropic requires ANTHROPIC_API_KEY")
		}
		return ai.NewAnthropicBackend(cfg.AnthropicAPIKey), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY")
		}
		return ai.NewOpenAIBackend(cfg.OpenAIAPIKey), nil
	default:
		if cfg.GeminiAPIKey == "" {
			logger.Warnf("GEMINI_API_KEY not set, analysis will fall back to defaults")
		}
		return ai.NewGeminiBackend(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	}
}

// cleanupLoop drops expired in-memory cache entries once an hour.
func (a *app) cleanupLoop(ctx context.Context) {
	if a.memory == nil {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.memory.Cleanup(); n > 0 {
				logger.Debugf("Cache cleanup removed %d expired entries", n)
			}
		}
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("Close failed: %v", err)
		}
	}
}

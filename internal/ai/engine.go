package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market_briefing/internal/logger"
	"market_briefing/internal/models"
)

// FallbackInsight is sent when the one-line insight cannot be generated.
const FallbackInsight = "오늘은 시장 변동성에 유의하며 보유 종목의 손절 기준을 점검하세요."

const maxListLen = 5

// Options tunes an Engine. Zero values fall back to the defaults below.
type Options struct {
	MinInterval     time.Duration // default 1s
	MaxAttempts     int           // default 3
	RetryBase       time.Duration // default 2s
	MaxContentChars int           // default 30000
}

// Engine is the rate-limited, retrying analysis client shared by the pipeline and the bot.
type Engine struct {
	backend         Backend
	spacer          *Spacer
	maxAttempts     int
	retryBase       time.Duration
	maxContentChars int
	sleep           func(ctx context.Context, d time.Duration) error
}

func NewEngine(backend Backend, opts Options) *Engine {
	if opts.MinInterval <= 0 {
		opts.MinInterval = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 2 * time.Second
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 30000
	}
	return &Engine{
		backend:         backend,
		spacer:          NewSpacer(opts.MinInterval),
		maxAttempts:     opts.MaxAttempts,
		retryBase:       opts.RetryBase,
		maxContentChars: opts.MaxContentChars,
		sleep:           sleepCtx,
	}
}

// Name identifies the underlying backend.
func (e *Engine) Name() string { return e.backend.Name() }

// generate runs one spaced backend call, retrying only on rate limiting.
// Backoff is retryBase * 2^attempt.
func (e *Engine) generate(ctx context.Context, req Request) (string, error) {
	for attempt := 0; ; attempt++ {
		var text string
		err := e.spacer.Do(ctx, func(ctx context.Context) error {
			var err error
			text, err = e.backend.Generate(ctx, req)
			return err
		})
		if err == nil {
			return text, nil
		}
		if !IsRateLimited(err) {
			return "", err
		}
		if attempt+1 >= e.maxAttempts {
			return "", fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, e.maxAttempts, err)
		}

		delay := e.retryBase * time.Duration(1<<attempt)
		logger.Warnf("LLM rate limited (attempt %d/%d), retrying in %s", attempt+1, e.maxAttempts, delay)
		if err := e.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

// content picks the transcript (truncated) or falls back to the item description.
func (e *Engine) content(item models.Item, transcript string) (string, string) {
	if strings.TrimSpace(transcript) == "" {
		return item.Description, "영상 설명"
	}
	return truncateRunes(transcript, e.maxContentChars), "자막"
}

// Summarize produces the brief analysis for one item. Unparseable output yields
// DefaultBriefAnalysis with a nil error; backend failures return the default and the error.
func (e *Engine) Summarize(ctx context.Context, item models.Item, transcript string, market *models.MarketSnapshot) (models.BriefAnalysis, error) {
	content, label := e.content(item, transcript)
	text, err := e.generate(ctx, Request{
		System: persona,
		Prompt: briefPrompt(item, content, label, MarketContext(market)),
		JSON:   true,
	})
	if err != nil {
		return DefaultBriefAnalysis(), err
	}
	if strings.TrimSpace(text) == "" {
		logger.Warnf("Empty brief analysis response for %s", item.ID)
		return DefaultBriefAnalysis(), nil
	}

	var out models.BriefAnalysis
	if err := decodeJSON(text, &out); err != nil {
		logger.Warnf("Malformed brief analysis for %s: %v", item.ID, err)
		return DefaultBriefAnalysis(), nil
	}
	return normalizeBrief(out), nil
}

// Detail produces the detailed 5W1H analysis. Same failure contract as Summarize.
func (e *Engine) Detail(ctx context.Context, item models.Item, transcript string, market *models.MarketSnapshot) (models.DetailedAnalysis, error) {
	content, label := e.content(item, transcript)
	text, err := e.generate(ctx, Request{
		System: persona,
		Prompt: detailPrompt(item, content, label, MarketContext(market)),
		JSON:   true,
	})
	if err != nil {
		return DefaultDetailedAnalysis(), err
	}
	if strings.TrimSpace(text) == "" {
		logger.Warnf("Empty detail response for %s", item.ID)
		return DefaultDetailedAnalysis(), nil
	}

	var out models.DetailedAnalysis
	if err := decodeJSON(text, &out); err != nil {
		logger.Warnf("Malformed detail analysis for %s: %v", item.ID, err)
		return DefaultDetailedAnalysis(), nil
	}
	return normalizeDetail(out), nil
}

// OneLineInsight condenses the run into a single sentence. Never fails.
func (e *Engine) OneLineInsight(ctx context.Context, items []models.ProcessedItem, market *models.MarketSnapshot) string {
	text, err := e.generate(ctx, Request{
		System: persona,
		Prompt: insightPrompt(items, MarketContext(market)),
	})
	if err != nil {
		logger.Warnf("One-line insight failed: %v", err)
		return FallbackInsight
	}
	line := oneLine(text)
	if line == "" {
		return FallbackInsight
	}
	return line
}

// WeeklyReview evaluates a week of recommendations. Failures are reported in the Error field.
func (e *Engine) WeeklyReview(ctx context.Context, recs []models.Recommendation) models.WeeklyReview {
	text, err := e.generate(ctx, Request{
		System: persona,
		Prompt: reviewPrompt(recs),
		JSON:   true,
	})
	if err != nil {
		logger.Errorf("Weekly review failed: %v", err)
		return models.WeeklyReview{Error: err.Error()}
	}

	var out models.WeeklyReview
	if err := decodeJSON(text, &out); err != nil {
		logger.Warnf("Malformed weekly review: %v", err)
		return models.WeeklyReview{Error: "리뷰 응답을 해석할 수 없습니다"}
	}
	out.Error = ""
	out.Lessons = capList(out.Lessons)
	return out
}

// DefaultBriefAnalysis is the recoverable "unavailable" result.
func DefaultBriefAnalysis() models.BriefAnalysis {
	return models.BriefAnalysis{
		Summary:        []string{models.InfoUnavailable},
		Interpretation: []string{models.InfoUnavailable},
		InvestorView:   []string{models.InfoUnavailable},
		Sector:         models.SectorUnclassified,
		Tickers:        []string{},
		Action:         models.ActionWatch,
		Urgency:        "모니터링",
		Sentiment:      "중립",
		Fallback:       true,
	}
}

// DefaultDetailedAnalysis is the recoverable "no information" result.
func DefaultDetailedAnalysis() models.DetailedAnalysis {
	return models.DetailedAnalysis{
		Who:              models.NoInformation,
		What:             models.NoInformation,
		When:             models.NoInformation,
		Where:            models.NoInformation,
		Why:              models.NoInformation,
		How:              models.NoInformation,
		MarketConnection: models.NoInformation,
		Opportunities:    []string{},
		Risks:            []string{},
		ActionItems:      []string{},
		RelatedTickers:   []string{},
		Confidence:       "low",
		Fallback:         true,
	}
}

func normalizeBrief(b models.BriefAnalysis) models.BriefAnalysis {
	b.Summary = capList(b.Summary)
	b.Interpretation = capList(b.Interpretation)
	b.InvestorView = capList(b.InvestorView)
	if strings.TrimSpace(b.Sector) == "" {
		b.Sector = models.SectorUnclassified
	}
	b.Action = models.ParseAction(string(b.Action))
	b.Tickers = normalizeTickers(b.Tickers)
	if b.Urgency == "" {
		b.Urgency = "모니터링"
	}
	if b.Sentiment == "" {
		b.Sentiment = "중립"
	}
	if b.Trade != nil && b.Trade.IsEmpty() {
		b.Trade = nil
	}
	b.Fallback = false
	return b
}

func normalizeDetail(d models.DetailedAnalysis) models.DetailedAnalysis {
	for _, f := range []*string{&d.Who, &d.What, &d.When, &d.Where, &d.Why, &d.How, &d.MarketConnection} {
		if strings.TrimSpace(*f) == "" {
			*f = models.NoInformation
		}
	}
	d.RelatedTickers = normalizeTickers(d.RelatedTickers)
	switch strings.ToLower(d.Confidence) {
	case "high", "medium", "low":
		d.Confidence = strings.ToLower(d.Confidence)
	default:
		d.Confidence = "low"
	}
	d.Fallback = false
	return d
}

func capList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == maxListLen {
			break
		}
	}
	return out
}

func normalizeTickers(in []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "$")))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func oneLine(s string) string {
	s = stripCodeFences(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"'“”`)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

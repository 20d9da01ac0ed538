// Package bot answers the chat: detail buttons on briefing items and operator commands.
package bot

import (
	"context"
	"time"

	"market_briefing/internal/cache"
	"market_briefing/internal/models"
	"market_briefing/internal/storage"

	"golang.org/x/sync/singleflight"
)

var startTime = time.Now()

// Detailer computes the detailed analysis of one item.
type Detailer interface {
	Detail(ctx context.Context, item models.Item, transcript string, market *models.MarketSnapshot) (models.DetailedAnalysis, error)
}

// MarketSource returns a recent market snapshot.
type MarketSource interface {
	Get(ctx context.Context) (*models.MarketSnapshot, error)
}

// Replier is the chat side of the delivery channel.
type Replier interface {
	SendMessage(ctx context.Context, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Runner triggers jobs on demand.
type Runner interface {
	Full(ctx context.Context, date time.Time) error
	Update(ctx context.Context, now time.Time) error
	Weekly(ctx context.Context) error
}

// RecommendationQuerier lists stored recommendations.
type RecommendationQuerier interface {
	Query(ctx context.Context, q storage.Query) ([]models.Recommendation, error)
}

type CommandDoc struct {
	Name        string
	Description string
	Example     string
}

// Deps wires a Handler.
type Deps struct {
	Cache    *cache.ItemCache
	Engine   Detailer
	Market   MarketSource
	Out      Replier
	Runner   Runner
	Recs     RecommendationQuerier
	Location *time.Location
}

// Handler implements telegram.Handler.
type Handler struct {
	cache    *cache.ItemCache
	engine   Detailer
	market   MarketSource
	out      Replier
	runner   Runner
	recs     RecommendationQuerier
	loc      *time.Location
	now      func() time.Time
	inflight singleflight.Group
	commands []CommandDoc
}

func New(d Deps) *Handler {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		cache:  d.Cache,
		engine: d.Engine,
		market: d.Market,
		out:    d.Out,
		runner: d.Runner,
		recs:   d.Recs,
		loc:    loc,
		now:    time.Now,
		commands: []CommandDoc{
			{"/start", "사용법 안내", "/start"},
			{"/briefing", "전체 브리핑 실행 (날짜 생략 시 오늘)", "/briefing 2026-10-15"},
			{"/update", "최근 3시간 업데이트 브리핑", "/update"},
			{"/weekly", "주간 추천 리뷰", "/weekly"},
			{"/test", "연결 확인", "/test"},
			{"/recs", "최근 매수 추천 목록 (기본 7일)", "/recs 14"},
		},
	}
}

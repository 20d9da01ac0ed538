package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the verdict attached to a brief analysis.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionWatch Action = "WATCH"
)

// ParseAction normalizes free text into one of the four verdicts. Unknown values become WATCH.
func ParseAction(s string) Action {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy
	case ActionSell:
		return ActionSell
	case ActionHold:
		return ActionHold
	default:
		return ActionWatch
	}
}

const (
	SectorUnclassified = "미분류"
	InfoUnavailable    = "정보를 가져올 수 없습니다"
	NoInformation      = "정보 없음"
)

// TradeSetup holds free-text trade parameters as the model wrote them.
type TradeSetup struct {
	Entry        string `json:"entry,omitempty"`
	Target       string `json:"target,omitempty"`
	StopLoss     string `json:"stop_loss,omitempty"`
	PositionSize string `json:"position_size,omitempty"`
	Horizon      string `json:"horizon,omitempty"`
}

// IsEmpty reports whether no trade field is set.
func (t TradeSetup) IsEmpty() bool {
	return t == TradeSetup{}
}

// BriefAnalysis is the eager, per-item result of one pipeline run.
type BriefAnalysis struct {
	Summary        []string    `json:"summary"`
	Interpretation []string    `json:"interpretation"`
	InvestorView   []string    `json:"investor_view"`
	Sector         string      `json:"sector"`
	SectorReason   string      `json:"sector_reason"`
	Tickers        []string    `json:"tickers"`
	Action         Action      `json:"action"`
	Urgency        string      `json:"urgency"`
	Sentiment      string      `json:"sentiment"`
	Trade          *TradeSetup `json:"trade,omitempty"`
	Confidence     string      `json:"confidence,omitempty"`

	// Fallback is set when the model output could not be used.
	Fallback bool `json:"fallback,omitempty"`
}

// DetailedAnalysis is the lazily computed 5W1H breakdown of an item.
type DetailedAnalysis struct {
	Who              string     `json:"who"`
	What             string     `json:"what"`
	When             string     `json:"when"`
	Where            string     `json:"where"`
	Why              string     `json:"why"`
	How              string     `json:"how"`
	MarketConnection string     `json:"market_connection"`
	Trade            TradeSetup `json:"trade"`
	Opportunities    []string   `json:"opportunities"`
	Risks            []string   `json:"risks"`
	ActionItems      []string   `json:"action_items"`
	RelatedTickers   []string   `json:"related_tickers"`
	Confidence       string     `json:"confidence"` // high, medium, low

	Fallback bool `json:"fallback,omitempty"`
}

// WeeklyReview is the model's look back over a week of recommendations.
// Error is set instead of returning a failure.
type WeeklyReview struct {
	Wins      int      `json:"wins"`
	Losses    int      `json:"losses"`
	BestPick  string   `json:"best_pick"`
	WorstPick string   `json:"worst_pick"`
	Lessons   []string `json:"lessons"`
	Outlook   string   `json:"outlook"`
	Error     string   `json:"error,omitempty"`
}

// Recommendation is one persisted BUY call for a single ticker.
type Recommendation struct {
	ID               uint                `json:"id" gorm:"primaryKey"`
	Ticker           string              `json:"ticker" gorm:"index"`
	Action           string              `json:"action" gorm:"index"`
	RecommendedPrice decimal.NullDecimal `json:"recommended_price" gorm:"type:numeric"`
	TargetPrice      decimal.NullDecimal `json:"target_price" gorm:"type:numeric"`
	StopPrice        decimal.NullDecimal `json:"stop_price" gorm:"type:numeric"`
	CurrentPrice     decimal.NullDecimal `json:"current_price" gorm:"type:numeric"`
	PositionSize     string              `json:"position_size"`
	Horizon          string              `json:"horizon"`
	Confidence       string              `json:"confidence"`
	SourceTitle      string              `json:"source_title"`
	BriefingDate     time.Time           `json:"briefing_date" gorm:"index"`
	Note             string              `json:"note"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

package briefing

import (
	"regexp"
	"strings"
	"time"

	"market_briefing/internal/models"
	"market_briefing/internal/storage"

	"github.com/shopspring/decimal"
)

var priceRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParsePrice pulls the first number out of free text such as "$120.50", "약 1,250달러"
// or "115-118". Anything without a positive number yields an invalid NullDecimal.
func ParsePrice(s string) decimal.NullDecimal {
	m := priceRe.FindString(s)
	if m == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil || !d.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// BuildRecommendations derives one row per ticker from a BUY analysis with tickers.
// Any other analysis yields none.
func BuildRecommendations(item models.Item, a models.BriefAnalysis, date time.Time) []models.Recommendation {
	if a.Action != models.ActionBuy || len(a.Tickers) == 0 {
		return nil
	}

	var trade models.TradeSetup
	if a.Trade != nil {
		trade = *a.Trade
	}
	note := a.SectorReason
	if len(a.Summary) > 0 {
		note = a.Summary[0]
	}

	seen := make(map[string]bool)
	recs := make([]models.Recommendation, 0, len(a.Tickers))
	for _, t := range a.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		recs = append(recs, models.Recommendation{
			Ticker:           t,
			Action:           string(models.ActionBuy),
			RecommendedPrice: ParsePrice(trade.Entry),
			TargetPrice:      ParsePrice(trade.Target),
			StopPrice:        ParsePrice(trade.StopLoss),
			PositionSize:     trade.PositionSize,
			Horizon:          trade.Horizon,
			Confidence:       a.Confidence,
			SourceTitle:      item.Title,
			BriefingDate:     storage.DateOnly(date),
			Note:             note,
		})
	}
	return recs
}

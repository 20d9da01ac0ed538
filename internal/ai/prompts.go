package ai

import (
	"fmt"
	"strings"

	"market_briefing/internal/models"
)

const persona = `당신은 20년 경력의 글로벌 매크로 애널리스트이자 개인 투자자를 위한 리서치 책임자입니다.
경제 뉴스 영상의 내용을 정확히 요약하고, 시장 데이터와 연결해 실행 가능한 투자 관점을 제시합니다.
추측은 추측이라고 밝히고, 수치는 원문에 있는 것만 사용합니다. 모든 답변은 한국어로 작성합니다.`

const briefSchema = `다음 JSON 형식으로만 답하세요. 다른 텍스트는 포함하지 마세요.
{
  "summary": ["핵심 내용 1~2문장", "... 최대 5개"],
  "interpretation": ["시장 관점의 해석, 최대 5개"],
  "investor_view": ["투자자 관점의 시사점, 최대 5개"],
  "sector": "관련 섹터 (없으면 미분류)",
  "sector_reason": "섹터 판단 근거",
  "tickers": ["관련 미국 티커"],
  "action": "BUY | SELL | HOLD | WATCH",
  "urgency": "즉시 | 단기 | 모니터링",
  "sentiment": "긍정 | 중립 | 부정",
  "confidence": "high | medium | low",
  "trade": {"entry": "진입가", "target": "목표가", "stop_loss": "손절가", "position_size": "비중", "horizon": "기간"}
}
action이 BUY가 아니면 trade는 생략합니다.`

const detailSchema = `다음 JSON 형식으로만 답하세요. 다른 텍스트는 포함하지 마세요.
{
  "who": "누가", "what": "무엇을", "when": "언제", "where": "어디서", "why": "왜", "how": "어떻게",
  "market_connection": "현재 시장 상황과의 연결",
  "trade": {"entry": "진입가", "target": "목표가", "stop_loss": "손절가", "position_size": "비중", "horizon": "기간"},
  "opportunities": ["기회 요인"],
  "risks": ["리스크 요인"],
  "action_items": ["투자자가 할 일"],
  "related_tickers": ["관련 티커"],
  "confidence": "high | medium | low"
}`

const reviewSchema = `다음 JSON 형식으로만 답하세요.
{
  "wins": 0, "losses": 0,
  "best_pick": "가장 좋은 추천과 이유",
  "worst_pick": "가장 나쁜 추천과 이유",
  "lessons": ["교훈"],
  "outlook": "다음 주 전망"
}`

// MarketContext renders a snapshot as prompt context.
func MarketContext(snap *models.MarketSnapshot) string {
	if snap == nil {
		return "시장 데이터 없음"
	}
	var sb strings.Builder
	sb.WriteString("[주요 지수]\n")
	for _, q := range snap.Indices {
		fmt.Fprintf(&sb, "- %s(%s): %s (%s%%)\n", q.Name, q.Symbol, q.Price.StringFixed(2), signed(q))
	}
	if len(snap.Sectors) > 0 {
		sb.WriteString("[섹터 등락률]\n")
		for _, q := range snap.Sectors {
			fmt.Fprintf(&sb, "- %s: %s%%\n", q.Name, signed(q))
		}
	}
	if len(snap.Hot) > 0 {
		fmt.Fprintf(&sb, "강세 섹터: %s\n", strings.Join(snap.Hot, ", "))
	}
	if len(snap.Cold) > 0 {
		fmt.Fprintf(&sb, "약세 섹터: %s\n", strings.Join(snap.Cold, ", "))
	}
	return sb.String()
}

func signed(q models.QuoteSnapshot) string {
	if q.IsUp() {
		return "+" + q.ChangePercent.StringFixed(2)
	}
	return q.ChangePercent.StringFixed(2)
}

func itemHeader(item models.Item) string {
	return fmt.Sprintf("채널: %s\n제목: %s\n게시: %s\n",
		item.Source, item.Title, item.PublishedAt.Format("2006-01-02 15:04"))
}

func briefPrompt(item models.Item, content, contentLabel, market string) string {
	return fmt.Sprintf("%s\n[시장 상황]\n%s\n[%s]\n%s\n\n%s",
		itemHeader(item), market, contentLabel, content, briefSchema)
}

func detailPrompt(item models.Item, content, contentLabel, market string) string {
	return fmt.Sprintf("%s\n[시장 상황]\n%s\n[%s]\n%s\n\n위 내용을 육하원칙으로 깊이 분석하세요.\n%s",
		itemHeader(item), market, contentLabel, content, detailSchema)
}

func insightPrompt(items []models.ProcessedItem, market string) string {
	var sb strings.Builder
	sb.WriteString("[시장 상황]\n")
	sb.WriteString(market)
	sb.WriteString("\n[오늘의 분석 결과]\n")
	for i, pi := range items {
		fmt.Fprintf(&sb, "%d. %s | %s | %s | %s\n", i+1, pi.Item.Title, pi.Analysis.Action,
			pi.Analysis.Sector, strings.Join(pi.Analysis.Summary, " "))
	}
	sb.WriteString("\n오늘 투자자가 가장 먼저 실행해야 할 한 가지를 한국어 한 문장으로만 답하세요. 따옴표나 머리말 없이 문장만 출력합니다.")
	return sb.String()
}

func reviewPrompt(recs []models.Recommendation) string {
	var sb strings.Builder
	sb.WriteString("[지난 7일간의 매수 추천]\n")
	for _, r := range recs {
		fmt.Fprintf(&sb, "- %s %s | 추천가 %s | 목표가 %s | 손절가 %s | 현재가 %s | 출처: %s\n",
			r.BriefingDate.Format("01/02"), r.Ticker,
			nullable(r.RecommendedPrice.Valid, r.RecommendedPrice.Decimal.String()),
			nullable(r.TargetPrice.Valid, r.TargetPrice.Decimal.String()),
			nullable(r.StopPrice.Valid, r.StopPrice.Decimal.String()),
			nullable(r.CurrentPrice.Valid, r.CurrentPrice.Decimal.String()),
			r.SourceTitle)
	}
	sb.WriteString("\n추천의 성과를 평가하고 교훈과 다음 주 전망을 정리하세요.\n")
	sb.WriteString(reviewSchema)
	return sb.String()
}

func nullable(valid bool, s string) string {
	if !valid {
		return "-"
	}
	return s
}

package delivery

import (
	"fmt"
	"strings"
	"time"

	"market_briefing/internal/models"

	"github.com/shopspring/decimal"
)

// MaxMessageLen is Telegram's hard limit on message text.
const MaxMessageLen = 4096

const ellipsis = "..."

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown neutralizes legacy-Markdown control characters in model or feed text.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Truncate hard-cuts s to limit runes, ending in "..." when anything was dropped.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return string(r[:limit])
	}
	return string(r[:limit-len(ellipsis)]) + ellipsis
}

func actionEmoji(a models.Action) string {
	switch a {
	case models.ActionBuy:
		return "🟢"
	case models.ActionSell:
		return "🔴"
	case models.ActionHold:
		return "🟡"
	default:
		return "👀"
	}
}

func sentimentEmoji(s string) string {
	switch s {
	case "긍정":
		return "😊"
	case "부정":
		return "😟"
	default:
		return "😐"
	}
}

func directionEmoji(q models.QuoteSnapshot) string {
	if q.IsUp() {
		return "🟢"
	}
	return "🔴"
}

func signedPercent(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2) + "%"
	}
	return "+" + d.StringFixed(2) + "%"
}

// RenderMarket is the first message of a run.
func RenderMarket(plan models.DeliveryPlan) string {
	var sb strings.Builder
	if plan.Kind == models.RunUpdate {
		fmt.Fprintf(&sb, "🔄 *업데이트 브리핑* (%s)\n\n", plan.Date.Format("01/02 15:04"))
	} else {
		fmt.Fprintf(&sb, "🌅 *오늘의 경제 브리핑* (%s)\n\n", plan.Date.Format("2006-01-02"))
	}

	snap := plan.Market
	if snap == nil {
		sb.WriteString("📊 시장 데이터를 가져오지 못했습니다.")
		return sb.String()
	}

	sb.WriteString("📊 *미국 증시*\n")
	for _, q := range snap.Indices {
		fmt.Fprintf(&sb, "%s %s: %s (%s)\n", directionEmoji(q), EscapeMarkdown(q.Name), q.Price.StringFixed(2), signedPercent(q.ChangePercent))
	}
	if len(snap.Hot) > 0 {
		fmt.Fprintf(&sb, "\n🔥 강세 섹터: %s\n", EscapeMarkdown(strings.Join(snap.Hot, ", ")))
	}
	if len(snap.Cold) > 0 {
		fmt.Fprintf(&sb, "🧊 약세 섹터: %s\n", EscapeMarkdown(strings.Join(snap.Cold, ", ")))
	}
	if snap.MarketOpen != nil {
		if *snap.MarketOpen {
			sb.WriteString("\n🔔 현재 미국 시장 개장 중")
		} else {
			sb.WriteString("\n🌙 현재 미국 시장 휴장 중")
		}
	}
	fmt.Fprintf(&sb, "\n\n📺 분석 영상 %d개", len(plan.Items))
	return strings.TrimRight(sb.String(), "\n")
}

func writeBullets(sb *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s\n", title)
	for _, l := range lines {
		fmt.Fprintf(sb, "• %s\n", EscapeMarkdown(l))
	}
}

// RenderItem is the per-item message; idx is 1-based.
func RenderItem(idx, total int, pi models.ProcessedItem) string {
	item, a := pi.Item, pi.Analysis
	var sb strings.Builder
	fmt.Fprintf(&sb, "📺 *(%d/%d) %s*\n", idx, total, EscapeMarkdown(item.Title))
	fmt.Fprintf(&sb, "📡 %s | 🕒 %s", EscapeMarkdown(item.Source), item.PublishedAt.Format("01/02 15:04"))
	if item.Duration > 0 {
		fmt.Fprintf(&sb, " | 🎬 %s", clockDuration(item.Duration))
	}
	if pi.HasTranscript {
		sb.WriteString(" | 📝 자막")
	}
	sb.WriteString("\n")

	writeBullets(&sb, "📌 *핵심 요약*", a.Summary)
	writeBullets(&sb, "💡 *시장 해석*", a.Interpretation)
	writeBullets(&sb, "👤 *투자자 관점*", a.InvestorView)

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "🏷 섹터: %s", EscapeMarkdown(a.Sector))
	if a.SectorReason != "" {
		fmt.Fprintf(&sb, " (%s)", EscapeMarkdown(a.SectorReason))
	}
	sb.WriteString("\n")
	if len(a.Tickers) > 0 {
		fmt.Fprintf(&sb, "💹 관련 종목: %s\n", EscapeMarkdown(strings.Join(a.Tickers, ", ")))
	}
	fmt.Fprintf(&sb, "🎯 액션: %s %s | ⏱ %s | %s %s",
		actionEmoji(a.Action), a.Action, EscapeMarkdown(a.Urgency), sentimentEmoji(a.Sentiment), EscapeMarkdown(a.Sentiment))

	if a.Trade != nil && a.Action == models.ActionBuy {
		sb.WriteString("\n")
		writeTrade(&sb, *a.Trade)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// clockDuration renders 754s as "12:34" and longer runs as "1:02:05".
func clockDuration(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func writeTrade(sb *strings.Builder, t models.TradeSetup) {
	fields := []struct{ label, value string }{
		{"진입가", t.Entry},
		{"목표가", t.Target},
		{"손절가", t.StopLoss},
		{"비중", t.PositionSize},
		{"기간", t.Horizon},
	}
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(sb, "\n▫️ %s: %s", f.label, EscapeMarkdown(f.value))
		}
	}
}

// RenderClosing ends a run with the insight and the item count.
func RenderClosing(plan models.DeliveryPlan) string {
	return fmt.Sprintf("✅ *브리핑 완료*\n총 %d개 영상을 분석했습니다.\n\n💡 *오늘의 한 줄 인사이트*\n%s",
		len(plan.Items), EscapeMarkdown(plan.Insight))
}

// RenderDetail is the on-demand 5W1H message.
func RenderDetail(item models.Item, d models.DetailedAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 *상세 분석*\n📺 %s\n\n", EscapeMarkdown(item.Title))
	for _, f := range []struct{ label, value string }{
		{"👤 누가", d.Who},
		{"📋 무엇을", d.What},
		{"📅 언제", d.When},
		{"📍 어디서", d.Where},
		{"❓ 왜", d.Why},
		{"⚙️ 어떻게", d.How},
	} {
		fmt.Fprintf(&sb, "*%s*: %s\n", f.label, EscapeMarkdown(f.value))
	}
	fmt.Fprintf(&sb, "\n🌐 *시장 연결고리*\n%s\n", EscapeMarkdown(d.MarketConnection))

	if !d.Trade.IsEmpty() {
		sb.WriteString("\n💼 *매매 전략*")
		writeTrade(&sb, d.Trade)
		sb.WriteString("\n")
	}
	writeBullets(&sb, "✨ *기회 요인*", d.Opportunities)
	writeBullets(&sb, "⚠️ *리스크*", d.Risks)
	writeBullets(&sb, "✅ *실행 항목*", d.ActionItems)
	if len(d.RelatedTickers) > 0 {
		fmt.Fprintf(&sb, "\n💹 관련 종목: %s\n", EscapeMarkdown(strings.Join(d.RelatedTickers, ", ")))
	}
	fmt.Fprintf(&sb, "\n📈 신뢰도: %s", confidenceLabel(d.Confidence))
	return sb.String()
}

func confidenceLabel(c string) string {
	switch c {
	case "high":
		return "높음"
	case "medium":
		return "보통"
	default:
		return "낮음"
	}
}

// RenderWeeklyReview reports the model's look back over n recommendations.
func RenderWeeklyReview(r models.WeeklyReview, n int) string {
	if r.Error != "" {
		return fmt.Sprintf("📅 *주간 리뷰*\n⚠️ 리뷰를 생성하지 못했습니다: %s", EscapeMarkdown(r.Error))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 *주간 리뷰* (추천 %d건)\n\n", n)
	fmt.Fprintf(&sb, "🏆 적중 %d / ❌ 실패 %d\n", r.Wins, r.Losses)
	if r.BestPick != "" {
		fmt.Fprintf(&sb, "👍 베스트: %s\n", EscapeMarkdown(r.BestPick))
	}
	if r.WorstPick != "" {
		fmt.Fprintf(&sb, "👎 워스트: %s\n", EscapeMarkdown(r.WorstPick))
	}
	writeBullets(&sb, "📚 *교훈*", r.Lessons)
	if r.Outlook != "" {
		fmt.Fprintf(&sb, "\n🔭 *다음 주 전망*\n%s", EscapeMarkdown(r.Outlook))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderRecommendations lists stored recommendations, newest first.
func RenderRecommendations(recs []models.Recommendation, days int) string {
	if len(recs) == 0 {
		return fmt.Sprintf("📭 최근 %d일간 저장된 추천이 없습니다.", days)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *최근 %d일 추천* (%d건)\n", days, len(recs))
	for _, r := range recs {
		fmt.Fprintf(&sb, "\n%s %s *%s*", r.BriefingDate.Format("01/02"), actionEmoji(models.Action(r.Action)), EscapeMarkdown(r.Ticker))
		if r.RecommendedPrice.Valid {
			fmt.Fprintf(&sb, " @ %s", r.RecommendedPrice.Decimal.String())
		}
		if r.TargetPrice.Valid {
			fmt.Fprintf(&sb, " → %s", r.TargetPrice.Decimal.String())
		}
		if r.StopPrice.Valid {
			fmt.Fprintf(&sb, " (손절 %s)", r.StopPrice.Decimal.String())
		}
		if r.SourceTitle != "" {
			fmt.Fprintf(&sb, "\n   ↳ %s", EscapeMarkdown(r.SourceTitle))
		}
	}
	return sb.String()
}

// NoItemsNotice is the only message of a full run with an empty window.
func NoItemsNotice(date time.Time) string {
	return fmt.Sprintf("📭 %s 브리핑: 새로 올라온 영상이 없습니다.", date.Format("2006-01-02"))
}

func NoRecommendationsNotice() string {
	return "📅 *주간 리뷰*\n이번 주에는 매수 추천이 없었습니다."
}

// ExpiredNotice answers a detail request whose item record is gone.
const ExpiredNotice = "⌛ 이 항목은 24시간이 지나 만료되었습니다. 상세 분석을 제공할 수 없습니다."

// GeneratingNotice is posted while a detail is computed.
func GeneratingNotice(title string) string {
	return fmt.Sprintf("⏳ *%s*\n상세 분석 생성 중... (약 10초)", EscapeMarkdown(title))
}

// FailureNotice reports a job that exhausted its retries.
func FailureNotice(job string, err error) string {
	return fmt.Sprintf("❌ %s 실패\n%s", job, EscapeMarkdown(err.Error()))
}

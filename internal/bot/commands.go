package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/scheduler"
	"market_briefing/internal/storage"
)

const (
	defaultRecDays = 7
	maxRecDays     = 90
)

// HandleCommand processes inbound Telegram commands.
func (h *Handler) HandleCommand(ctx context.Context, text string) {
	if reply := h.Respond(ctx, text); reply != "" {
		if err := h.out.SendMessage(ctx, reply); err != nil {
			logger.Errorf("Reply to %q failed: %v", text, err)
		}
	}
}

// Respond runs a command and returns the final reply, if any. Long jobs send their
// own messages; the reply only reports how the trigger went.
func (h *Handler) Respond(ctx context.Context, text string) string {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return ""
	}
	// "/briefing@MyBot" in group chats.
	cmd, _, _ := strings.Cut(parts[0], "@")

	switch cmd {
	case "/start", "/help":
		return h.getHelp()
	case "/briefing":
		return h.handleBriefingCommand(ctx, parts)
	case "/update":
		return h.trigger(ctx, "🔄 업데이트 브리핑을 시작합니다...", func(ctx context.Context) error {
			return h.runner.Update(ctx, h.now().In(h.loc))
		})
	case "/weekly":
		return h.trigger(ctx, "📅 주간 리뷰를 생성합니다...", h.runner.Weekly)
	case "/test":
		return fmt.Sprintf("✅ 연결 정상\n🕒 %s\n⏱ 가동 시간: %s",
			h.now().In(h.loc).Format("2006-01-02 15:04:05 MST"), time.Since(startTime).Round(time.Second))
	case "/recs":
		return h.handleRecsCommand(ctx, parts)
	default:
		return "알 수 없는 명령입니다. /start 로 사용법을 확인하세요."
	}
}

func (h *Handler) getHelp() string {
	var sb strings.Builder
	sb.WriteString("🤖 *경제 브리핑 봇*\n매일 아침 경제 유튜브 영상을 요약해 드립니다.\n\n")
	for _, c := range h.commands {
		fmt.Fprintf(&sb, "%s - %s\n   예: `%s`\n", c.Name, c.Description, c.Example)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) handleBriefingCommand(ctx context.Context, parts []string) string {
	date := h.now().In(h.loc)
	if len(parts) > 1 {
		d, err := time.ParseInLocation("2006-01-02", parts[1], h.loc)
		if err != nil {
			return "Usage: /briefing [YYYY-MM-DD]"
		}
		date = d
	}
	return h.trigger(ctx, fmt.Sprintf("🚀 %s 브리핑을 시작합니다...", date.Format("2006-01-02")), func(ctx context.Context) error {
		return h.runner.Full(ctx, date)
	})
}

// trigger announces and runs a job. Failures are reported by the runner itself.
func (h *Handler) trigger(ctx context.Context, notice string, run func(context.Context) error) string {
	if err := h.out.SendMessage(ctx, notice); err != nil {
		logger.Warnf("Start notice failed: %v", err)
	}
	err := run(ctx)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, scheduler.ErrBusy):
		return "⏳ 이미 다른 작업이 진행 중입니다. 잠시 후 다시 시도하세요."
	default:
		logger.Errorf("Triggered job failed: %v", err)
		return ""
	}
}

func (h *Handler) handleRecsCommand(ctx context.Context, parts []string) string {
	days := defaultRecDays
	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			return "Usage: /recs [days]"
		}
		days = min(n, maxRecDays)
	}

	to := storage.DateOnly(h.now().In(h.loc)).AddDate(0, 0, 1)
	recs, err := h.recs.Query(ctx, storage.Query{
		From:  to.AddDate(0, 0, -days),
		To:    to,
		Order: storage.NewestFirst,
		Limit: 30,
	})
	if err != nil {
		logger.Errorf("Recommendation query failed: %v", err)
		return "⚠️ 추천 목록을 불러오지 못했습니다."
	}
	return delivery.RenderRecommendations(recs, days)
}

// Package delivery renders delivery plans into Telegram messages and sends them
// in order with a pause between items.
package delivery

import (
	"context"
	"fmt"
	"time"

	"market_briefing/internal/cache"
	"market_briefing/internal/logger"
	"market_briefing/internal/models"
	"market_briefing/internal/telegram"
)

// Messenger is the outbound transport.
type Messenger interface {
	SendMessage(ctx context.Context, text string, keyboard telegram.Keyboard) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// Channel is the delivery side of the bot.
type Channel struct {
	messenger Messenger
	delay     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewChannel(m Messenger, delay time.Duration) *Channel {
	return &Channel{messenger: m, delay: delay, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ItemKeyboard carries the detail reference and the source link.
func ItemKeyboard(item models.Item) telegram.Keyboard {
	row := []telegram.Button{{Text: "🔍 상세 보기", CallbackData: cache.DetailRef(item.ID)}}
	if item.URL != "" {
		row = append(row, telegram.Button{Text: "▶️ 원본 보기", URL: item.URL})
	}
	return telegram.Keyboard{row}
}

type outbound struct {
	text     string
	keyboard telegram.Keyboard
}

// Deliver sends the market message, one message per item and the closing message.
// Individual send failures are logged; it fails only when nothing got through.
func (c *Channel) Deliver(ctx context.Context, plan models.DeliveryPlan) error {
	msgs := make([]outbound, 0, len(plan.Items)+2)
	msgs = append(msgs, outbound{text: RenderMarket(plan)})
	for i, pi := range plan.Items {
		msgs = append(msgs, outbound{text: RenderItem(i+1, len(plan.Items), pi), keyboard: ItemKeyboard(pi.Item)})
	}
	msgs = append(msgs, outbound{text: RenderClosing(plan)})

	sent := 0
	var lastErr error
	for i, m := range msgs {
		if i > 0 {
			if err := c.sleep(ctx, c.delay); err != nil {
				return err
			}
		}
		if err := c.send(ctx, m.text, m.keyboard); err != nil {
			logger.Warnf("Delivery message %d/%d failed: %v", i+1, len(msgs), err)
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("no message delivered: %w", lastErr)
	}
	return nil
}

// SendMessage sends a direct notice.
func (c *Channel) SendMessage(ctx context.Context, text string) error {
	return c.send(ctx, text, nil)
}

// SendWithKeyboard sends a notice carrying buttons.
func (c *Channel) SendWithKeyboard(ctx context.Context, text string, kb telegram.Keyboard) error {
	return c.send(ctx, text, kb)
}

// AnswerCallback acknowledges a button press.
func (c *Channel) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.messenger.AnswerCallbackQuery(ctx, callbackID, text)
}

func (c *Channel) send(ctx context.Context, text string, kb telegram.Keyboard) error {
	return c.messenger.SendMessage(ctx, Truncate(text, MaxMessageLen), kb)
}

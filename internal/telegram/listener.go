package telegram

import (
	"context"
	"strings"
	"time"

	"market_briefing/internal/logger"
)

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
	From      User   `json:"from"`
}

// CallbackQuery is a button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Update is the partial Bot API update schema the bot consumes.
type Update struct {
	UpdateID      int            `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Handler receives authorized inbound events.
type Handler interface {
	HandleCommand(ctx context.Context, text string)
	HandleCallback(ctx context.Context, q CallbackQuery)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset, timeoutSec int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeoutSec,
		"allowed_updates": []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

// Listen polls until ctx is cancelled. Events from other chats are logged and ignored
// without a reply. Each event is handled on its own goroutine so a slow detail
// computation does not hold up the next update.
func (c *Client) Listen(ctx context.Context, h Handler) error {
	logger.Infof("Telegram Listener: Started")
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			logger.Infof("Telegram Listener: Stopped")
			return err
		}
		updates, err := c.GetUpdates(ctx, offset, c.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Errorf("Telegram Listener Error: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			c.dispatch(ctx, u, h)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, u Update, h Handler) {
	switch {
	case u.CallbackQuery != nil:
		q := *u.CallbackQuery
		chatID := q.From.ID
		if q.Message != nil {
			chatID = q.Message.Chat.ID
		}
		if chatID != c.chatID {
			logger.Warnf("⚠️ UNAUTHORIZED CALLBACK: User %s (ID: %d) pressed: %s", q.From.Username, chatID, q.Data)
			return
		}
		go h.HandleCallback(ctx, q)

	case u.Message != nil:
		m := *u.Message
		if m.Chat.ID != c.chatID {
			logger.Warnf("⚠️ UNAUTHORIZED ACCESS ATTEMPT: User %s (ID: %d) tried: %s", m.From.Username, m.Chat.ID, m.Text)
			return
		}
		text := strings.TrimSpace(m.Text)
		if strings.HasPrefix(text, "/") {
			logger.Infof("Command received: %s", text)
			go h.HandleCommand(ctx, text)
		}
	}
}

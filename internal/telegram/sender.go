package telegram

import (
	"context"
	"errors"
	"strings"

	"market_briefing/internal/logger"
)

// Button is an inline keyboard button. Exactly one of CallbackData and URL is set.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

type sendMessageRequest struct {
	ChatID                int64          `json:"chat_id"`
	Text                  string         `json:"text"`
	ParseMode             string         `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool           `json:"disable_web_page_preview"`
	ReplyMarkup           map[string]any `json:"reply_markup,omitempty"`
}

// SendMessage posts Markdown text to the authorized chat. When Telegram rejects the
// markup the message is re-sent as plain text rather than dropped.
func (c *Client) SendMessage(ctx context.Context, text string, keyboard Keyboard) error {
	req := sendMessageRequest{
		ChatID:                c.chatID,
		Text:                  text,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}
	if len(keyboard) > 0 {
		req.ReplyMarkup = map[string]any{"inline_keyboard": keyboard}
	}

	err := c.call(ctx, "sendMessage", req, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == 400 && strings.Contains(apiErr.Description, "parse entities") {
		logger.Warnf("Markdown rejected (%s), resending as plain text", apiErr.Description)
		req.ParseMode = ""
		return c.call(ctx, "sendMessage", req, nil)
	}
	return err
}

// AnswerCallbackQuery acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

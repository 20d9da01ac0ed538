// Package telegram is a small Bot API client: messages with inline keyboards,
// callback answers and a long-poll listener restricted to one chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"market_briefing/internal/logger"
)

const apiBaseURL = "https://api.telegram.org"

// Client talks to the Bot API on behalf of one bot and one authorized chat.
type Client struct {
	token   string
	chatID  int64
	baseURL string
	http    *http.Client
	// pollTimeout is the getUpdates long-poll duration in seconds.
	pollTimeout int
	retryDelay  time.Duration
}

func NewClient(token string, chatID int64) *Client {
	return &Client{
		token:       token,
		chatID:      chatID,
		baseURL:     apiBaseURL,
		http:        &http.Client{Timeout: 90 * time.Second},
		pollTimeout: 60,
		retryDelay:  5 * time.Second,
	}
}

// ChatID is the only chat the bot serves.
func (c *Client) ChatID() int64 { return c.chatID }

// APIError is an ok=false answer from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// call POSTs payload to method and decodes the result into out (which may be nil).
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: marshal: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read: %w", method, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("telegram %s: status %s: decode: %w", method, resp.Status, err)
	}
	if !ar.Ok {
		return &APIError{Method: method, Code: ar.ErrorCode, Description: ar.Description, RetryAfter: ar.Parameters.RetryAfter}
	}
	if out != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	logger.Debugf("Telegram %s ok", method)
	return nil
}

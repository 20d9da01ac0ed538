package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAPI records requests per method and answers with scripted bodies.
type fakeAPI struct {
	mu       sync.Mutex
	requests map[string][]map[string]any
	answer   func(method string, n int, body map[string]any) string
}

func newFakeAPI(t *testing.T, answer func(method string, n int, body map[string]any) string) (*fakeAPI, *Client) {
	f := &fakeAPI{requests: map[string][]map[string]any{}, answer: answer}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/botTOKEN/") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		method := strings.TrimPrefix(r.URL.Path, "/botTOKEN/")
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.requests[method] = append(f.requests[method], body)
		n := len(f.requests[method])
		f.mu.Unlock()

		w.Write([]byte(f.answer(method, n, body)))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("TOKEN", 42)
	c.baseURL = srv.URL
	c.http = srv.Client()
	c.retryDelay = time.Millisecond
	return f, c
}

func (f *fakeAPI) calls(method string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method]
}

func TestSendMessage_WithKeyboard(t *testing.T) {
	f, c := newFakeAPI(t, func(string, int, map[string]any) string { return `{"ok":true,"result":{}}` })

	kb := Keyboard{{
		{Text: "상세 보기", CallbackData: "detail:abc"},
		{Text: "원본 보기", URL: "https://youtu.be/abc"},
	}}
	if err := c.SendMessage(context.Background(), "*hello*", kb); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	calls := f.calls("sendMessage")
	if len(calls) != 1 {
		t.Fatalf("Expected 1 call, got %d", len(calls))
	}
	body := calls[0]
	if body["chat_id"].(float64) != 42 || body["parse_mode"] != "Markdown" || body["text"] != "*hello*" {
		t.Errorf("Unexpected body %v", body)
	}
	rows := body["reply_markup"].(map[string]any)["inline_keyboard"].([]any)
	buttons := rows[0].([]any)
	first := buttons[0].(map[string]any)
	second := buttons[1].(map[string]any)
	if first["callback_data"] != "detail:abc" || first["url"] != nil {
		t.Errorf("Unexpected callback button %v", first)
	}
	if second["url"] != "https://youtu.be/abc" || second["callback_data"] != nil {
		t.Errorf("Unexpected url button %v", second)
	}
}

func TestSendMessage_FallsBackToPlainText(t *testing.T) {
	f, c := newFakeAPI(t, func(method string, n int, body map[string]any) string {
		if n == 1 {
			return `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: Can't find end of the entity"}`
		}
		return `{"ok":true,"result":{}}`
	})

	if err := c.SendMessage(context.Background(), "broken *markup", nil); err != nil {
		t.Fatalf("Expected plain-text retry to succeed, got %v", err)
	}
	calls := f.calls("sendMessage")
	if len(calls) != 2 {
		t.Fatalf("Expected 2 calls, got %d", len(calls))
	}
	if _, ok := calls[1]["parse_mode"]; ok {
		t.Error("Expected retry without parse_mode")
	}
}

func TestSendMessage_APIError(t *testing.T) {
	_, c := newFakeAPI(t, func(string, int, map[string]any) string {
		return `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":7}}`
	})
	err := c.SendMessage(context.Background(), "x", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 429 || apiErr.RetryAfter != 7 {
		t.Errorf("Expected APIError 429 retry_after=7, got %v", err)
	}
}

func TestAnswerCallbackQuery(t *testing.T) {
	f, c := newFakeAPI(t, func(string, int, map[string]any) string { return `{"ok":true,"result":true}` })
	if err := c.AnswerCallbackQuery(context.Background(), "cb1", ""); err != nil {
		t.Fatalf("AnswerCallbackQuery failed: %v", err)
	}
	body := f.calls("answerCallbackQuery")[0]
	if body["callback_query_id"] != "cb1" {
		t.Errorf("Unexpected body %v", body)
	}
	if _, ok := body["text"]; ok {
		t.Error("Expected no text for a silent ack")
	}
}

type recordingHandler struct {
	commands  chan string
	callbacks chan CallbackQuery
}

func (h *recordingHandler) HandleCommand(ctx context.Context, text string) { h.commands <- text }
func (h *recordingHandler) HandleCallback(ctx context.Context, q CallbackQuery) {
	h.callbacks <- q
}

func TestListen_DispatchesAuthorizedEvents(t *testing.T) {
	updates := `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"text":"/start","chat":{"id":42},"from":{"id":42,"username":"me"}}},
		{"update_id":11,"message":{"message_id":2,"text":"/briefing","chat":{"id":999},"from":{"id":999,"username":"intruder"}}},
		{"update_id":12,"message":{"message_id":3,"text":"just chatting","chat":{"id":42},"from":{"id":42}}},
		{"update_id":13,"callback_query":{"id":"cb1","data":"detail:abc","from":{"id":7},"message":{"message_id":4,"chat":{"id":42}}}},
		{"update_id":14,"callback_query":{"id":"cb2","data":"detail:xyz","from":{"id":999},"message":{"message_id":5,"chat":{"id":999}}}}
	]}`
	var offsets []float64
	var mu sync.Mutex
	_, c := newFakeAPI(t, func(method string, n int, body map[string]any) string {
		mu.Lock()
		offsets = append(offsets, body["offset"].(float64))
		mu.Unlock()
		if n == 1 {
			return updates
		}
		time.Sleep(5 * time.Millisecond)
		return `{"ok":true,"result":[]}`
	})

	h := &recordingHandler{commands: make(chan string, 10), callbacks: make(chan CallbackQuery, 10)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Listen(ctx, h) }()

	select {
	case cmd := <-h.commands:
		if cmd != "/start" {
			t.Errorf("Expected /start, got %s", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for command")
	}
	select {
	case q := <-h.callbacks:
		if q.ID != "cb1" || q.Data != "detail:abc" {
			t.Errorf("Unexpected callback %+v", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for callback")
	}

	// Let the second poll carry the advanced offset.
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	select {
	case extra := <-h.commands:
		t.Errorf("Unexpected command dispatched: %s", extra)
	case q := <-h.callbacks:
		t.Errorf("Unexpected callback dispatched: %+v", q)
	default:
	}

	mu.Lock()
	defer mu.Unlock()
	if len(offsets) < 2 || offsets[0] != 0 || offsets[1] != 15 {
		t.Errorf("Expected offsets [0 15 ...], got %v", offsets)
	}
}

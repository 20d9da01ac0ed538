package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrRateLimited is returned once the retry ceiling for 429 responses is exhausted.
var ErrRateLimited = errors.New("ai: rate limited")

// ErrNotConfigured is returned by backends created without credentials.
var ErrNotConfigured = errors.New("ai: backend not configured")

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	JSON   bool // ask the backend for a JSON-only response
}

// Backend is a generative-text service.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// APIError is a non-200 response from an HTTP backend.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// IsRateLimited reports whether err carries a 429 signal, either typed or embedded in the message
// (the SDK backends only expose it in the error text).
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "resource_exhausted")
}

package ai

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend generates text through the Messages API.
type AnthropicBackend struct {
	client     *anthropic.Client
	model      anthropic.Model
	modelName  string
	configured bool
}

func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{
		client:     &client,
		model:      anthropic.ModelClaudeHaiku4_5,
		modelName:  "claude-4.5-haiku",
		configured: apiKey != "",
	}
}

func (a *AnthropicBackend) Name() string { return "anthropic/" + a.modelName }

func (a *AnthropicBackend) Generate(ctx context.Context, req Request) (string, error) {
	if !a.configured {
		return "", ErrNotConfigured
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}
	if len(resp.Content) == 0 {
		return "", nil
	}
	return resp.Content[0].Text, nil
}

package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIBackend generates text through Chat Completions.
type OpenAIBackend struct {
	client     *openai.Client
	model      openai.ChatModel
	modelName  string
	configured bool
}

func NewOpenAIBackend(apiKey string) *OpenAIBackend {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIBackend{
		client:     &client,
		model:      openai.ChatModelGPT4oMini,
		modelName:  "gpt-4o-mini",
		configured: apiKey != "",
	}
}

func (o *OpenAIBackend) Name() string { return "openai/" + o.modelName }

func (o *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	if !o.configured {
		return "", ErrNotConfigured
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

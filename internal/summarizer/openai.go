package summarizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAICompleter uses the OpenAI Chat Completions API.
type OpenAICompleter struct {
	client    openai.Client
	model     string
	maxTokens int64
}

var _ Completer = (*OpenAICompleter)(nil)

func NewOpenAICompleter(apiKey, model string, maxTokens int, opts ...option.RequestOption) *OpenAICompleter {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAICompleter{
		client:    openai.NewClient(reqOpts...),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.2),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

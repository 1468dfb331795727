package adapter

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

const DefaultClaudeModel = anthropic.ModelClaudeSonnet4_0

const claudeMaxTokens = 1024

// ClaudeClient provides the completion capability via the Anthropic API.
// Claude offers no embedding endpoint, so this adapter is completion only.
type ClaudeClient struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

type ClaudeOption func(*ClaudeClient)

func WithClaudeModel(m string) ClaudeOption {
	return func(c *ClaudeClient) {
		c.model = anthropic.Model(m)
	}
}

func WithClaudeTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeClient) {
		c.timeout = d
	}
}

func NewClaude(apiKey string, opts ...ClaudeOption) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, goerr.New("anthropic api key is required")
	}

	c := &ClaudeClient{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultClaudeModel,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *ClaudeClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := withRetry(ctx, c.timeout, func(ctx context.Context) (*anthropic.Message, error) {
		return c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: claudeMaxTokens,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call claude",
			goerr.T(model.ErrTagCompletion), goerr.V("model", c.model))
	}

	for _, content := range resp.Content {
		if content.Type == "text" {
			return content.AsText().Text, nil
		}
	}

	return "", goerr.New("claude response has no text content", goerr.T(model.ErrTagCompletion))
}

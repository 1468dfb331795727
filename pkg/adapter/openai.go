package adapter

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/sashabaranov/go-openai"
)

const DefaultOpenAIChatModel = openai.GPT4oMini

// OpenAIClient provides embeddings and chat completions via the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel openai.EmbeddingModel
	dimension      int
	timeout        time.Duration
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIChatModel(m string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.chatModel = m
	}
}

func WithOpenAIEmbeddingModel(m string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.embeddingModel = openai.EmbeddingModel(m)
	}
}

func WithOpenAIDimension(dim int) OpenAIOption {
	return func(c *OpenAIClient) {
		c.dimension = dim
	}
}

func WithOpenAITimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) {
		c.timeout = d
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("openai api key is required")
	}

	c := &OpenAIClient{
		client:         openai.NewClient(apiKey),
		chatModel:      DefaultOpenAIChatModel,
		embeddingModel: openai.SmallEmbedding3,
		dimension:      DefaultEmbeddingDimension,
		timeout:        DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := withRetry(ctx, c.timeout, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      []string{text},
			Model:      c.embeddingModel,
			Dimensions: c.dimension,
		})
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding",
			goerr.T(model.ErrTagEmbedding), goerr.V("model", c.embeddingModel))
	}

	if len(resp.Data) == 0 {
		return nil, goerr.New("embedding response is empty", goerr.T(model.ErrTagEmbedding))
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.dimension {
		return nil, goerr.New("embedding dimensionality mismatch",
			goerr.T(model.ErrTagEmbedding),
			goerr.V("want", c.dimension), goerr.V("got", len(vec)))
	}

	return vec, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := withRetry(ctx, c.timeout, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.chatModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat completion",
			goerr.T(model.ErrTagCompletion), goerr.V("model", c.chatModel))
	}

	if len(resp.Choices) == 0 {
		return "", goerr.New("chat completion response is empty", goerr.T(model.ErrTagCompletion))
	}

	return resp.Choices[0].Message.Content, nil
}

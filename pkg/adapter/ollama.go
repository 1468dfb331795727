package adapter

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	ollama "github.com/ollama/ollama/api"
)

const DefaultOllamaEmbeddingModel = "nomic-embed-text"

// OllamaClient provides embeddings from a local Ollama server. Useful when no
// hosted API credential is available. The vector width depends on the model,
// so the configured dimension must match what the model produces.
type OllamaClient struct {
	client    *ollama.Client
	model     string
	dimension int
	timeout   time.Duration
}

type OllamaOption func(*OllamaClient)

func WithOllamaModel(m string) OllamaOption {
	return func(c *OllamaClient) {
		c.model = m
	}
}

func WithOllamaDimension(dim int) OllamaOption {
	return func(c *OllamaClient) {
		c.dimension = dim
	}
}

func WithOllamaTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) {
		c.timeout = d
	}
}

func NewOllama(host string, opts ...OllamaOption) (*OllamaClient, error) {
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid ollama host", goerr.V("host", host))
	}

	c := &OllamaClient{
		client:    ollama.NewClient(u, &http.Client{}),
		model:     DefaultOllamaEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		timeout:   DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *OllamaClient) Dimension() int {
	return c.dimension
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := withRetry(ctx, c.timeout, func(ctx context.Context) (*ollama.EmbedResponse, error) {
		return c.client.Embed(ctx, &ollama.EmbedRequest{
			Model: c.model,
			Input: text,
		})
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed via ollama",
			goerr.T(model.ErrTagEmbedding), goerr.V("model", c.model))
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, goerr.New("ollama embedding response is empty",
			goerr.T(model.ErrTagEmbedding), goerr.V("model", c.model))
	}

	vec := resp.Embeddings[0]
	if len(vec) != c.dimension {
		return nil, goerr.New("embedding dimensionality mismatch",
			goerr.T(model.ErrTagEmbedding),
			goerr.V("want", c.dimension), goerr.V("got", len(vec)))
	}

	return vec, nil
}

package adapter

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"google.golang.org/genai"
)

const (
	DefaultGeminiGenerativeModel = "gemini-2.5-flash"
	DefaultGeminiEmbeddingModel  = "gemini-embedding-001"

	// DefaultEmbeddingDimension is the common width requested from every
	// embedding provider so that stores stay interchangeable.
	DefaultEmbeddingDimension = 768
)

// GeminiClient provides both the embedding and the completion capability via
// the Gemini API (API key) or Vertex AI (project/location).
type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimension       int
	timeout         time.Duration
}

type GeminiOption func(*GeminiClient)

func WithGeminiGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithGeminiEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

func WithGeminiDimension(dim int) GeminiOption {
	return func(g *GeminiClient) {
		g.dimension = dim
	}
}

func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiClient) {
		g.timeout = d
	}
}

// NewGemini creates a Gemini client. When apiKey is set the public Gemini API
// backend is used, otherwise Vertex AI with projectID/location.
func NewGemini(ctx context.Context, apiKey, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	} else {
		cfg.Project = projectID
		cfg.Location = location
		cfg.Backend = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: DefaultGeminiGenerativeModel,
		embeddingModel:  DefaultGeminiEmbeddingModel,
		dimension:       DefaultEmbeddingDimension,
		timeout:         DefaultTimeout,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) Dimension() int {
	return g.dimension
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := withRetry(ctx, g.timeout, func(ctx context.Context) (*genai.EmbedContentResponse, error) {
		return g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(g.dimension)),
		})
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content",
			goerr.T(model.ErrTagEmbedding), goerr.V("model", g.embeddingModel))
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("embedding response is empty",
			goerr.T(model.ErrTagEmbedding), goerr.V("model", g.embeddingModel))
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != g.dimension {
		return nil, goerr.New("embedding dimensionality mismatch",
			goerr.T(model.ErrTagEmbedding),
			goerr.V("want", g.dimension), goerr.V("got", len(vec)))
	}

	return vec, nil
}

func (g *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := withRetry(ctx, g.timeout, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, ""),
		})
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content",
			goerr.T(model.ErrTagCompletion), goerr.V("model", g.generativeModel))
	}

	text := resp.Text()
	if text == "" {
		return "", goerr.New("completion response is empty",
			goerr.T(model.ErrTagCompletion), goerr.V("model", g.generativeModel))
	}

	return text, nil
}

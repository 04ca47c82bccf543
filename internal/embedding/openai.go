package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

var openAIDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder calls an OpenAI compatible embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	// reduced is set when the request asks the API for shortened vectors.
	reduced bool
	limiter *rate.Limiter
}

// NewOpenAIEmbedder creates a client for model. baseURL may be empty for the public API.
// dimensions overrides the model's native size for models that support shortening.
// requestsPerSecond of zero or less disables throttling.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int, requestsPerSecond float64) (*OpenAIEmbedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	e := &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	if requestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	if dimensions > 0 {
		e.dimensions = dimensions
		e.reduced = true
	} else if dims, ok := openAIDimensions[model]; ok {
		e.dimensions = dims
	} else {
		e.dimensions = 1536
	}
	return e, nil
}

// Embed returns the embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request, waiting on the rate limiter first.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errors.New("text is empty")
		}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	}
	if e.reduced {
		req.Dimensions = e.dimensions
	}
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d items for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = cloneVector(d.Embedding)
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing index %d", i)
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Model returns the model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error { return nil }

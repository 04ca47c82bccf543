// Package embedding turns text into fixed-length vectors. A Generator wraps a primary
// provider (hugot, ONNX or OpenAI) and falls back to a deterministic heuristic embedder
// whenever the primary is unavailable.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// Model names the model that produced the vectors; stored alongside every embedding.
	Model() string
	Close() error
}

// Mode identifies which embedder a Generator is currently using.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
)

// Package vector provides the knowledge vector index: flat inner-product backends with on-disk
// persistence and an Index that maps backend positions to entry ids and swaps whole snapshots
// on rebuild.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// BackendType names a vector backend implementation.
type BackendType string

const (
	// BackendMemory is exhaustive in-process inner product search.
	BackendMemory BackendType = "memory"
	// BackendFAISS uses a FAISS IndexFlatIP. Requires the faiss build tag and the FAISS C library.
	BackendFAISS BackendType = "faiss"
)

var (
	// ErrNotInitialized is returned when the index is used before it was built or loaded
	// and no data source is available to build it.
	ErrNotInitialized = errors.New("vector index not initialized")
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrStaleEmbedding is returned when an embedding was produced by a model other than the index's.
	ErrStaleEmbedding = errors.New("embedding model does not match index model")
)

// Hit is one backend search result. Position is the insertion order of the vector.
type Hit struct {
	Position int
	Score    float64
}

// Backend stores unit vectors by insertion position and answers top-k inner product queries.
// Callers normalize vectors before Add and Search.
type Backend interface {
	Add(ctx context.Context, vectors [][]float32) error
	// Search returns up to k hits by descending score; equal scores keep the backend's order.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Save writes the vector artifact derived from the base path.
	Save(path string) error
	// Load replaces the contents from the artifact at the base path. A missing artifact yields an
	// error satisfying errors.Is(err, fs.ErrNotExist); a different dimension yields ErrDimensionMismatch.
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// NewBackend creates a backend of the given type. An empty type selects the memory backend.
func NewBackend(backendType string, dimensions int) (Backend, error) {
	switch BackendType(backendType) {
	case BackendMemory, "":
		b, err := NewMemoryBackend(dimensions)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendFAISS:
		b, err := NewFAISSBackend(dimensions)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss)", backendType)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in (build tag faiss).
func IsFAISSAvailable() bool {
	b, err := NewFAISSBackend(1)
	if err != nil {
		return false
	}
	_ = b.Close()
	return true
}

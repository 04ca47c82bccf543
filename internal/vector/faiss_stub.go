//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

var errFAISSUnavailable = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSBackend is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSBackend struct{}

// NewFAISSBackend returns an error because FAISS is not available.
func NewFAISSBackend(int) (*FAISSBackend, error) {
	return nil, errFAISSUnavailable
}

// Add is not implemented without FAISS.
func (f *FAISSBackend) Add(context.Context, [][]float32) error { return errFAISSUnavailable }

// Search is not implemented without FAISS.
func (f *FAISSBackend) Search(context.Context, []float32, int) ([]Hit, error) {
	return nil, errFAISSUnavailable
}

// Save is not implemented without FAISS.
func (f *FAISSBackend) Save(string) error { return errFAISSUnavailable }

// Load is not implemented without FAISS.
func (f *FAISSBackend) Load(string) error { return errFAISSUnavailable }

// Size returns 0 without FAISS.
func (f *FAISSBackend) Size() int { return 0 }

// Dimensions returns 0 without FAISS.
func (f *FAISSBackend) Dimensions() int { return 0 }

// Type returns the backend type identifier.
func (f *FAISSBackend) Type() string { return string(BackendFAISS) }

// Close is a no-op without FAISS.
func (f *FAISSBackend) Close() error { return nil }

// Package storage defines the persistence interface for knowledge entries and search logs.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/shika/internal/models"
)

// ErrNotFound is returned when an entry does not exist or is no longer active.
var ErrNotFound = errors.New("knowledge entry not found")

// EmbeddingUpdate replaces the stored embedding of one entry.
type EmbeddingUpdate struct {
	ID        string
	Embedding []float32
	Model     string
}

// Storage defines knowledge entry persistence. Every read except FindEntry sees active entries only.
type Storage interface {
	CreateEntry(ctx context.Context, e *models.KnowledgeEntry) error
	BatchCreateEntries(ctx context.Context, entries []*models.KnowledgeEntry) error
	GetEntry(ctx context.Context, id string) (*models.KnowledgeEntry, error)
	GetEntries(ctx context.Context, ids []string) (map[string]*models.KnowledgeEntry, error)
	UpdateEntry(ctx context.Context, e *models.KnowledgeEntry) error
	UpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error
	DeactivateEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, filter models.ListFilter) ([]*models.KnowledgeEntry, error)
	ListActiveEntries(ctx context.Context) ([]*models.KnowledgeEntry, error)

	// FindEntry looks up an entry by question and source regardless of its active flag.
	FindEntry(ctx context.Context, question, source string) (*models.KnowledgeEntry, error)

	ListCategories(ctx context.Context) ([]string, error)
	ListSources(ctx context.Context) ([]string, error)
	CountEntries(ctx context.Context, active bool) (int64, error)
	CountByCategory(ctx context.Context) (map[string]int64, error)
	CountBySource(ctx context.Context) (map[string]int64, error)

	LogSearch(ctx context.Context, log *models.SearchLog) error

	Close() error
}

// Package knowledge is the durable record of question/answer entries. Every text-changing
// operation regenerates the entry's embedding before it returns, so an active entry never
// carries an embedding of stale text.
package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shika/internal/embedding"
	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/storage"
)

// Embedder is the part of embedding.Generator the store needs.
type Embedder interface {
	EmbedQA(ctx context.Context, question, answer string) ([]float32, string, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error)
	Model() string
}

var _ Embedder = (*embedding.Generator)(nil)

// Store combines persistence with embedding generation.
type Store struct {
	storage  storage.Storage
	embedder Embedder
	logger   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store over st using embedder for all embeddings.
func NewStore(st storage.Storage, embedder Embedder, opts ...Option) *Store {
	s := &Store{storage: st, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in, embeds it and stores a new active entry.
func (s *Store) Create(ctx context.Context, in models.KnowledgeInput) (*models.KnowledgeEntry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	vec, model, err := s.embedder.EmbedQA(ctx, in.Question, in.Answer)
	if err != nil {
		return nil, fmt.Errorf("embed entry: %w", err)
	}
	e := newEntry(in, vec, model)
	if err := s.storage.CreateEntry(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Debug("knowledge entry created", zap.String("id", e.ID), zap.String("source", e.Source))
	return e, nil
}

// BatchCreate validates every input, embeds them in one batch and stores them in one transaction.
// Nothing is stored if any input is invalid.
func (s *Store) BatchCreate(ctx context.Context, inputs []models.KnowledgeInput) ([]*models.KnowledgeEntry, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(inputs))
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		texts[i] = embedding.QAText(inputs[i].Question, inputs[i].Answer)
	}
	vecs, model, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed entries: %w", err)
	}
	entries := make([]*models.KnowledgeEntry, len(inputs))
	for i, in := range inputs {
		entries[i] = newEntry(in, vecs[i], model)
	}
	if err := s.storage.BatchCreateEntries(ctx, entries); err != nil {
		return nil, err
	}
	s.logger.Info("knowledge entries created", zap.Int("count", len(entries)), zap.String("model", model))
	return entries, nil
}

func newEntry(in models.KnowledgeInput, vec []float32, model string) *models.KnowledgeEntry {
	return &models.KnowledgeEntry{
		ID:             uuid.New().String(),
		Question:       in.Question,
		Answer:         in.Answer,
		Category:       in.Category,
		Source:         in.Source,
		SourceURL:      in.SourceURL,
		Embedding:      vec,
		EmbeddingModel: model,
		Active:         true,
	}
}

// Update applies u to an active entry. The embedding is regenerated when the question or answer
// changed, or when the stored embedding came from a model other than the current one.
func (s *Store) Update(ctx context.Context, id string, u models.KnowledgeUpdate) (*models.KnowledgeEntry, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	e, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	textChanged := u.Apply(e)
	if textChanged || e.EmbeddingModel != s.embedder.Model() || len(e.Embedding) == 0 {
		vec, model, err := s.embedder.EmbedQA(ctx, e.Question, e.Answer)
		if err != nil {
			return nil, fmt.Errorf("embed entry: %w", err)
		}
		e.Embedding = vec
		e.EmbeddingModel = model
	}
	if err := s.storage.UpdateEntry(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Debug("knowledge entry updated", zap.String("id", id), zap.Bool("reembedded", textChanged))
	return e, nil
}

// SoftDelete marks an active entry inactive. Its row and embedding are kept.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	if err := s.storage.DeactivateEntry(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("knowledge entry deactivated", zap.String("id", id))
	return nil
}

// Get returns an active entry.
func (s *Store) Get(ctx context.Context, id string) (*models.KnowledgeEntry, error) {
	return s.storage.GetEntry(ctx, id)
}

// GetMany returns the active entries among ids keyed by ID.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]*models.KnowledgeEntry, error) {
	return s.storage.GetEntries(ctx, ids)
}

// List returns active entries matching filter.
func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.KnowledgeEntry, error) {
	return s.storage.ListEntries(ctx, filter)
}

// ListActive returns every active entry with its stored embedding.
func (s *Store) ListActive(ctx context.Context) ([]*models.KnowledgeEntry, error) {
	return s.storage.ListActiveEntries(ctx)
}

// Categories lists the categories in use by active entries.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	return s.storage.ListCategories(ctx)
}

// Sources lists the sources in use by active entries.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	return s.storage.ListSources(ctx)
}

// Find returns the entry with the given question and source, active or not.
func (s *Store) Find(ctx context.Context, question, source string) (*models.KnowledgeEntry, error) {
	return s.storage.FindEntry(ctx, question, source)
}

// Exists reports whether any entry, active or not, has the given question and source.
func (s *Store) Exists(ctx context.Context, question, source string) (bool, error) {
	_, err := s.storage.FindEntry(ctx, question, source)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Reembed regenerates the embeddings of all active entries with the current model and returns
// how many were updated.
func (s *Store) Reembed(ctx context.Context) (int, error) {
	entries, err := s.storage.ListActiveEntries(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = embedding.QAText(e.Question, e.Answer)
	}
	vecs, model, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed entries: %w", err)
	}
	updates := make([]storage.EmbeddingUpdate, len(entries))
	for i, e := range entries {
		updates[i] = storage.EmbeddingUpdate{ID: e.ID, Embedding: vecs[i], Model: model}
	}
	if err := s.storage.UpdateEmbeddings(ctx, updates); err != nil {
		return 0, err
	}
	s.logger.Info("knowledge embeddings regenerated", zap.Int("count", len(updates)), zap.String("model", model))
	return len(updates), nil
}

// CountStale counts active entries whose embedding is missing or came from another model than
// the current one.
func (s *Store) CountStale(ctx context.Context) (int, error) {
	entries, err := s.storage.ListActiveEntries(ctx)
	if err != nil {
		return 0, err
	}
	model := s.embedder.Model()
	n := 0
	for _, e := range entries {
		if len(e.Embedding) == 0 || e.EmbeddingModel != model {
			n++
		}
	}
	return n, nil
}

// Stats counts entries by lifecycle state, category and source.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	var st models.StoreStats
	var err error
	if st.Active, err = s.storage.CountEntries(ctx, true); err != nil {
		return st, err
	}
	if st.Inactive, err = s.storage.CountEntries(ctx, false); err != nil {
		return st, err
	}
	if st.ByCategory, err = s.storage.CountByCategory(ctx); err != nil {
		return st, err
	}
	if st.BySource, err = s.storage.CountBySource(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// LogSearch records a chat session search.
func (s *Store) LogSearch(ctx context.Context, log *models.SearchLog) error {
	return s.storage.LogSearch(ctx, log)
}

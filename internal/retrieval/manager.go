// Package retrieval keeps the knowledge store and the vector index consistent across writes and
// answers similarity searches with hydrated entries.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/shika/internal/config"
	"github.com/hyperjump/shika/internal/embedding"
	"github.com/hyperjump/shika/internal/knowledge"
	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/telemetry"
	"github.com/hyperjump/shika/internal/vector"
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, string, error)
	Model() string
	Dimensions() int
	Mode() embedding.Mode
}

var _ QueryEmbedder = (*embedding.Generator)(nil)

// Manager wraps the knowledge store and the vector index for every mutating operation.
// Index maintenance after a successful store write is best effort: failures are logged and the
// next rebuild catches up.
type Manager struct {
	store    *knowledge.Store
	index    *vector.Index
	embedder QueryEmbedder
	config   *config.RetrievalConfig
	logger   *zap.Logger
	metrics  *telemetry.Metrics

	reembedGroup singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates a manager. A nil cfg uses the default retrieval settings.
func NewManager(
	store *knowledge.Store,
	index *vector.Index,
	embedder QueryEmbedder,
	cfg *config.RetrievalConfig,
	opts ...Option,
) *Manager {
	if cfg == nil {
		var c config.Config
		config.ApplyDefaults(&c)
		cfg = &c.Retrieval
	}
	m := &Manager{
		store:    store,
		index:    index,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize loads or builds the index. When active entries carry embeddings from another model
// than the generator's, they are re-embedded first so the index never mixes vector spaces.
func (m *Manager) Initialize(ctx context.Context) error {
	stale, err := m.store.CountStale(ctx)
	if err != nil {
		return fmt.Errorf("check stored embeddings: %w", err)
	}
	if stale > 0 {
		m.logger.Warn("stored embeddings do not match the current model, re-embedding",
			zap.Int("stale", stale),
			zap.String("model", m.embedder.Model()))
		return m.ReembedAll(ctx)
	}
	return m.index.Initialize(ctx)
}

// AddQA stores a new entry and adds it to the index. The entry is kept even if indexing fails.
func (m *Manager) AddQA(ctx context.Context, in models.KnowledgeInput) (*models.KnowledgeEntry, error) {
	e, err := m.store.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	switch {
	case !m.index.Initialized():
		// Initialization reads the store, which already holds e.
		if err := m.Initialize(ctx); err != nil {
			m.maintenanceFailed("add", e.ID, err)
		}
	case e.EmbeddingModel != m.index.Model():
		// The generator switched models while embedding e.
		if err := m.refreshIndex(ctx); err != nil {
			m.maintenanceFailed("add", e.ID, err)
		}
	default:
		if err := m.index.Add(ctx, e.ID, e.Embedding, e.EmbeddingModel); err != nil {
			m.maintenanceFailed("add", e.ID, err)
		}
	}
	m.logger.Info("knowledge entry added", zap.String("id", e.ID), zap.String("category", e.Category))
	return e, nil
}

// BatchAddQA stores entries in bulk and rebuilds the index once.
func (m *Manager) BatchAddQA(ctx context.Context, inputs []models.KnowledgeInput) ([]*models.KnowledgeEntry, error) {
	entries, err := m.store.BatchCreate(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}
	if err := m.refreshIndex(ctx); err != nil {
		m.maintenanceFailed("batch_add", "", err)
	}
	m.logger.Info("knowledge entries added", zap.Int("count", len(entries)))
	return entries, nil
}

// UpdateQA updates an active entry, re-embedding changed text, then rebuilds the index.
func (m *Manager) UpdateQA(ctx context.Context, id string, u models.KnowledgeUpdate) (*models.KnowledgeEntry, error) {
	e, err := m.store.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if err := m.refreshIndex(ctx); err != nil {
		m.maintenanceFailed("update", id, err)
	}
	m.logger.Info("knowledge entry updated", zap.String("id", id))
	return e, nil
}

// EntryUpdate is one edit of a BatchUpdateQA call.
type EntryUpdate struct {
	ID     string
	Update models.KnowledgeUpdate
}

// BatchUpdateQA applies updates in order and rebuilds the index once. It stops at the first
// failing update; edits stored before it are still indexed.
func (m *Manager) BatchUpdateQA(ctx context.Context, updates []EntryUpdate) ([]*models.KnowledgeEntry, error) {
	entries := make([]*models.KnowledgeEntry, 0, len(updates))
	var updateErr error
	for _, u := range updates {
		e, err := m.store.Update(ctx, u.ID, u.Update)
		if err != nil {
			updateErr = fmt.Errorf("update %s: %w", u.ID, err)
			break
		}
		entries = append(entries, e)
	}
	if len(entries) > 0 {
		if err := m.refreshIndex(ctx); err != nil {
			m.maintenanceFailed("batch_update", "", err)
		}
		m.logger.Info("knowledge entries updated", zap.Int("count", len(entries)))
	}
	return entries, updateErr
}

// DeleteQA soft-deletes an entry. It is hidden from search at once and dropped by the rebuild that follows.
func (m *Manager) DeleteQA(ctx context.Context, id string) error {
	if err := m.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	m.index.Tombstone(id)
	if err := m.refreshIndex(ctx); err != nil {
		m.maintenanceFailed("delete", id, err)
	}
	m.logger.Info("knowledge entry deleted", zap.String("id", id))
	return nil
}

// DuplicateQA copies an active entry under a new question. An empty question yields "Copy of: <question>".
func (m *Manager) DuplicateQA(ctx context.Context, id, question string) (*models.KnowledgeEntry, error) {
	src, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if question == "" {
		question = "Copy of: " + src.Question
	}
	return m.AddQA(ctx, models.KnowledgeInput{
		Question:  question,
		Answer:    src.Answer,
		Category:  src.Category,
		Source:    src.Source,
		SourceURL: src.SourceURL,
	})
}

// GetQA returns an active entry.
func (m *Manager) GetQA(ctx context.Context, id string) (*models.KnowledgeEntry, error) {
	return m.store.Get(ctx, id)
}

// ListQA returns active entries matching filter.
func (m *Manager) ListQA(ctx context.Context, filter models.ListFilter) ([]*models.KnowledgeEntry, error) {
	return m.store.List(ctx, filter)
}

// Categories lists categories of active entries.
func (m *Manager) Categories(ctx context.Context) ([]string, error) {
	return m.store.Categories(ctx)
}

// Sources lists sources of active entries.
func (m *Manager) Sources(ctx context.Context) ([]string, error) {
	return m.store.Sources(ctx)
}

// Exists reports whether an entry with question and source was ever stored.
func (m *Manager) Exists(ctx context.Context, question, source string) (bool, error) {
	return m.store.Exists(ctx, question, source)
}

// Find returns the entry with question and source, active or not.
func (m *Manager) Find(ctx context.Context, question, source string) (*models.KnowledgeEntry, error) {
	return m.store.Find(ctx, question, source)
}

// Rebuild rebuilds the index from the store, re-embedding first if the embedding model changed.
// Errors are returned to the caller.
func (m *Manager) Rebuild(ctx context.Context) error {
	return m.refreshIndex(ctx)
}

// refreshIndex rebuilds the index from stored embeddings. When any active entry or the index
// itself belongs to another model than the generator's, everything is re-embedded instead, since
// a plain rebuild would skip the stale entries.
func (m *Manager) refreshIndex(ctx context.Context) error {
	stale, err := m.store.CountStale(ctx)
	if err != nil {
		return fmt.Errorf("check stored embeddings: %w", err)
	}
	if stale > 0 || (m.index.Initialized() && m.index.Model() != m.embedder.Model()) {
		m.logger.Warn("embedding model changed, re-embedding knowledge base",
			zap.Int("stale", stale),
			zap.String("index_model", m.index.Model()),
			zap.String("model", m.embedder.Model()))
		return m.ReembedAll(ctx)
	}
	return m.index.Rebuild(ctx)
}

// ReembedAll regenerates every active embedding with the current model and rebuilds the index.
// Concurrent callers share one run.
func (m *Manager) ReembedAll(ctx context.Context) error {
	_, err, _ := m.reembedGroup.Do("reembed", func() (interface{}, error) {
		n, err := m.store.Reembed(ctx)
		if err != nil {
			return nil, fmt.Errorf("reembed entries: %w", err)
		}
		if err := m.index.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
		m.logger.Info("knowledge base re-embedded",
			zap.Int("entries", n),
			zap.String("model", m.embedder.Model()),
			zap.String("mode", string(m.embedder.Mode())))
		return nil, nil
	})
	return err
}

// SearchQA embeds the query, searches the index and joins hits with their entries. Category is a
// hard filter applied after ranking, so fewer than Limit results may be returned. Invalid queries
// return an error; retrieval failures are logged and yield an empty response.
func (m *Manager) SearchQA(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(m.config.DefaultK, m.config.MaxK, m.config.DefaultThreshold); err != nil {
		return nil, err
	}
	resp := &models.SearchResponse{Query: q.Query, Results: []*models.SearchResult{}}

	results, err := m.search(ctx, q)
	resp.Mode = string(m.embedder.Mode())
	resp.QueryTime = time.Since(start).Milliseconds()
	if err != nil {
		m.metrics.ObserveSearch("error", time.Since(start), 0)
		m.logger.Error("knowledge search failed", zap.String("query", q.Query), zap.Error(err))
		return resp, nil
	}
	resp.Results = results
	resp.Total = len(results)
	m.metrics.ObserveSearch("success", time.Since(start), len(results))
	m.logger.Debug("knowledge search",
		zap.String("query", q.Query),
		zap.Int("results", len(results)),
		zap.Int64("took_ms", resp.QueryTime))

	if q.SessionID != "" {
		m.logSearch(ctx, q, results, time.Since(start))
	}
	return resp, nil
}

func (m *Manager) search(ctx context.Context, q *models.SearchQuery) ([]*models.SearchResult, error) {
	// Embed before touching the index so a slow provider never holds index locks.
	vec, model, err := m.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if !m.index.Initialized() {
		if err := m.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initialize index: %w", err)
		}
	}
	if m.index.Model() != model {
		m.logger.Warn("embedding model changed, re-embedding knowledge base",
			zap.String("index_model", m.index.Model()),
			zap.String("model", model))
		if err := m.ReembedAll(ctx); err != nil {
			return nil, err
		}
	}

	hits, err := m.index.Search(ctx, vec, q.Limit, q.ThresholdValue())
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		return []*models.SearchResult{}, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	entries, err := m.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		e, ok := entries[h.ID]
		if !ok {
			// Deactivated after the index snapshot was taken.
			continue
		}
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		results = append(results, &models.SearchResult{
			ID:        e.ID,
			Score:     h.Score,
			Rank:      len(results) + 1,
			Question:  e.Question,
			Answer:    e.Answer,
			Category:  e.Category,
			Source:    e.Source,
			SourceURL: e.SourceURL,
		})
	}
	return results, nil
}

func (m *Manager) logSearch(ctx context.Context, q *models.SearchQuery, results []*models.SearchResult, took time.Duration) {
	log := &models.SearchLog{
		SessionID:  q.SessionID,
		Query:      q.Query,
		Limit:      q.Limit,
		Threshold:  q.ThresholdValue(),
		ResultIDs:  make([]string, len(results)),
		Scores:     make([]float64, len(results)),
		DurationMS: took.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	for i, r := range results {
		log.ResultIDs[i] = r.ID
		log.Scores[i] = r.Score
	}
	if err := m.store.LogSearch(ctx, log); err != nil {
		m.metrics.MaintenanceError("search_log")
		m.logger.Warn("failed to log search", zap.String("session_id", q.SessionID), zap.Error(err))
	}
}

// Ground runs the chat-facing search with the chat defaults and scores how well the results cover
// the query.
func (m *Manager) Ground(ctx context.Context, query, sessionID string) (*models.Grounding, error) {
	resp, err := m.SearchQA(ctx, &models.SearchQuery{
		Query:     query,
		Limit:     m.config.ChatK,
		Threshold: models.Float64(m.config.ChatThreshold),
		SessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}
	return &models.Grounding{
		Query:      resp.Query,
		Results:    resp.Results,
		Confidence: Confidence(resp.Results),
	}, nil
}

// Confidence is the best score scaled by how many results back it up, saturating at three.
func Confidence(results []*models.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	best := results[0].Score
	for _, r := range results[1:] {
		best = math.Max(best, r.Score)
	}
	support := math.Min(float64(len(results))/3, 1)
	return math.Min(best*(0.7+0.3*support), 1)
}

// Stats combines store and index statistics.
func (m *Manager) Stats(ctx context.Context) (*models.Stats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Stats{
		Store:         st,
		Index:         m.index.Stats(),
		EmbeddingMode: string(m.embedder.Mode()),
		Model:         m.embedder.Model(),
		Dimensions:    m.embedder.Dimensions(),
	}, nil
}

func (m *Manager) maintenanceFailed(op, id string, err error) {
	m.metrics.MaintenanceError(op)
	m.logger.Warn("index maintenance failed; entry stays stored until the next rebuild",
		zap.String("operation", op),
		zap.String("id", id),
		zap.Error(err))
}

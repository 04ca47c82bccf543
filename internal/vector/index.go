package vector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/telemetry"
	"github.com/hyperjump/shika/pkg/utils"
)

// ErrClosed is returned by an Index after Close.
var ErrClosed = errors.New("vector index closed")

var errSnapshotClosed = errors.New("snapshot replaced")

// Skip reasons reported when an entry cannot be indexed.
const (
	SkipMissing    = "missing"
	SkipDimension  = "dimension"
	SkipStaleModel = "stale_model"
)

// Source lists the entries an index is built from.
type Source interface {
	ListActive(ctx context.Context) ([]*models.KnowledgeEntry, error)
}

// Descriptor reports the embedding space new snapshots are built in.
type Descriptor interface {
	Dimensions() int
	Model() string
}

// Result is one ranked index hit.
type Result struct {
	ID    string
	Score float64
	Rank  int
}

// snapshot is an immutable-by-swap view: a backend plus its position to id table.
// Add and Tombstone mutate it in place under mu; Rebuild replaces it whole.
type snapshot struct {
	mu           sync.RWMutex
	backend      Backend
	ids          []string
	fingerprints []uint64
	positions    map[string]int
	tombstones   *roaring.Bitmap
	dims         int
	model        string
	closed       bool
}

func newSnapshot(backend Backend, ids []string, fingerprints []uint64, dims int, model string) *snapshot {
	positions := make(map[string]int, len(ids))
	for i, id := range ids {
		positions[id] = i
	}
	return &snapshot{
		backend:      backend,
		ids:          ids,
		fingerprints: fingerprints,
		positions:    positions,
		tombstones:   roaring.New(),
		dims:         dims,
		model:        model,
	}
}

func (s *snapshot) live() int {
	return len(s.ids) - int(s.tombstones.GetCardinality())
}

func (s *snapshot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.backend.Close()
}

func (s *snapshot) search(ctx context.Context, query []float32, k int, threshold float64) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errSnapshotClosed
	}
	if len(query) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), s.dims)
	}
	if s.live() == 0 {
		return []Result{}, nil
	}

	fetch := k + int(s.tombstones.GetCardinality())
	hits, err := s.backend.Search(ctx, utils.NormalizedCopy(query), fetch)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, k)
	for _, h := range hits {
		if len(results) == k {
			break
		}
		if h.Position < 0 || h.Position >= len(s.ids) || s.tombstones.Contains(uint32(h.Position)) {
			continue
		}
		score := clampScore(h.Score)
		if score < threshold {
			continue
		}
		results = append(results, Result{
			ID:    s.ids[h.Position],
			Score: score,
			Rank:  len(results) + 1,
		})
	}
	return results, nil
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Index maps backend positions to knowledge entry ids. Searches run against the current snapshot
// without blocking on rebuilds; structural changes are serialized by buildMu.
type Index struct {
	current   atomic.Pointer[snapshot]
	closed    atomic.Bool
	buildMu   sync.Mutex
	initGroup singleflight.Group

	backendType BackendType
	path        string
	source      Source
	desc        Descriptor
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithBackend selects the backend type for new snapshots.
func WithBackend(t string) IndexOption {
	return func(x *Index) {
		if t != "" {
			x.backendType = BackendType(t)
		}
	}
}

// WithPath sets the base path of the persisted artifacts. Empty disables persistence.
func WithPath(path string) IndexOption {
	return func(x *Index) { x.path = path }
}

// WithSource sets the entry source used by Initialize and Rebuild.
func WithSource(src Source) IndexOption {
	return func(x *Index) { x.source = src }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexOption {
	return func(x *Index) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) IndexOption {
	return func(x *Index) { x.metrics = m }
}

// NewIndex creates an uninitialized index. desc decides the model and dimension of every build.
func NewIndex(desc Descriptor, opts ...IndexOption) *Index {
	x := &Index{
		backendType: BackendMemory,
		desc:        desc,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Initialized reports whether a snapshot is live.
func (x *Index) Initialized() bool {
	return x.current.Load() != nil
}

// Initialize loads the persisted index when it matches the source, and rebuilds otherwise.
// Concurrent callers share one initialization.
func (x *Index) Initialize(ctx context.Context) error {
	if x.closed.Load() {
		return ErrClosed
	}
	if x.Initialized() {
		return nil
	}
	_, err, _ := x.initGroup.Do("init", func() (interface{}, error) {
		x.buildMu.Lock()
		defer x.buildMu.Unlock()
		if x.current.Load() != nil {
			return nil, nil
		}
		if x.source == nil {
			return nil, ErrNotInitialized
		}
		entries, err := x.source.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active entries: %w", err)
		}
		if snap := x.loadPersisted(entries); snap != nil {
			x.current.Store(snap)
			x.metrics.SetIndexSize(snap.live(), 0)
			x.logger.Info("vector index loaded",
				zap.String("path", x.path),
				zap.Int("size", len(snap.ids)),
				zap.String("model", snap.model))
			return nil, nil
		}
		return nil, x.rebuildLocked(ctx, entries)
	})
	return err
}

// Rebuild reads every active entry from the source and swaps in a fresh snapshot.
func (x *Index) Rebuild(ctx context.Context) error {
	if x.closed.Load() {
		return ErrClosed
	}
	if x.source == nil {
		return ErrNotInitialized
	}
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	entries, err := x.source.ListActive(ctx)
	if err != nil {
		x.metrics.ObserveRebuild("error", 0)
		return fmt.Errorf("list active entries: %w", err)
	}
	return x.rebuildLocked(ctx, entries)
}

// Build swaps in a snapshot built from entries. Entries that cannot be indexed are skipped.
func (x *Index) Build(ctx context.Context, entries []*models.KnowledgeEntry) error {
	if x.closed.Load() {
		return ErrClosed
	}
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	return x.rebuildLocked(ctx, entries)
}

func (x *Index) rebuildLocked(ctx context.Context, entries []*models.KnowledgeEntry) error {
	start := time.Now()
	dims, model := x.desc.Dimensions(), x.desc.Model()

	ids := make([]string, 0, len(entries))
	fingerprints := make([]uint64, 0, len(entries))
	vectors := make([][]float32, 0, len(entries))
	for _, e := range entries {
		if reason := indexable(e, dims, model); reason != "" {
			x.metrics.SkippedEntry(reason)
			x.logger.Warn("skipping entry",
				zap.String("id", e.ID),
				zap.String("reason", reason),
				zap.String("embedding_model", e.EmbeddingModel),
				zap.Int("embedding_dimensions", len(e.Embedding)))
			continue
		}
		ids = append(ids, e.ID)
		fingerprints = append(fingerprints, fingerprint(e.Embedding))
		vectors = append(vectors, utils.NormalizedCopy(e.Embedding))
	}

	backend, err := NewBackend(string(x.backendType), dims)
	if err != nil {
		x.metrics.ObserveRebuild("error", time.Since(start))
		return fmt.Errorf("create backend: %w", err)
	}
	if err := backend.Add(ctx, vectors); err != nil {
		_ = backend.Close()
		x.metrics.ObserveRebuild("error", time.Since(start))
		return fmt.Errorf("add vectors: %w", err)
	}

	snap := newSnapshot(backend, ids, fingerprints, dims, model)
	x.persist(snap)
	if old := x.current.Swap(snap); old != nil {
		old.close()
	}

	x.metrics.ObserveRebuild("success", time.Since(start))
	x.metrics.SetIndexSize(len(ids), 0)
	x.logger.Info("vector index rebuilt",
		zap.Int("size", len(ids)),
		zap.Int("skipped", len(entries)-len(ids)),
		zap.String("model", model),
		zap.Duration("took", time.Since(start)))
	return nil
}

// indexable returns the skip reason for e, or "" when it can be indexed.
func indexable(e *models.KnowledgeEntry, dims int, model string) string {
	switch {
	case len(e.Embedding) == 0:
		return SkipMissing
	case len(e.Embedding) != dims:
		return SkipDimension
	case e.EmbeddingModel != model:
		return SkipStaleModel
	}
	return ""
}

// loadPersisted returns a snapshot from disk when its model, dimension, ids and embeddings match
// the indexable entries exactly, and nil otherwise.
func (x *Index) loadPersisted(entries []*models.KnowledgeEntry) *snapshot {
	if x.path == "" {
		return nil
	}
	dims, model := x.desc.Dimensions(), x.desc.Model()

	m, err := loadMapping(x.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			x.logger.Info("no persisted vector index, building", zap.String("path", x.path))
		} else {
			x.logger.Warn("persisted id map unreadable, rebuilding", zap.Error(err))
		}
		return nil
	}
	if m.Dimensions != dims || m.Model != model {
		x.logger.Info("persisted vector index built for another model, rebuilding",
			zap.String("persisted_model", m.Model),
			zap.Int("persisted_dimensions", m.Dimensions),
			zap.String("model", model),
			zap.Int("dimensions", dims))
		return nil
	}
	if len(m.Fingerprints) != len(m.IDs) {
		x.logger.Warn("persisted id map is incomplete, rebuilding")
		return nil
	}

	want := make(map[string]uint64, len(entries))
	for _, e := range entries {
		if indexable(e, dims, model) == "" {
			want[e.ID] = fingerprint(e.Embedding)
		}
	}
	if len(want) != len(m.IDs) {
		x.logger.Info("persisted vector index is out of date, rebuilding",
			zap.Int("persisted", len(m.IDs)),
			zap.Int("active", len(want)))
		return nil
	}
	for i, id := range m.IDs {
		fp, ok := want[id]
		if !ok || fp != m.Fingerprints[i] {
			x.logger.Info("persisted vector index is out of date, rebuilding", zap.String("id", id))
			return nil
		}
		delete(want, id)
	}

	backend, err := NewBackend(string(x.backendType), dims)
	if err != nil {
		x.logger.Warn("create backend", zap.Error(err))
		return nil
	}
	if err := backend.Load(x.path); err != nil {
		_ = backend.Close()
		x.logger.Warn("persisted vectors unreadable, rebuilding", zap.Error(err))
		return nil
	}
	if backend.Size() != len(m.IDs) {
		_ = backend.Close()
		x.logger.Warn("persisted vectors and id map disagree, rebuilding",
			zap.Int("vectors", backend.Size()),
			zap.Int("ids", len(m.IDs)))
		return nil
	}
	return newSnapshot(backend, m.IDs, m.Fingerprints, dims, model)
}

// persist writes the snapshot's vectors, then its id map. Failures are logged; the in-memory
// snapshot stays authoritative and the next start detects a torn pair.
func (x *Index) persist(s *snapshot) {
	if x.path == "" {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.backend.Save(x.path); err != nil {
		x.metrics.MaintenanceError("persist")
		x.logger.Warn("failed to persist vectors", zap.String("path", x.path), zap.Error(err))
		return
	}
	m := mapping{
		Model:        s.model,
		Dimensions:   s.dims,
		IDs:          append([]string(nil), s.ids...),
		Fingerprints: append([]uint64(nil), s.fingerprints...),
	}
	if err := saveMapping(x.path, m); err != nil {
		x.metrics.MaintenanceError("persist")
		x.logger.Warn("failed to persist id map", zap.String("path", x.path), zap.Error(err))
	}
}

// Add appends one entry's embedding to the live snapshot. Adding an id that is already live is a no-op.
func (x *Index) Add(ctx context.Context, id string, vec []float32, model string) error {
	if x.closed.Load() {
		return ErrClosed
	}
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	s := x.current.Load()
	if s == nil {
		return ErrNotInitialized
	}
	if model != s.model {
		return fmt.Errorf("%w: entry %s has %q, index has %q", ErrStaleEmbedding, id, model, s.model)
	}
	if len(vec) != s.dims {
		return fmt.Errorf("%w: entry %s has %d, index has %d", ErrDimensionMismatch, id, len(vec), s.dims)
	}

	s.mu.Lock()
	if pos, ok := s.positions[id]; ok && !s.tombstones.Contains(uint32(pos)) {
		s.mu.Unlock()
		return nil
	}
	if err := s.backend.Add(ctx, [][]float32{utils.NormalizedCopy(vec)}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.positions[id] = len(s.ids)
	s.ids = append(s.ids, id)
	s.fingerprints = append(s.fingerprints, fingerprint(vec))
	live, dead := s.live(), int(s.tombstones.GetCardinality())
	s.mu.Unlock()

	x.metrics.SetIndexSize(live, dead)
	x.persist(s)
	return nil
}

// Tombstone hides ids from search until the next rebuild. It returns how many were live.
func (x *Index) Tombstone(ids ...string) int {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	s := x.current.Load()
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		pos, ok := s.positions[id]
		if !ok || s.tombstones.Contains(uint32(pos)) {
			continue
		}
		s.tombstones.Add(uint32(pos))
		n++
	}
	x.metrics.SetIndexSize(s.live(), int(s.tombstones.GetCardinality()))
	return n
}

// Search returns up to k live entries with score >= threshold, best first, ranked from 1.
// An uninitialized index with a source is initialized first.
func (x *Index) Search(ctx context.Context, query []float32, k int, threshold float64) ([]Result, error) {
	if k <= 0 {
		return []Result{}, nil
	}
	for attempt := 0; attempt < 3; attempt++ {
		if x.closed.Load() {
			return nil, ErrClosed
		}
		s := x.current.Load()
		if s == nil {
			if err := x.Initialize(ctx); err != nil {
				return nil, err
			}
			continue
		}
		results, err := s.search(ctx, query, k, threshold)
		if errors.Is(err, errSnapshotClosed) {
			continue
		}
		return results, err
	}
	return nil, fmt.Errorf("search: index kept changing underneath the query")
}

// Stats summarizes the live snapshot.
func (x *Index) Stats() models.IndexStats {
	stats := models.IndexStats{
		Status:     "not_initialized",
		Dimensions: x.desc.Dimensions(),
		Model:      x.desc.Model(),
		Backend:    string(x.backendType),
	}
	s := x.current.Load()
	if s == nil {
		return stats
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats.Status = "ready"
	stats.Size = s.live()
	stats.Dimensions = s.dims
	stats.Model = s.model
	stats.Tombstones = int(s.tombstones.GetCardinality())
	return stats
}

// MappedIDs returns the live ids in position order.
func (x *Index) MappedIDs() []string {
	s := x.current.Load()
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.live())
	for i, id := range s.ids {
		if !s.tombstones.Contains(uint32(i)) {
			out = append(out, id)
		}
	}
	return out
}

// Size returns the number of live vectors.
func (x *Index) Size() int {
	s := x.current.Load()
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live()
}

// Dimensions returns the dimension of the live snapshot, or of the descriptor before initialization.
func (x *Index) Dimensions() int {
	if s := x.current.Load(); s != nil {
		return s.dims
	}
	return x.desc.Dimensions()
}

// Model returns the embedding model of the live snapshot, or "" before initialization.
func (x *Index) Model() string {
	if s := x.current.Load(); s != nil {
		return s.model
	}
	return ""
}

// Close releases the live snapshot. Later calls fail with ErrClosed.
func (x *Index) Close() error {
	if x.closed.Swap(true) {
		return nil
	}
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	if s := x.current.Swap(nil); s != nil {
		s.close()
	}
	return nil
}

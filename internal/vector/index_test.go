package vector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/shika/internal/models"
)

type fakeDesc struct {
	dims  int
	model string
}

func (d fakeDesc) Dimensions() int { return d.dims }
func (d fakeDesc) Model() string   { return d.model }

type fakeSource struct {
	mu      sync.Mutex
	entries []*models.KnowledgeEntry
	calls   int
}

func (s *fakeSource) ListActive(context.Context) ([]*models.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := make([]*models.KnowledgeEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *fakeSource) set(entries ...*models.KnowledgeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

func entry(id string, vec ...float32) *models.KnowledgeEntry {
	return &models.KnowledgeEntry{ID: id, Embedding: vec, EmbeddingModel: "m", Active: true}
}

func testIndex(t *testing.T, src *fakeSource, opts ...IndexOption) *Index {
	t.Helper()
	opts = append([]IndexOption{WithSource(src)}, opts...)
	x := NewIndex(fakeDesc{dims: 3, model: "m"}, opts...)
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestIndex_SearchAutoInitializes(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0), entry("b", 0, 2, 0), entry("c", 1, 1, 0))
	x := testIndex(t, src)

	results, err := x.Search(context.Background(), []float32{1, 0, 0}, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	if results[0].ID != "a" || results[1].ID != "c" || results[2].ID != "b" {
		t.Errorf("unexpected order: %+v", results)
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Errorf("result %d has rank %d", i, r.Rank)
		}
	}
	if results[0].Score < 0.999 || results[0].Score > 1 {
		t.Errorf("identical direction should score 1, got %f", results[0].Score)
	}
}

func TestIndex_SearchWithoutSource(t *testing.T) {
	x := NewIndex(fakeDesc{dims: 3, model: "m"})
	_, err := x.Search(context.Background(), []float32{1, 0, 0}, 5, 0)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestIndex_Threshold(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0), entry("b", 0, 1, 0))
	x := testIndex(t, src)
	ctx := context.Background()

	results, _ := x.Search(ctx, []float32{1, 0, 0}, 5, 1.1)
	if len(results) != 0 {
		t.Errorf("threshold above 1 should return nothing, got %+v", results)
	}
	results, _ = x.Search(ctx, []float32{1, 0, 0}, 5, 0.5)
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("threshold 0.5: %+v", results)
	}
	results, _ = x.Search(ctx, []float32{1, 0, 0}, 1, 0)
	if len(results) != 1 {
		t.Errorf("k=1: %+v", results)
	}
}

func TestIndex_SkipsUnindexableEntries(t *testing.T) {
	src := &fakeSource{}
	stale := entry("stale", 1, 0, 0)
	stale.EmbeddingModel = "old"
	src.set(entry("ok", 1, 0, 0), entry("missing"), entry("short", 1, 0), stale)
	x := testIndex(t, src)

	if err := x.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	ids := x.MappedIDs()
	if len(ids) != 1 || ids[0] != "ok" {
		t.Errorf("MappedIDs = %v, want [ok]", ids)
	}
}

func TestIndex_QueryDimensionMismatch(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0))
	x := testIndex(t, src)
	_, err := x.Search(context.Background(), []float32{1, 0}, 5, 0)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestIndex_AddAndTombstone(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0))
	x := testIndex(t, src)
	ctx := context.Background()

	if err := x.Add(ctx, "b", []float32{0, 1, 0}, "m"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Add before init: %v", err)
	}
	if err := x.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := x.Add(ctx, "b", []float32{0, 1, 0}, "m"); err != nil {
		t.Fatal(err)
	}
	if err := x.Add(ctx, "b", []float32{0, 1, 0}, "m"); err != nil {
		t.Fatal(err)
	}
	if x.Size() != 2 {
		t.Fatalf("Size=%d, want 2", x.Size())
	}
	if err := x.Add(ctx, "c", []float32{0, 1}, "m"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := x.Add(ctx, "c", []float32{0, 1, 0}, "other"); !errors.Is(err, ErrStaleEmbedding) {
		t.Errorf("expected ErrStaleEmbedding, got %v", err)
	}
	if x.Size() != 2 {
		t.Errorf("rejected adds changed the index: Size=%d, want 2", x.Size())
	}
	for _, id := range x.MappedIDs() {
		if id == "c" {
			t.Error("rejected entry c is mapped")
		}
	}

	if n := x.Tombstone("b", "nope"); n != 1 {
		t.Errorf("Tombstone returned %d, want 1", n)
	}
	results, _ := x.Search(ctx, []float32{0, 1, 0}, 5, -1)
	for _, r := range results {
		if r.ID == "b" {
			t.Errorf("tombstoned id returned: %+v", results)
		}
	}
	if len(results) != 1 || results[0].Rank != 1 {
		t.Errorf("ranks should stay contiguous: %+v", results)
	}
	st := x.Stats()
	if st.Size != 1 || st.Tombstones != 1 || st.Status != "ready" {
		t.Errorf("unexpected stats: %+v", st)
	}

	if err := x.Add(ctx, "b", []float32{0, 1, 0}, "m"); err != nil {
		t.Fatal(err)
	}
	results, _ = x.Search(ctx, []float32{0, 1, 0}, 1, 0.5)
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("re-added id not searchable: %+v", results)
	}
}

func TestIndex_RebuildReflectsSource(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0), entry("b", 0, 1, 0))
	x := testIndex(t, src)
	ctx := context.Background()
	if err := x.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	src.set(entry("b", 0, 1, 0), entry("c", 0, 0, 1))
	if err := x.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	ids := x.MappedIDs()
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("MappedIDs = %v", ids)
	}
}

func TestIndex_RebuildEmpty(t *testing.T) {
	x := testIndex(t, &fakeSource{})
	if err := x.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !x.Initialized() {
		t.Fatal("empty rebuild should still initialize")
	}
	results, err := x.Search(context.Background(), []float32{1, 0, 0}, 5, 0)
	if err != nil || len(results) != 0 {
		t.Errorf("results=%v err=%v", results, err)
	}
}

func TestIndex_PersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb")
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0), entry("b", 0, 1, 0))
	ctx := context.Background()

	first := NewIndex(fakeDesc{dims: 3, model: "m"}, WithSource(src), WithPath(path))
	if err := first.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	m, err := loadMapping(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.IDs) != 2 || m.Model != "m" || m.Dimensions != 3 {
		t.Fatalf("unexpected mapping: %+v", m)
	}

	second := testIndex(t, src, WithPath(path))
	if err := second.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	results, _ := second.Search(ctx, []float32{0, 1, 0}, 1, 0)
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("reloaded index: %+v", results)
	}
}

func TestIndex_ReloadRejectsChangedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb")
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0), entry("b", 0, 1, 0))
	ctx := context.Background()

	first := NewIndex(fakeDesc{dims: 3, model: "m"}, WithSource(src), WithPath(path))
	if err := first.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	// b was re-embedded while the index was down.
	src.set(entry("a", 1, 0, 0), entry("b", 0, 0, 1))
	second := testIndex(t, src, WithPath(path))
	results, err := second.Search(ctx, []float32{0, 0, 1}, 1, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Errorf("stale persisted vectors were loaded: %+v", results)
	}
}

func TestIndex_ReloadRejectsOtherModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb")
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0))
	ctx := context.Background()

	first := NewIndex(fakeDesc{dims: 3, model: "m"}, WithSource(src), WithPath(path))
	if err := first.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	second := NewIndex(fakeDesc{dims: 3, model: "other"}, WithSource(src), WithPath(path))
	defer second.Close()
	if err := second.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if second.Model() != "other" || second.Size() != 0 {
		t.Errorf("model=%s size=%d", second.Model(), second.Size())
	}
}

func TestIndex_ConcurrentInitializeListsOnce(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0))
	x := testIndex(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := x.Search(context.Background(), []float32{1, 0, 0}, 1, 0); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if src.calls != 1 {
		t.Errorf("source listed %d times, want 1", src.calls)
	}
}

func TestIndex_SearchDuringRebuilds(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0), entry("b", 0, 1, 0))
	x := testIndex(t, src)
	ctx := context.Background()
	if err := x.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if err := x.Rebuild(ctx); err != nil {
				t.Error(err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			results, err := x.Search(ctx, []float32{1, 0, 0}, 2, -1)
			if err != nil {
				t.Error(err)
				return
			}
			if len(results) != 2 {
				t.Errorf("search saw %d results mid-rebuild", len(results))
				return
			}
		}
	}()
	wg.Wait()
}

func TestIndex_Close(t *testing.T) {
	src := &fakeSource{}
	src.set(entry("a", 1, 0, 0))
	x := NewIndex(fakeDesc{dims: 3, model: "m"}, WithSource(src))
	if err := x.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = x.Close()
	if _, err := x.Search(context.Background(), []float32{1, 0, 0}, 1, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if x.Stats().Status != "not_initialized" {
		t.Error("closed index should report not_initialized")
	}
}

package corpus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shika/internal/embedding"
	"github.com/hyperjump/shika/internal/knowledge"
	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/retrieval"
	"github.com/hyperjump/shika/internal/storage"
	"github.com/hyperjump/shika/internal/vector"
)

func newTestManager(t *testing.T) (*retrieval.Manager, *vector.Index) {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	gen := embedding.NewGenerator(nil)
	store := knowledge.NewStore(st, gen)
	idx := vector.NewIndex(gen, vector.WithSource(store))
	t.Cleanup(func() { _ = idx.Close() })
	return retrieval.NewManager(store, idx, gen, nil), idx
}

func TestSeeder_SeedIsIdempotent(t *testing.T) {
	m, idx := newTestManager(t)
	s := NewSeeder(m)
	ctx := context.Background()

	first, err := s.Seed(ctx, Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if first.Added != 30 || first.Skipped != 0 {
		t.Errorf("first seed = %+v", first)
	}
	second, err := s.Seed(ctx, Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if second.Added != 0 || second.Skipped != 30 {
		t.Errorf("second seed = %+v", second)
	}

	stats, err := s.Stats(ctx, BuiltinSource)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 30 || idx.Size() != 30 {
		t.Errorf("total=%d index=%d", stats.Total, idx.Size())
	}
	if stats.Categories["oral_hygiene"] != 5 {
		t.Errorf("oral_hygiene = %d", stats.Categories["oral_hygiene"])
	}
}

func TestSeeder_SeedDoesNotResurrectDeleted(t *testing.T) {
	m, _ := newTestManager(t)
	s := NewSeeder(m)
	ctx := context.Background()
	if _, err := s.Seed(ctx, Builtin()); err != nil {
		t.Fatal(err)
	}
	e, err := m.Find(ctx, "What is a root canal?", BuiltinSource)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteQA(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	res, err := s.Seed(ctx, Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 0 {
		t.Errorf("deleted entry re-added: %+v", res)
	}
	stats, _ := s.Stats(ctx, BuiltinSource)
	if stats.Total != 29 {
		t.Errorf("total = %d", stats.Total)
	}
}

func TestSeeder_SeedSkipsDuplicatesWithinCorpus(t *testing.T) {
	m, _ := newTestManager(t)
	s := NewSeeder(m)
	c := &Corpus{Source: "faq", Entries: []models.KnowledgeInput{
		{Question: "Is parking free?", Answer: "Yes.", Source: "faq"},
		{Question: "Is parking free?", Answer: "Yes!", Source: "faq"},
	}}
	res, err := s.Seed(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
}

type countingManager struct {
	*retrieval.Manager
	batchUpdates int
}

func (m *countingManager) BatchUpdateQA(ctx context.Context, updates []retrieval.EntryUpdate) ([]*models.KnowledgeEntry, error) {
	m.batchUpdates++
	return m.Manager.BatchUpdateQA(ctx, updates)
}

func TestSeeder_SyncUpdatesInOneBatch(t *testing.T) {
	rm, idx := newTestManager(t)
	m := &countingManager{Manager: rm}
	s := NewSeeder(m)
	ctx := context.Background()
	c := &Corpus{Source: "faq", Entries: []models.KnowledgeInput{
		{Question: "Is parking free?", Answer: "Yes.", Source: "faq"},
		{Question: "Do you take walk-ins?", Answer: "No.", Source: "faq"},
		{Question: "Where is the clinic?", Answer: "Main street.", Source: "faq"},
	}}
	if _, err := s.Seed(ctx, c); err != nil {
		t.Fatal(err)
	}

	for i := range c.Entries {
		c.Entries[i].Category = "clinic"
	}
	res, err := s.Sync(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 3 || res.Skipped != 0 {
		t.Errorf("sync = %+v", res)
	}
	if m.batchUpdates != 1 {
		t.Errorf("BatchUpdateQA called %d times, want 1", m.batchUpdates)
	}
	if idx.Size() != 3 {
		t.Errorf("index size = %d, want 3", idx.Size())
	}

	if _, err := s.Sync(ctx, c); err != nil {
		t.Fatal(err)
	}
	if m.batchUpdates != 1 {
		t.Errorf("unchanged corpus triggered an update batch")
	}
}

func TestSeeder_Sync(t *testing.T) {
	m, _ := newTestManager(t)
	s := NewSeeder(m)
	ctx := context.Background()
	c := &Corpus{Source: "faq", Entries: []models.KnowledgeInput{
		{Question: "Is parking free?", Answer: "Yes.", Category: "clinic", Source: "faq"},
		{Question: "Do you take walk-ins?", Answer: "No.", Category: "clinic", Source: "faq"},
	}}
	if _, err := s.Seed(ctx, c); err != nil {
		t.Fatal(err)
	}

	c.Entries[1].Answer = "Yes, before 3pm."
	c.Entries = append(c.Entries, models.KnowledgeInput{Question: "Where is the clinic?", Answer: "Main street.", Source: "faq"})
	res, err := s.Sync(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 || res.Updated != 1 || res.Skipped != 1 {
		t.Errorf("sync = %+v", res)
	}
	e, err := m.Find(ctx, "Do you take walk-ins?", "faq")
	if err != nil {
		t.Fatal(err)
	}
	if e.Answer != "Yes, before 3pm." {
		t.Errorf("answer not synced: %q", e.Answer)
	}

	again, err := s.Sync(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if again.Added != 0 || again.Updated != 0 || again.Skipped != 3 {
		t.Errorf("second sync = %+v", again)
	}
}

package knowledge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shika/internal/embedding"
	"github.com/hyperjump/shika/internal/models"
	"github.com/hyperjump/shika/internal/storage"
)

func newTestStore(t *testing.T) (*Store, *embedding.Generator) {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	gen := embedding.NewGenerator(nil)
	return NewStore(st, gen), gen
}

func equal(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_CreateEmbeds(t *testing.T) {
	s, gen := newTestStore(t)
	ctx := context.Background()

	e, err := s.Create(ctx, models.KnowledgeInput{Question: "How often should I brush?", Answer: "Twice a day.", Category: "oral_hygiene"})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Source != models.SourceUserDefined {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Embedding) != gen.Dimensions() || e.EmbeddingModel != gen.Model() {
		t.Errorf("embedding len=%d model=%s", len(e.Embedding), e.EmbeddingModel)
	}
	want, _, _ := gen.EmbedQA(ctx, "How often should I brush?", "Twice a day.")
	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !equal(got.Embedding, want) {
		t.Error("stored embedding should be the Q/A embedding")
	}
}

func TestStore_CreateInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Create(context.Background(), models.KnowledgeInput{Question: "q"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStore_UpdateReembedsOnTextChange(t *testing.T) {
	s, gen := newTestStore(t)
	ctx := context.Background()
	e, _ := s.Create(ctx, models.KnowledgeInput{Question: "How often should I brush?", Answer: "Twice a day."})

	updated, err := s.Update(ctx, e.ID, models.KnowledgeUpdate{Category: models.String("oral_hygiene")})
	if err != nil {
		t.Fatal(err)
	}
	if !equal(updated.Embedding, e.Embedding) {
		t.Error("category-only update must keep the embedding")
	}

	updated, err = s.Update(ctx, e.ID, models.KnowledgeUpdate{Answer: models.String("At least twice a day, for two minutes.")})
	if err != nil {
		t.Fatal(err)
	}
	want, _, _ := gen.EmbedQA(ctx, "How often should I brush?", "At least twice a day, for two minutes.")
	stored, _ := s.Get(ctx, e.ID)
	if !equal(stored.Embedding, want) || !equal(updated.Embedding, want) {
		t.Error("answer change must regenerate the embedding before returning")
	}
	if stored.Category != "oral_hygiene" {
		t.Errorf("category lost: %q", stored.Category)
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Update(context.Background(), "missing", models.KnowledgeUpdate{Answer: models.String("x")})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SoftDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	e, _ := s.Create(ctx, models.KnowledgeInput{Question: "What is a root canal?", Answer: "A treatment.", Source: "dental_corpus"})

	if err := s.SoftDelete(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("deleted entry visible: %v", err)
	}
	if err := s.SoftDelete(ctx, e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
	ok, err := s.Exists(ctx, "What is a root canal?", "dental_corpus")
	if err != nil || !ok {
		t.Errorf("Exists should see inactive entries: %v %v", ok, err)
	}
	active, _ := s.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("active = %d", len(active))
	}
}

func TestStore_BatchCreateMatchesSingle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	inputs := []models.KnowledgeInput{
		{Question: "How often should I brush?", Answer: "Twice a day."},
		{Question: "What is a root canal?", Answer: "A treatment.", Category: "dental_procedures"},
	}
	batch, err := s.BatchCreate(ctx, inputs)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 2 {
		t.Fatalf("created %d", len(batch))
	}
	single, _ := s.Create(ctx, models.KnowledgeInput{Question: "What is a root canal?", Answer: "A treatment."})
	if !equal(batch[1].Embedding, single.Embedding) {
		t.Error("batch and single embeddings differ for the same text")
	}

	if _, err := s.BatchCreate(ctx, []models.KnowledgeInput{{Question: "ok", Answer: "ok"}, {Question: ""}}); err == nil {
		t.Error("expected validation error")
	}
	st, _ := s.Stats(ctx)
	if st.Active != 3 {
		t.Errorf("invalid batch must store nothing; active = %d", st.Active)
	}
}

func TestStore_Reembed(t *testing.T) {
	s, gen := newTestStore(t)
	ctx := context.Background()
	e, _ := s.Create(ctx, models.KnowledgeInput{Question: "q", Answer: "a"})

	// Simulate an entry embedded by another model.
	if err := s.storage.UpdateEmbeddings(ctx, []storage.EmbeddingUpdate{{ID: e.ID, Embedding: []float32{1, 2, 3}, Model: "old-model"}}); err != nil {
		t.Fatal(err)
	}
	if stale, _ := s.CountStale(ctx); stale != 1 {
		t.Errorf("CountStale = %d, want 1", stale)
	}
	n, err := s.Reembed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reembedded %d", n)
	}
	got, _ := s.Get(ctx, e.ID)
	if got.EmbeddingModel != gen.Model() || len(got.Embedding) != gen.Dimensions() {
		t.Errorf("model=%s len=%d", got.EmbeddingModel, len(got.Embedding))
	}
	if stale, _ := s.CountStale(ctx); stale != 0 {
		t.Errorf("CountStale after reembed = %d", stale)
	}
}

func TestStore_Stats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a, _ := s.Create(ctx, models.KnowledgeInput{Question: "q1", Answer: "a", Category: "oral_hygiene"})
	_, _ = s.Create(ctx, models.KnowledgeInput{Question: "q2", Answer: "a", Category: "oral_hygiene"})
	_ = s.SoftDelete(ctx, a.ID)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Active != 1 || st.Inactive != 1 || st.ByCategory["oral_hygiene"] != 1 || st.BySource[models.SourceUserDefined] != 1 {
		t.Errorf("stats = %+v", st)
	}
	cats, _ := s.Categories(ctx)
	if len(cats) != 1 || cats[0] != "oral_hygiene" {
		t.Errorf("categories = %v", cats)
	}
}

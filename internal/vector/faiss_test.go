//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFAISSBackend_AddSearch(t *testing.T) {
	b, err := NewFAISSBackend(3)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := b.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if b.Size() != 3 {
		t.Errorf("Size=%d, want 3", b.Size())
	}

	hits, err := b.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Position != 0 {
		t.Errorf("top hit should be position 0, got %d", hits[0].Position)
	}
}

func TestFAISSBackend_SearchEmpty(t *testing.T) {
	b, err := NewFAISSBackend(3)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	hits, err := b.Search(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestFAISSBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index")

	b, err := NewFAISSBackend(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Add(ctx, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(path); err != nil {
		t.Fatal(err)
	}
	_ = b.Close()

	loaded, err := NewFAISSBackend(2)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Errorf("Size=%d, want 2", loaded.Size())
	}

	wrong, err := NewFAISSBackend(3)
	if err != nil {
		t.Fatal(err)
	}
	defer wrong.Close()
	if err := wrong.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
}

package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "knowledge.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	indices := filepath.Join(dir, "indices")
	if err := os.Mkdir(indices, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(indices, "knowledge.vec"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(indices, "knowledge.idmap"), []byte("c"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(indices, "other.bin"), []byte("zzzz"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"dir", []string{indices}, 7},
		{"glob", []string{filepath.Join(indices, "knowledge.*")}, 3},
		{"file and glob", []string{db, filepath.Join(indices, "knowledge.*")}, 8},
		{"missing skipped", []string{db, filepath.Join(dir, "nonexistent")}, 5},
		{"empty skipped", []string{"", db}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d bytes, want %d", got, tt.want)
			}
		})
	}
}

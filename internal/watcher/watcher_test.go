package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) onChange(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "faq.yaml")
	if err := writeFile(corpus, "entries: []\n"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w, err := NewWatcher([]string{corpus}, rec.onChange, WithDebounce(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 3; i++ {
		if err := writeFile(corpus, "entries: []\n# edit\n"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) > 0 }) {
		t.Fatal("expected a change callback")
	}
	time.Sleep(400 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 {
		t.Errorf("expected one debounced callback, got %v", got)
	}
	if filepath.Base(got[0]) != "faq.yaml" {
		t.Errorf("callback path = %s", got[0])
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "faq.yaml")
	if err := writeFile(corpus, "entries: []\n"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w, err := NewWatcher([]string{corpus}, rec.onChange, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "notes.txt"), "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("unexpected callbacks: %v", got)
	}
}

func TestWatcher_SeesRenameSave(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "faq.yaml")
	if err := writeFile(corpus, "entries: []\n"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w, err := NewWatcher([]string{corpus}, rec.onChange, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	tmp := filepath.Join(dir, ".faq.yaml.swp")
	if err := writeFile(tmp, "entries: []\n# saved\n"); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, corpus); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) > 0 }) {
		t.Error("expected a callback after rename save")
	}
}

func TestWatcher_StopDropsPending(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "faq.yaml")
	if err := writeFile(corpus, "entries: []\n"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w, err := NewWatcher([]string{corpus}, rec.onChange, WithDebounce(300*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(corpus, "entries: []\n# edit\n"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop()

	time.Sleep(500 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("callback after Stop: %v", got)
	}
}

func TestWatcher_StartMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent", "faq.yaml")
	w, err := NewWatcher([]string{missing}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error watching a missing directory")
	}
}

func TestNewWatcher_Files(t *testing.T) {
	w, err := NewWatcher([]string{"a/../faq.yaml"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	files := w.Files()
	if len(files) != 1 || !filepath.IsAbs(files[0]) || filepath.Base(files[0]) != "faq.yaml" {
		t.Errorf("Files() = %v", files)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

type recorder struct {
	mu       sync.Mutex
	imported []string
	archived []string
}

func (r *recorder) ImportFile(_ context.Context, path string, _ []string) (*models.Template, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imported = append(r.imported, path)
	return &models.Template{ID: "tpl-" + filepath.Base(path)}, true, nil
}

func (r *recorder) ArchiveFile(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archived = append(r.archived, path)
	return nil
}

func (r *recorder) snapshot() (imported, archived []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	imported = append([]string(nil), r.imported...)
	archived = append([]string(nil), r.archived...)
	sort.Strings(imported)
	return imported, archived
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, root string, r *recorder) *Watcher {
	t.Helper()
	w := New([]string{root}, []string{".docx"}, true, r, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_debouncesAndFilters(t *testing.T) {
	dir := t.TempDir()
	r := &recorder{}
	startWatcher(t, dir, r)

	path := filepath.Join(dir, "contrato.docx")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notas.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "~$contrato.docx"), []byte("lock"), 0o644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { got, _ := r.snapshot(); return len(got) > 0 })
	time.Sleep(150 * time.Millisecond)
	got, _ := r.snapshot()
	if len(got) != 1 || got[0] != path {
		t.Errorf("imported = %v, want [%s]", got, path)
	}
}

func TestWatcher_removeArchives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "certificado.docx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &recorder{}
	startWatcher(t, dir, r)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { _, archived := r.snapshot(); return len(archived) == 1 })
	if _, archived := r.snapshot(); archived[0] != path {
		t.Errorf("archived = %v", archived)
	}
}

func TestWatcher_newDirectory(t *testing.T) {
	dir := t.TempDir()
	r := &recorder{}
	startWatcher(t, dir, r)

	nested := filepath.Join(dir, "rrhh", "2026")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	deep := filepath.Join(nested, "vacaciones.docx")
	if err := os.WriteFile(deep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		got, _ := r.snapshot()
		for _, p := range got {
			if p == deep {
				return true
			}
		}
		return false
	})
}

func TestWatcher_startCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "plantillas")
	startWatcher(t, root, &recorder{})
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path string
		exts []string
		want bool
	}{
		{"a.docx", []string{".docx"}, true},
		{"a.DOCX", []string{"docx"}, true},
		{"a.doc", []string{".docx"}, false},
		{"a.txt", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.exts); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.exts, got, tt.want)
		}
	}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
)

// newEmulatorStorage connects to the Firestore emulator; tests are skipped without one.
func newEmulatorStorage(t *testing.T) *FirestoreStorage {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := NewFirestoreClient(context.Background(), "valkiria-test")
	if err != nil {
		t.Fatal(err)
	}
	store := NewFirestoreStorage(client, fmt.Sprintf("test%d", time.Now().UnixNano()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFirestoreStorage_SwapDocument(t *testing.T) {
	store := newEmulatorStorage(t)
	ctx := context.Background()
	doc := newRecord("doc-1")
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateDocument(ctx, newRecord("doc-1")); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate create: err = %v", err)
	}

	stale := doc.Clone()
	doc.Slots[0].Status = models.SlotSigned
	ok, err := store.SwapDocument(ctx, doc, 1)
	if err != nil || !ok {
		t.Fatalf("SwapDocument = %v, %v", ok, err)
	}
	if doc.Version != 2 {
		t.Errorf("version = %d, want 2", doc.Version)
	}

	stale.Status = models.DocumentCancelled
	ok, err = store.SwapDocument(ctx, stale, stale.Version)
	if err != nil || ok {
		t.Errorf("stale swap = %v, %v; want lost race", ok, err)
	}

	got, err := store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 || got.Status != models.DocumentPendingSignatures || !got.Slots[0].Signed() {
		t.Errorf("stored = %+v", got)
	}

	if _, err := store.SwapDocument(ctx, newRecord("ghost"), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("swap missing: err = %v", err)
	}
}

func TestFirestoreStorage_SwapDocumentConcurrent(t *testing.T) {
	store := newEmulatorStorage(t)
	ctx := context.Background()
	if err := store.CreateDocument(ctx, newRecord("doc-1")); err != nil {
		t.Fatal(err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := store.GetDocument(ctx, "doc-1")
			if err != nil {
				t.Error(err)
				return
			}
			ok, err := store.SwapDocument(ctx, doc, 1)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("wins = %d, want exactly 1", wins.Load())
	}
	got, err := store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
}

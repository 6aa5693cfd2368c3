package warehouse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sketchplanations/sketchweb/pkg/prismic"
	"github.com/sketchplanations/sketchweb/pkg/storage"
)

type mockSource struct {
	mu     sync.Mutex
	pages  [][]prismic.Document
	failAt int // page number that fails, 0 for none
	calls  int
}

func (m *mockSource) Each(ctx context.Context, docType string, pageSize int, fn func([]prismic.Document) error) error {
	m.mu.Lock()
	m.calls++
	pages := m.pages
	m.mu.Unlock()

	for i, page := range pages {
		if m.failAt == i+1 {
			return errors.New("connection reset")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(page); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSource) setPages(pages ...[]prismic.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func sketch(id, title string) prismic.Document {
	return prismic.Document{
		ID:   id,
		UID:  "uid-" + id,
		Type: "sketchplanation",
		Data: []byte(fmt.Sprintf(`{"title":[{"type":"heading1","text":%q}]}`, title)),
	}
}

func openMirror(t *testing.T) *storage.Mirror {
	t.Helper()
	m, err := storage.OpenMirror(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("OpenMirror: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSyncOnceStoresEveryPage(t *testing.T) {
	mirror := openMirror(t)
	source := &mockSource{}
	source.setPages(
		[]prismic.Document{sketch("1", "Bridge"), sketch("2", "Tunnel")},
		[]prismic.Document{sketch("3", "Bridge of boats")},
	)
	w := NewWarehouse(Config{}, source, mirror)

	var streamed int
	res, err := w.SyncOnce(context.Background(), WithStreaming(func(page []prismic.Document) {
		streamed += len(page)
	}))
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if res.Documents != 3 || res.Pages != 2 || streamed != 3 {
		t.Fatalf("unexpected result %+v (streamed %d)", res, streamed)
	}

	docs, err := mirror.SearchDocuments(context.Background(), "sketchplanation", "bridge", 10)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 bridge documents, got %d", len(docs))
	}

	stats, err := mirror.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.LastSync.IsZero() {
		t.Error("expected the last sync time to be recorded")
	}
	if last, ok := w.LastSync(); !ok || last != res {
		t.Error("expected LastSync to return the latest result")
	}
}

func TestSyncOncePrunesDeletedDocuments(t *testing.T) {
	mirror := openMirror(t)
	source := &mockSource{}
	w := NewWarehouse(Config{}, source, mirror)

	source.setPages([]prismic.Document{sketch("1", "Bridge"), sketch("2", "Tunnel")})
	if _, err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	source.setPages([]prismic.Document{sketch("1", "Bridge")})
	res, err := w.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Pruned != 1 {
		t.Fatalf("expected 1 pruned document, got %d", res.Pruned)
	}
	if _, err := mirror.GetByUID(context.Background(), "sketchplanation", "uid-2"); !errors.Is(err, prismic.ErrNotFound) {
		t.Fatalf("expected uid-2 to be gone, got %v", err)
	}
}

func TestFailedSyncPrunesNothing(t *testing.T) {
	mirror := openMirror(t)
	source := &mockSource{}
	w := NewWarehouse(Config{}, source, mirror)

	source.setPages([]prismic.Document{sketch("1", "Bridge")}, []prismic.Document{sketch("2", "Tunnel")})
	if _, err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	source.failAt = 2
	if _, err := w.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected the sync to fail")
	}

	stats, err := mirror.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 2 {
		t.Fatalf("expected both documents to survive a failed sync, got %d", stats.Documents)
	}
}

func TestStartSyncsAndStops(t *testing.T) {
	mirror := openMirror(t)
	source := &mockSource{}
	source.setPages([]prismic.Document{sketch("1", "Bridge")})
	w := NewWarehouse(Config{SyncInterval: 20 * time.Millisecond, OptimizeInterval: 20 * time.Millisecond}, source, mirror)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("expected a second Start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for source.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if source.callCount() < 2 {
		t.Fatalf("expected the initial and a scheduled sync, got %d", source.callCount())
	}

	w.Stop()
	if w.IsRunning() {
		t.Error("expected the warehouse to be stopped")
	}
	calls := source.callCount()
	time.Sleep(60 * time.Millisecond)
	if source.callCount() != calls {
		t.Error("expected no syncs after Stop")
	}
}

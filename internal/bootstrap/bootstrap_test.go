package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/etude/internal/config"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "etude.db")
	cfg.Storage.Backend = constants.StorageBackendMemory
	cfg.LogLevel = "error"
	return cfg
}

func TestOpenWiresMemoryBackends(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), "etude-test")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = a.Close(ctx) }()

	router, err := a.Router([]string{"omr", "rendering"})
	if err != nil {
		t.Fatalf("Router failed: %v", err)
	}
	stages := router.Stages()
	if len(stages) != 2 || stages[0] != domain.StageOMR || stages[1] != domain.StageRendering {
		t.Errorf("stages = %v", stages)
	}

	r := chi.NewRouter()
	a.HTTPHandler().RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("detailed health = %d", rec.Code)
	}
}

func TestRouterRejectsUnknownQueue(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), "etude-test")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = a.Close(ctx) }()

	if _, err := a.Router([]string{"mixing"}); err == nil {
		t.Error("expected an error for an unknown queue")
	}

	a.Config.Worker.Queues = nil
	if _, err := a.Worker(); err == nil {
		t.Error("expected an error when no queues are configured")
	}
}

type closingStore struct {
	*storage.MemoryStore
	closed bool
}

func (s *closingStore) Close() error {
	s.closed = true
	return nil
}

func TestCloseReleasesObjectStore(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), "etude-test")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	objects := &closingStore{MemoryStore: storage.NewMemoryStore()}
	a.Objects = objects

	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !objects.closed {
		t.Error("object store was not closed")
	}
}

func TestConsumerNameIsStable(t *testing.T) {
	if got := consumerName("worker-a", "etude-worker"); got != "worker-a" {
		t.Errorf("configured name = %q, want worker-a", got)
	}
	first := consumerName("", "etude-worker")
	if first != consumerName("", "etude-worker") {
		t.Error("default consumer name changed between calls")
	}
	if !strings.HasSuffix(first, "-etude-worker") {
		t.Errorf("default consumer name = %q, want it to end in the service", first)
	}
	if first == consumerName("", "etude-server") {
		t.Error("server and worker must not share a consumer name")
	}
}

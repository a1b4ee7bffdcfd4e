package app

import (
	"path/filepath"
	"testing"

	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/queue"
	"github.com/cesargomez89/etude/internal/storage"
	"github.com/cesargomez89/etude/internal/store"
)

var testBuckets = Buckets{PDF: "pdfs", Derived: "derived"}

var samplePDF = []byte("%PDF-1.4 sample score")

const sampleIRv1 = `{"version": "1.0.0", "notes": [
	{"note_id": "n1", "pitch": {"midi_note": 60}, "time": {"onset_seconds": 0, "absolute_beat": 0},
	 "duration": {"duration_beats": 1}, "spatial": {"staff_id": "s1"}}]}`

const sampleIRv2 = `{"version": "2.0.0", "notes": [
	{"note_id": "n1", "pitch": {"midi_note": 60}, "time": {"onset_seconds": 0, "absolute_beat": 0},
	 "duration": {"duration_beats": 1}, "spatial": {"staff_id": "s1"}, "fingering": {"finger": 1}}]}`

type testEnv struct {
	db        *store.DB
	objects   *storage.MemoryStore
	queue     *queue.MemoryQueue
	artifacts *ArtifactService
	jobs      *JobService
	ir        *IRService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	objects := storage.NewMemoryStore()
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { _ = q.Close() })

	log := logger.Discard()
	artifacts := NewArtifactService(db, objects, testBuckets, log)
	return &testEnv{
		db:        db,
		objects:   objects,
		queue:     q,
		artifacts: artifacts,
		jobs:      NewJobService(db, artifacts, q, log),
		ir:        NewIRService(artifacts),
	}
}

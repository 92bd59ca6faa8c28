package testsupport

import (
	"testing"

	"folio/internal/config"
	"folio/internal/docstore"
	"folio/internal/opqueue"
)

// MustOpenDocStore opens a document store for cfg and registers cleanup on
// the test.
func MustOpenDocStore(t testing.TB, cfg *config.Config) *docstore.Store {
	t.Helper()

	store, err := docstore.Open(cfg)
	if err != nil {
		t.Fatalf("open document store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close document store: %v", err)
		}
	})
	return store
}

// MustOpenQueue opens an operation queue for cfg and registers cleanup on
// the test.
func MustOpenQueue(t testing.TB, cfg *config.Config) *opqueue.Store {
	t.Helper()

	store, err := opqueue.Open(cfg)
	if err != nil {
		t.Fatalf("open operation queue: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close operation queue: %v", err)
		}
	})
	return store
}

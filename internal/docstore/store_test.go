package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"folio/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "documents.db")
	store, err := OpenPath(path)
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

func saveTestDocument(t *testing.T, store *Store, name string, data []byte) *Document {
	t.Helper()
	doc := &Document{FileName: name, PageCount: 3, Data: data}
	if err := store.SaveDocument(context.Background(), doc); err != nil {
		t.Fatalf("save document %q: %v", name, err)
	}
	return doc
}

func TestSaveDocumentOwnsDerivedFields(t *testing.T) {
	store := newTestStore(t)
	data := []byte("%PDF-1.7 test content")
	doc := saveTestDocument(t, store, "report.pdf", data)

	if doc.ID == "" {
		t.Fatal("expected generated id")
	}
	if doc.Version != 1 {
		t.Fatalf("version = %d, want 1 on first save", doc.Version)
	}
	if doc.FileSize != int64(len(data)) {
		t.Fatalf("file size = %d, want %d", doc.FileSize, len(data))
	}
	sum := sha256.Sum256(data)
	if doc.Checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum = %q does not match content", doc.Checksum)
	}
}

func TestSaveDocumentBumpsVersionOnReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := saveTestDocument(t, store, "draft.pdf", []byte("v1"))

	doc.Data = []byte("v2 content")
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if doc.Version != 2 {
		t.Fatalf("version = %d, want 2 after replace", doc.Version)
	}

	// A stale caller-supplied version never wins over the stored counter.
	doc.Version = 99
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("replace again: %v", err)
	}
	if doc.Version != 3 {
		t.Fatalf("version = %d, want 3", doc.Version)
	}
}

func TestSaveDocumentNormalizesFileName(t *testing.T) {
	store := newTestStore(t)
	// "é" as 'e' + combining acute accent must normalize to the composed form.
	doc := saveTestDocument(t, store, "re\u0301sume\u0301.pdf", []byte("x"))
	if doc.FileName != "résumé.pdf" {
		t.Fatalf("file name = %q, want NFC-composed form", doc.FileName)
	}

	if err := store.SaveDocument(context.Background(), &Document{FileName: "   ", Data: []byte("x")}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("blank name error = %v, want ErrValidation", err)
	}
}

func TestGetDocumentHydratesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := saveTestDocument(t, store, "annotated.pdf", []byte("content"))

	ann := &Annotation{
		DocumentID: doc.ID,
		Type:       "highlight",
		PageIndex:  1,
		Geometry:   Geometry{X: 10, Y: 20, Width: 100, Height: 14},
		Color:      "#ffee00",
		Opacity:    0.4,
	}
	if err := store.AddAnnotation(ctx, ann); err != nil {
		t.Fatalf("add annotation: %v", err)
	}
	if err := store.AddHistoryEntry(ctx, doc.ID, &HistoryEntry{Type: "annotation", Action: "add", Payload: []byte(`{"id":"a"}`)}); err != nil {
		t.Fatalf("add history: %v", err)
	}
	if err := store.AddHistoryEntry(ctx, doc.ID, &HistoryEntry{Type: "annotation", Action: "update"}); err != nil {
		t.Fatalf("add history: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected document")
	}
	if string(got.Data) != "content" {
		t.Fatalf("data = %q, want %q", got.Data, "content")
	}
	if len(got.Annotations) != 1 {
		t.Fatalf("annotations = %d, want 1", len(got.Annotations))
	}
	if got.Annotations[0].Geometry != (Geometry{X: 10, Y: 20, Width: 100, Height: 14}) {
		t.Fatalf("geometry = %+v", got.Annotations[0].Geometry)
	}
	if len(got.History) != 2 {
		t.Fatalf("history = %d, want 2", len(got.History))
	}
	if got.History[0].Action != "add" || got.History[1].Action != "update" {
		t.Fatalf("history order = [%s, %s], want append order", got.History[0].Action, got.History[1].Action)
	}
	// Annotation mutation bumped the document version.
	if got.Version != doc.Version+1 {
		t.Fatalf("version = %d, want %d after annotation", got.Version, doc.Version+1)
	}
}

func TestGetDocumentUnknownIDReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetDocument(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil for unknown id", got)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := saveTestDocument(t, store, "doomed.pdf", []byte("bytes"))

	if err := store.AddAnnotation(ctx, &Annotation{DocumentID: doc.ID, Type: "note", PageIndex: 0}); err != nil {
		t.Fatalf("add annotation: %v", err)
	}
	if err := store.AddHistoryEntry(ctx, doc.ID, &HistoryEntry{Type: "document", Action: "create"}); err != nil {
		t.Fatalf("add history: %v", err)
	}
	if err := store.AddHistoryEntry(ctx, doc.ID, &HistoryEntry{Type: "document", Action: "edit"}); err != nil {
		t.Fatalf("add history: %v", err)
	}

	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatal("document survived delete")
	}

	var annCount, histCount int
	if err := store.db.QueryRow(`SELECT COUNT(1) FROM annotations`).Scan(&annCount); err != nil {
		t.Fatalf("count annotations: %v", err)
	}
	if err := store.db.QueryRow(`SELECT COUNT(1) FROM history`).Scan(&histCount); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if annCount != 0 || histCount != 0 {
		t.Fatalf("orphans left: %d annotations, %d history entries", annCount, histCount)
	}

	// Deleting again is a no-op.
	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("idempotent delete: %v", err)
	}
}

func TestStorageStatsDerivedFromContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := saveTestDocument(t, store, "a.pdf", make([]byte, 1000))
	saveTestDocument(t, store, "b.pdf", make([]byte, 2000))

	stats, err := store.StorageStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDocuments != 2 || stats.TotalSize != 3000 {
		t.Fatalf("stats = %+v, want 2 documents and 3000 bytes", stats)
	}

	if err := store.DeleteDocument(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stats, err = store.StorageStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDocuments != 1 || stats.TotalSize != 2000 {
		t.Fatalf("stats = %+v, want 1 document and 2000 bytes", stats)
	}
}

func TestListDocumentsOmitsContent(t *testing.T) {
	store := newTestStore(t)
	saveTestDocument(t, store, "one.pdf", []byte("payload"))

	docs, err := store.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("listed %d documents, want 1", len(docs))
	}
	if docs[0].Data != nil {
		t.Fatal("list must not hydrate document content")
	}
	if docs[0].FileSize != int64(len("payload")) {
		t.Fatalf("file size = %d", docs[0].FileSize)
	}
}

func TestAnnotationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := saveTestDocument(t, store, "notes.pdf", []byte("x"))

	if err := store.AddAnnotation(ctx, &Annotation{DocumentID: "missing", Type: "note"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("orphan annotation error = %v, want ErrNotFound", err)
	}

	ann := &Annotation{DocumentID: doc.ID, Type: "underline", PageIndex: 2}
	if err := store.AddAnnotation(ctx, ann); err != nil {
		t.Fatalf("add: %v", err)
	}

	ann.Color = "#ff0000"
	if err := store.UpdateAnnotation(ctx, ann); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateAnnotation(ctx, &Annotation{ID: "missing"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("update unknown error = %v, want ErrNotFound", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Annotations) != 1 || got.Annotations[0].Color != "#ff0000" {
		t.Fatalf("annotations = %+v, want single updated annotation", got.Annotations)
	}

	if err := store.DeleteAnnotation(ctx, ann.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteAnnotation(ctx, ann.ID); err != nil {
		t.Fatalf("idempotent delete: %v", err)
	}
}

func TestHistoryRequiresExistingDocument(t *testing.T) {
	store := newTestStore(t)
	err := store.AddHistoryEntry(context.Background(), "missing", &HistoryEntry{Type: "document", Action: "edit"})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestMarkSynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := saveTestDocument(t, store, "synced.pdf", []byte("x"))

	at := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	if err := store.MarkSynced(ctx, doc.ID, at); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SyncedAt == nil || !got.SyncedAt.Equal(at) {
		t.Fatalf("synced_at = %v, want %v", got.SyncedAt, at)
	}

	if err := store.MarkSynced(ctx, "missing", at); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown id error = %v, want ErrNotFound", err)
	}
}

func TestClearAllResetsStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := saveTestDocument(t, store, "wipe.pdf", []byte("abc"))
	if err := store.AddAnnotation(ctx, &Annotation{DocumentID: doc.ID, Type: "note"}); err != nil {
		t.Fatalf("add annotation: %v", err)
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	stats, err := store.StorageStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalDocuments != 0 || stats.TotalSize != 0 {
		t.Fatalf("stats = %+v, want zeroes", stats)
	}
}

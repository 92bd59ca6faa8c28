package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"folio/internal/services"
	"folio/internal/testsupport"
)

func newTestSyncer(t *testing.T, handler http.Handler) *HTTPSyncer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithRemoteURL(server.URL))
	syncer, err := NewHTTP(cfg)
	if err != nil {
		t.Fatalf("new http syncer: %v", err)
	}
	return syncer
}

func TestNewHTTPRequiresRemoteURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := NewHTTP(cfg); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestUploadRoundTrip(t *testing.T) {
	syncer := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/documents/doc-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"doc-1","version":7,"checksum":"abc"}`))
	}))

	got, err := syncer.Upload(context.Background(), &Document{ID: "doc-1", FileName: "a.pdf", Version: 6})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got.Version != 7 || got.Checksum != "abc" {
		t.Fatalf("remote doc = %+v", got)
	}
}

func TestPushDeltaSendsBaseVersion(t *testing.T) {
	syncer := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/doc-1/delta" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Base-Version"); got != "4" {
			t.Errorf("base version header = %q, want 4", got)
		}
		_, _ = w.Write([]byte(`{"id":"doc-1","version":5}`))
	}))

	got, err := syncer.PushDelta(context.Background(), "doc-1", 4, []byte("frame"))
	if err != nil {
		t.Fatalf("push delta: %v", err)
	}
	if got.Version != 5 {
		t.Fatalf("version = %d, want 5", got.Version)
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		marker error
	}{
		{"missing document", http.StatusNotFound, services.ErrNotFound},
		{"version conflict", http.StatusConflict, services.ErrConflict},
		{"precondition failed", http.StatusPreconditionFailed, services.ErrConflict},
		{"server error", http.StatusInternalServerError, services.ErrTransient},
		{"throttled", http.StatusTooManyRequests, services.ErrTransient},
		{"bad request", http.StatusBadRequest, services.ErrValidation},
		{"request timeout", http.StatusRequestTimeout, services.ErrTimeout},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			syncer := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.name, tc.status)
			}))
			_, err := syncer.Fetch(context.Background(), "doc-1")
			if !errors.Is(err, tc.marker) {
				t.Fatalf("status %d error = %v, want marker %v", tc.status, err, tc.marker)
			}
		})
	}
}

func TestDeleteIdempotentOn404(t *testing.T) {
	syncer := newTestSyncer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	if err := syncer.Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("delete of missing document should succeed, got %v", err)
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	cfg := testsupport.NewConfig(t, testsupport.WithRemoteURL(server.URL))
	server.Close()

	syncer, err := NewHTTP(cfg)
	if err != nil {
		t.Fatalf("new http syncer: %v", err)
	}
	_, err = syncer.Fetch(context.Background(), "doc-1")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
}

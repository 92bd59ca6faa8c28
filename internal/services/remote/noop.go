package remote

import (
	"context"
	"time"

	"folio/internal/services"
)

// NoopSyncer accepts every push without talking to anything. The daemon uses
// it when no remote endpoint is configured, so queued work still drains and
// documents are marked synced locally.
type NoopSyncer struct{}

// NewNoop builds a syncer that accepts everything.
func NewNoop() *NoopSyncer {
	return &NoopSyncer{}
}

func (NoopSyncer) Upload(_ context.Context, doc *Document) (*Document, error) {
	if doc == nil {
		return nil, services.Wrap(services.ErrValidation, "remote", "upload", "document is nil", nil)
	}
	echo := *doc
	echo.ModifiedAt = time.Now().UTC()
	return &echo, nil
}

func (NoopSyncer) PushDelta(_ context.Context, id string, baseVersion int64, _ []byte) (*Document, error) {
	return &Document{ID: id, Version: baseVersion + 1, ModifiedAt: time.Now().UTC()}, nil
}

func (NoopSyncer) Fetch(_ context.Context, id string) (*Document, error) {
	return nil, services.Wrap(services.ErrNotFound, "remote", "fetch", "no remote configured", nil)
}

func (NoopSyncer) Delete(context.Context, string) error {
	return nil
}

package remote

import (
	"context"
	"time"
)

// Document is the remote side's view of a synced document.
type Document struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Version    int64     `json:"version"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modified_at"`
	Data       []byte    `json:"data,omitempty"`
}

// Syncer is the remote collaborator the queue processor pushes document
// mutations to. Implementations classify failures with the services error
// markers so callers can decide between retry, conflict resolution, and
// permanent failure.
type Syncer interface {
	// Upload replaces the remote document with the full local content,
	// unconditionally. Used for creates and for conflict resolution.
	Upload(ctx context.Context, doc *Document) (*Document, error)

	// PushDelta applies a delta frame against the remote copy at
	// baseVersion. A version mismatch surfaces services.ErrConflict.
	PushDelta(ctx context.Context, id string, baseVersion int64, frame []byte) (*Document, error)

	// Fetch retrieves the remote document including content. An unknown id
	// surfaces services.ErrNotFound.
	Fetch(ctx context.Context, id string) (*Document, error)

	// Delete removes the remote document. Deleting an unknown id succeeds.
	Delete(ctx context.Context, id string) error
}

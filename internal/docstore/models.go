package docstore

import (
	"encoding/json"
	"time"
)

// Document is an offline copy of a remote document together with its
// annotations and edit history. Annotations and history entries are owned
// exclusively by their document and are only reachable through it.
type Document struct {
	ID               string
	FileName         string
	FileSize         int64
	PageCount        int
	CreatedAt        time.Time
	ModifiedAt       time.Time
	SyncedAt         *time.Time
	Version          int64
	Checksum         string
	AvailableOffline bool
	Priority         string
	Data             []byte
	Annotations      []Annotation
	History          []HistoryEntry
}

// Geometry places an annotation on a page.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Annotation is a single markup element on a document page.
type Annotation struct {
	ID         string
	DocumentID string
	Type       string
	PageIndex  int
	Geometry   Geometry
	Color      string
	Opacity    float64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// HistoryEntry records one edit for audit and replay. Entries are immutable
// once appended.
type HistoryEntry struct {
	ID         string
	DocumentID string
	Timestamp  time.Time
	Type       string
	Action     string
	Payload    json.RawMessage
}

// Stats are the derived storage aggregates: always computed from the
// documents table, never cached.
type Stats struct {
	TotalDocuments int   `json:"total_documents"`
	TotalSize      int64 `json:"total_size"`
}

package daemon

import (
	"time"

	"folio/internal/opqueue"
)

// queueItemJSON is the wire shape of a queue item. Payload bytes are elided;
// only their size is reported.
type queueItemJSON struct {
	ID            string     `json:"id"`
	Operation     string     `json:"operation"`
	DocumentID    string     `json:"document_id"`
	Priority      string     `json:"priority"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	PayloadSize   int        `json:"payload_size"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

type documentView struct {
	ID               string     `json:"id"`
	FileName         string     `json:"file_name"`
	FileSize         int64      `json:"file_size"`
	PageCount        int        `json:"page_count"`
	Version          int64      `json:"version"`
	Checksum         string     `json:"checksum"`
	AvailableOffline bool       `json:"available_offline"`
	Priority         string     `json:"priority"`
	ModifiedAt       time.Time  `json:"modified_at"`
	SyncedAt         *time.Time `json:"synced_at,omitempty"`
}

func queueItemView(item *opqueue.Item) queueItemJSON {
	return queueItemJSON{
		ID:            item.ID,
		Operation:     string(item.Operation),
		DocumentID:    item.DocumentID,
		Priority:      string(item.Priority),
		Status:        string(item.Status),
		RetryCount:    item.RetryCount,
		MaxRetries:    item.MaxRetries,
		ErrorMessage:  item.ErrorMessage,
		PayloadSize:   len(item.Payload),
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
		NextAttemptAt: item.NextAttemptAt,
	}
}

func queueItemViews(items []*opqueue.Item) []queueItemJSON {
	views := make([]queueItemJSON, 0, len(items))
	for _, item := range items {
		views = append(views, queueItemView(item))
	}
	return views
}

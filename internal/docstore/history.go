package docstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"folio/internal/services"
)

// AddHistoryEntry appends an edit history entry to an existing document.
// History is append-only: entries are never mutated or removed except by the
// cascade when the document itself is deleted.
func (s *Store) AddHistoryEntry(ctx context.Context, documentID string, entry *HistoryEntry) error {
	if entry == nil || strings.TrimSpace(documentID) == "" {
		return services.Wrap(services.ErrValidation, "docstore", "add history", "document id required", nil)
	}
	if strings.TrimSpace(entry.ID) == "" {
		entry.ID = uuid.NewString()
	}
	entry.DocumentID = documentID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "add history", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := documentExists(ctx, tx, documentID); err != nil {
		return err
	}

	var payload any
	if len(entry.Payload) > 0 {
		payload = string(entry.Payload)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO history (id, document_id, timestamp, type, action, payload)
         VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.DocumentID,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.Type,
		entry.Action,
		payload,
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "add history", "insert", err)
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "add history", "commit", err)
	}
	return nil
}

func loadHistory(ctx context.Context, q querier, documentID string) ([]HistoryEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, document_id, timestamp, type, action, payload
         FROM history WHERE document_id = ? ORDER BY rowid`, documentID)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "docstore", "load history", "", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry     HistoryEntry
			timestamp string
			payload   sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &timestamp, &entry.Type, &entry.Action, &payload); err != nil {
			return nil, services.Wrap(services.ErrStorage, "docstore", "load history", "scan", err)
		}
		if t, err := parseTimeString(timestamp); err == nil {
			entry.Timestamp = t
		}
		if payload.Valid {
			entry.Payload = []byte(payload.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

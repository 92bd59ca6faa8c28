package docstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"folio/internal/services"
)

const documentColumns = "id, file_name, file_size, page_count, created_at, modified_at, synced_at, version, checksum, available_offline, priority, data"

// SaveDocument inserts or fully replaces a document inside one transaction.
// The store owns the version counter and the content checksum: the committed
// version is the prior version plus one, and the checksum always matches the
// stored data. The caller's doc is updated in place with the committed
// values.
func (s *Store) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return services.Wrap(services.ErrValidation, "docstore", "save", "document is nil", nil)
	}
	if strings.TrimSpace(doc.ID) == "" {
		doc.ID = uuid.NewString()
	}
	doc.FileName = norm.NFC.String(strings.TrimSpace(doc.FileName))
	if doc.FileName == "" {
		return services.Wrap(services.ErrValidation, "docstore", "save", "file name must not be empty", nil)
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.ModifiedAt = now
	doc.FileSize = int64(len(doc.Data))
	sum := sha256.Sum256(doc.Data)
	doc.Checksum = hex.EncodeToString(sum[:])

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "save", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var priorVersion sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT version FROM documents WHERE id = ?`, doc.ID).Scan(&priorVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrStorage, "docstore", "save", "read prior version", err)
	}
	if priorVersion.Valid {
		doc.Version = priorVersion.Int64 + 1
	} else if doc.Version <= 0 {
		doc.Version = 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             file_name = excluded.file_name,
             file_size = excluded.file_size,
             page_count = excluded.page_count,
             modified_at = excluded.modified_at,
             synced_at = excluded.synced_at,
             version = excluded.version,
             checksum = excluded.checksum,
             available_offline = excluded.available_offline,
             priority = excluded.priority,
             data = excluded.data`,
		doc.ID,
		doc.FileName,
		doc.FileSize,
		doc.PageCount,
		doc.CreatedAt.Format(time.RFC3339Nano),
		doc.ModifiedAt.Format(time.RFC3339Nano),
		nullableTime(doc.SyncedAt),
		doc.Version,
		doc.Checksum,
		boolToInt(doc.AvailableOffline),
		normalizePriority(doc.Priority),
		doc.Data,
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "save", "upsert document", err)
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "save", "commit", err)
	}
	return nil
}

// GetDocument returns the fully hydrated document (content, annotations in
// insertion order, history in append order) or (nil, nil) when absent. The
// three parts load inside one transaction so a caller never observes a
// partially hydrated document.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "docstore", "get", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "docstore", "get", "scan document", err)
	}

	doc.Annotations, err = loadAnnotations(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	doc.History, err = loadHistory(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document; annotations and history cascade with it.
// Deleting an unknown id is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "delete", "", err)
	}
	return nil
}

// ListDocuments returns document metadata (no content, annotations, or
// history) ordered by modification time, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, file_size, page_count, created_at, modified_at, synced_at, version, checksum, available_offline, priority
         FROM documents ORDER BY modified_at DESC`)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "docstore", "list", "", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocumentMeta(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "docstore", "list", "scan", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// StorageStats computes the aggregate document count and byte size directly
// from the documents table. The result cannot drift from stored content
// because nothing caches it.
func (s *Store) StorageStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(file_size), 0) FROM documents`,
	).Scan(&stats.TotalDocuments, &stats.TotalSize)
	if err != nil {
		return Stats{}, services.Wrap(services.ErrStorage, "docstore", "stats", "", err)
	}
	return stats, nil
}

func normalizePriority(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "normal"
	}
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc       Document
		createdAt string
		modified  string
		syncedAt  sql.NullString
		offline   int
	)
	if err := scanner.Scan(
		&doc.ID,
		&doc.FileName,
		&doc.FileSize,
		&doc.PageCount,
		&createdAt,
		&modified,
		&syncedAt,
		&doc.Version,
		&doc.Checksum,
		&offline,
		&doc.Priority,
		&doc.Data,
	); err != nil {
		return nil, err
	}
	hydrateDocumentTimes(&doc, createdAt, modified, syncedAt)
	doc.AvailableOffline = offline != 0
	return &doc, nil
}

func scanDocumentMeta(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc       Document
		createdAt string
		modified  string
		syncedAt  sql.NullString
		offline   int
	)
	if err := scanner.Scan(
		&doc.ID,
		&doc.FileName,
		&doc.FileSize,
		&doc.PageCount,
		&createdAt,
		&modified,
		&syncedAt,
		&doc.Version,
		&doc.Checksum,
		&offline,
		&doc.Priority,
	); err != nil {
		return nil, err
	}
	hydrateDocumentTimes(&doc, createdAt, modified, syncedAt)
	doc.AvailableOffline = offline != 0
	return &doc, nil
}

func hydrateDocumentTimes(doc *Document, createdAt, modified string, syncedAt sql.NullString) {
	if created, err := parseTimeString(createdAt); err == nil {
		doc.CreatedAt = created
	}
	if mod, err := parseTimeString(modified); err == nil {
		doc.ModifiedAt = mod
	}
	if syncedAt.Valid {
		if synced, err := parseTimeString(syncedAt.String); err == nil {
			doc.SyncedAt = &synced
		}
	}
}

// MarkSynced stamps a document's synced_at after a successful remote push.
func (s *Store) MarkSynced(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET synced_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "mark synced", "", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "mark synced", "rows affected", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "docstore", "mark synced", fmt.Sprintf("document %s", id), nil)
	}
	return nil
}

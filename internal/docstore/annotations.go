package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"folio/internal/services"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AddAnnotation attaches an annotation to an existing document. Attaching to
// an unknown document fails with ErrNotFound before anything is written, so
// no annotation can ever point at a missing document.
func (s *Store) AddAnnotation(ctx context.Context, ann *Annotation) error {
	if ann == nil || strings.TrimSpace(ann.DocumentID) == "" {
		return services.Wrap(services.ErrValidation, "docstore", "add annotation", "document id required", nil)
	}
	if strings.TrimSpace(ann.ID) == "" {
		ann.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if ann.CreatedAt.IsZero() {
		ann.CreatedAt = now
	}
	ann.ModifiedAt = now

	geometry, err := json.Marshal(ann.Geometry)
	if err != nil {
		return services.Wrap(services.ErrValidation, "docstore", "add annotation", "marshal geometry", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "add annotation", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := documentExists(ctx, tx, ann.DocumentID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO annotations (id, document_id, type, page_index, geometry, color, opacity, created_at, modified_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ann.ID,
		ann.DocumentID,
		ann.Type,
		ann.PageIndex,
		string(geometry),
		ann.Color,
		ann.Opacity,
		ann.CreatedAt.Format(time.RFC3339Nano),
		ann.ModifiedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "add annotation", "insert", err)
	}
	if err := bumpDocumentVersion(ctx, tx, ann.DocumentID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "add annotation", "commit", err)
	}
	return nil
}

// UpdateAnnotation replaces a single annotation's mutable fields by id.
// Updating an unknown id surfaces ErrNotFound; it never creates a duplicate.
func (s *Store) UpdateAnnotation(ctx context.Context, ann *Annotation) error {
	if ann == nil || strings.TrimSpace(ann.ID) == "" {
		return services.Wrap(services.ErrValidation, "docstore", "update annotation", "annotation id required", nil)
	}
	now := time.Now().UTC()
	ann.ModifiedAt = now

	geometry, err := json.Marshal(ann.Geometry)
	if err != nil {
		return services.Wrap(services.ErrValidation, "docstore", "update annotation", "marshal geometry", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "update annotation", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var documentID string
	err = tx.QueryRowContext(ctx, `SELECT document_id FROM annotations WHERE id = ?`, ann.ID).Scan(&documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "docstore", "update annotation", fmt.Sprintf("annotation %s", ann.ID), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "update annotation", "lookup", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE annotations
         SET type = ?, page_index = ?, geometry = ?, color = ?, opacity = ?, modified_at = ?
         WHERE id = ?`,
		ann.Type,
		ann.PageIndex,
		string(geometry),
		ann.Color,
		ann.Opacity,
		now.Format(time.RFC3339Nano),
		ann.ID,
	)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "update annotation", "update", err)
	}
	if err := bumpDocumentVersion(ctx, tx, documentID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "update annotation", "commit", err)
	}
	return nil
}

// DeleteAnnotation removes an annotation by id. Deleting an unknown id is a
// no-op.
func (s *Store) DeleteAnnotation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "delete annotation", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var documentID string
	err = tx.QueryRowContext(ctx, `SELECT document_id FROM annotations WHERE id = ?`, id).Scan(&documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "delete annotation", "lookup", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "delete annotation", "delete", err)
	}
	if err := bumpDocumentVersion(ctx, tx, documentID, time.Now().UTC()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "delete annotation", "commit", err)
	}
	return nil
}

func documentExists(ctx context.Context, q querier, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "docstore", "document lookup", fmt.Sprintf("document %s", id), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "document lookup", "", err)
	}
	return nil
}

// bumpDocumentVersion advances the owning document's version and modified
// time inside the caller's transaction. Annotation mutations are committed
// document mutations, so they participate in conflict detection.
func bumpDocumentVersion(ctx context.Context, q querier, documentID string, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE documents SET version = version + 1, modified_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano), documentID)
	if err != nil {
		return services.Wrap(services.ErrStorage, "docstore", "bump version", "", err)
	}
	return nil
}

func loadAnnotations(ctx context.Context, q querier, documentID string) ([]Annotation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, document_id, type, page_index, geometry, color, opacity, created_at, modified_at
         FROM annotations WHERE document_id = ? ORDER BY rowid`, documentID)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "docstore", "load annotations", "", err)
	}
	defer rows.Close()

	var annotations []Annotation
	for rows.Next() {
		var (
			ann      Annotation
			geometry string
			created  string
			modified string
		)
		if err := rows.Scan(&ann.ID, &ann.DocumentID, &ann.Type, &ann.PageIndex, &geometry, &ann.Color, &ann.Opacity, &created, &modified); err != nil {
			return nil, services.Wrap(services.ErrStorage, "docstore", "load annotations", "scan", err)
		}
		if err := json.Unmarshal([]byte(geometry), &ann.Geometry); err != nil {
			return nil, services.Wrap(services.ErrStorage, "docstore", "load annotations", "decode geometry", err)
		}
		if t, err := parseTimeString(created); err == nil {
			ann.CreatedAt = t
		}
		if t, err := parseTimeString(modified); err == nil {
			ann.ModifiedAt = t
		}
		annotations = append(annotations, ann)
	}
	return annotations, rows.Err()
}

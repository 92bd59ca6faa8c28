package opqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"folio/internal/services"
)

const itemColumns = "id, operation, document_id, payload, priority, status, retry_count, max_retries, error_message, created_at, updated_at, next_attempt_at"

// priorityRank orders high before normal before low in SQL.
const priorityRank = "CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END"

// Enqueue durably persists a new pending item with the store's default retry
// budget.
func (s *Store) Enqueue(ctx context.Context, op Operation, documentID string, payload []byte, priority Priority) (*Item, error) {
	return s.EnqueueWithBudget(ctx, op, documentID, payload, priority, s.defaultMaxRetries)
}

// EnqueueWithBudget durably persists a new pending item with an explicit
// per-item retry budget, so different operation kinds can carry different
// budgets.
func (s *Store) EnqueueWithBudget(ctx context.Context, op Operation, documentID string, payload []byte, priority Priority, maxRetries int) (*Item, error) {
	if _, ok := ParseOperation(string(op)); !ok {
		return nil, services.Wrap(services.ErrValidation, "opqueue", "enqueue", fmt.Sprintf("unknown operation %q", op), nil)
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, services.Wrap(services.ErrValidation, "opqueue", "enqueue", "document id required", nil)
	}
	normalized, ok := ParsePriority(string(priority))
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "opqueue", "enqueue", fmt.Sprintf("unknown priority %q", priority), nil)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	id := uuid.NewString()
	now := s.now()
	timestamp := now.Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (id, operation, document_id, payload, priority, status, retry_count, max_retries, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		id, string(op), documentID, payload, string(normalized), StatusPending, maxRetries, timestamp, timestamp,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "enqueue", "insert", err)
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.hub.publish(Event{ItemID: id, DocumentID: documentID, Operation: op, To: StatusPending, At: now})
	return item, nil
}

// GetByID fetches a queue item by identifier, returning (nil, nil) when
// absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "get item", "", err)
	}
	return item, nil
}

// PendingItems returns pending items ordered first by priority (high,
// normal, low) and within one priority by enqueue order. This ordering is a
// contract the processor and the tests rely on.
func (s *Store) PendingItems(ctx context.Context) ([]*Item, error) {
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY `+priorityRank+`, rowid`,
		StatusPending)
}

// Items returns every queue item ordered by enqueue order.
func (s *Store) Items(ctx context.Context) ([]*Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM queue_items ORDER BY rowid`)
}

// ItemsByStatus returns items matching a status ordered by enqueue order.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE status = ? ORDER BY rowid`, status)
}

// FailedItems returns failed items, oldest first. Failed items stay
// queryable so an operator can inspect and re-arm them.
func (s *Store) FailedItems(ctx context.Context) ([]*Item, error) {
	return s.ItemsByStatus(ctx, StatusFailed)
}

// ClaimNext atomically selects the next eligible pending item and flips it
// to processing. Eligibility enforces the queue's serialization contract:
//   - the item's backoff deadline has passed,
//   - no sibling item for the same document is processing,
//   - no earlier pending sibling exists for the same document (per-document
//     FIFO survives retries and priority differences).
//
// Returns (nil, nil) when nothing is eligible.
func (s *Store) ClaimNext(ctx context.Context) (*Item, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "claim", "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT q.id FROM queue_items q
         WHERE q.status = ?
           AND (q.next_attempt_at IS NULL OR q.next_attempt_at <= ?)
           AND NOT EXISTS (
               SELECT 1 FROM queue_items p
               WHERE p.document_id = q.document_id AND p.status = ?)
           AND NOT EXISTS (
               SELECT 1 FROM queue_items e
               WHERE e.document_id = q.document_id AND e.status = ? AND e.rowid < q.rowid)
         ORDER BY `+strings.ReplaceAll(priorityRank, "priority", "q.priority")+`, q.rowid
         LIMIT 1`,
		StatusPending,
		now.Format(time.RFC3339Nano),
		StatusProcessing,
		StatusPending,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "claim", "select", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ? WHERE id = ?`,
		StatusProcessing, now.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "claim", "mark processing", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "claim", "commit", err)
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item != nil {
		s.hub.publish(Event{ItemID: item.ID, DocumentID: item.DocumentID, Operation: item.Operation, From: StatusPending, To: StatusProcessing, RetryCount: item.RetryCount, At: now})
	}
	return item, nil
}

// UpdateStatus transitions an item to the given status. Unknown ids surface
// ErrNotFound.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	if _, ok := ParseStatus(string(status)); !ok {
		return services.Wrap(services.ErrValidation, "opqueue", "update status", fmt.Sprintf("unknown status %q", status), nil)
	}
	return s.transition(ctx, id, status, "")
}

// MarkFailed transitions an item to failed with a diagnostic message for
// operator inspection.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, StatusFailed, message)
}

func (s *Store) transition(ctx context.Context, id string, status Status, errorMessage string) error {
	before, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if before == nil {
		return services.Wrap(services.ErrNotFound, "opqueue", "update status", fmt.Sprintf("item %s", id), nil)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, error_message = ?, updated_at = ?, next_attempt_at = NULL WHERE id = ?`,
		status, nullableString(errorMessage), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return services.Wrap(services.ErrStorage, "opqueue", "update status", "", err)
	}
	s.hub.publish(Event{ItemID: id, DocumentID: before.DocumentID, Operation: before.Operation, From: before.Status, To: status, RetryCount: before.RetryCount, At: now})
	return nil
}

// IncrementRetry returns a processing item to pending with its retry count
// bumped and a backoff deadline stamped. It reports false once the retry
// budget is exhausted; the item is left untouched and the caller marks it
// failed.
func (s *Store) IncrementRetry(ctx context.Context, id string) (bool, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, services.Wrap(services.ErrNotFound, "opqueue", "increment retry", fmt.Sprintf("item %s", id), nil)
	}

	newCount := item.RetryCount + 1
	if newCount > item.MaxRetries {
		return false, nil
	}

	now := s.now()
	nextAttempt := now.Add(s.backoffDelay(newCount))
	_, err = s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, retry_count = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?`,
		StatusPending, newCount, nextAttempt.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return false, services.Wrap(services.ErrStorage, "opqueue", "increment retry", "", err)
	}
	s.hub.publish(Event{ItemID: id, DocumentID: item.DocumentID, Operation: item.Operation, From: item.Status, To: StatusPending, RetryCount: newCount, At: now})
	return true, nil
}

// CancelItem cancels a pending item. In-flight and terminal items are left
// alone; the return reports whether anything changed.
func (s *Store) CancelItem(ctx context.Context, id string) (bool, error) {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if item == nil || item.Status != StatusPending {
		return false, nil
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ?, next_attempt_at = NULL WHERE id = ? AND status = ?`,
		StatusCancelled, now.Format(time.RFC3339Nano), id, StatusPending)
	if err != nil {
		return false, services.Wrap(services.ErrStorage, "opqueue", "cancel", "", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, services.Wrap(services.ErrStorage, "opqueue", "cancel", "rows affected", err)
	}
	if affected == 0 {
		return false, nil
	}
	s.hub.publish(Event{ItemID: id, DocumentID: item.DocumentID, Operation: item.Operation, From: StatusPending, To: StatusCancelled, At: now})
	return true, nil
}

// RetryFailed re-arms failed items (all of them, or a selected set) back to
// pending with a fresh retry budget.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := s.now().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(ctx,
			`UPDATE queue_items
             SET status = ?, retry_count = 0, error_message = NULL, next_attempt_at = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending, now, StatusFailed)
		if err != nil {
			return 0, services.Wrap(services.ErrStorage, "opqueue", "retry failed", "", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	query := `UPDATE queue_items
        SET status = ?, retry_count = 0, error_message = NULL, next_attempt_at = NULL, updated_at = ?
        WHERE id IN (` + makePlaceholders(len(ids)) + `) AND status = ?`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "opqueue", "retry failed", "selected", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns processing leftovers to pending. The daemon
// runs this on startup so a crash mid-operation never strands an item.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = ?, updated_at = ?, next_attempt_at = NULL WHERE status = ?`,
		StatusPending, s.now().Format(time.RFC3339Nano), StatusProcessing)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "opqueue", "reset stuck", "", err)
	}
	return res.RowsAffected()
}

// Stats returns counts of items grouped by status plus a total.
func (s *Store) Stats(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return Summary{}, services.Wrap(services.ErrStorage, "opqueue", "stats", "", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, services.Wrap(services.ErrStorage, "opqueue", "stats", "scan", err)
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

// ClearCompleted removes only completed items from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "opqueue", "clear completed", "", err)
	}
	return res.RowsAffected()
}

// ClearAll removes all items from the queue.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_items`)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "opqueue", "clear", "", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "opqueue", "query items", "", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "opqueue", "query items", "scan", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item        Item
		payload     []byte
		errorMsg    sql.NullString
		createdRaw  string
		updatedRaw  string
		nextAttempt sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		(*string)(&item.Operation),
		&item.DocumentID,
		&payload,
		(*string)(&item.Priority),
		(*string)(&item.Status),
		&item.RetryCount,
		&item.MaxRetries,
		&errorMsg,
		&createdRaw,
		&updatedRaw,
		&nextAttempt,
	); err != nil {
		return nil, err
	}
	item.Payload = payload
	item.ErrorMessage = errorMsg.String
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if nextAttempt.Valid {
		if at, err := parseTimeString(nextAttempt.String); err == nil {
			item.NextAttemptAt = &at
		}
	}
	return &item, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

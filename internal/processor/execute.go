package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"folio/internal/config"
	"folio/internal/docstore"
	"folio/internal/logging"
	"folio/internal/opqueue"
	"folio/internal/services"
	"folio/internal/services/remote"
)

// UpdatePayload is the envelope carried by update items: a delta wire frame
// plus the version the delta was computed against.
type UpdatePayload struct {
	BaseVersion int64  `json:"base_version"`
	Frame       []byte `json:"frame"`
}

// EncodeUpdatePayload serializes an update envelope for enqueueing.
func EncodeUpdatePayload(baseVersion int64, frame []byte) ([]byte, error) {
	return json.Marshal(UpdatePayload{BaseVersion: baseVersion, Frame: frame})
}

func (m *Manager) processItem(ctx context.Context, item *opqueue.Item) error {
	logger := m.logger.With(
		logging.String(logging.FieldItemID, item.ID),
		logging.String(logging.FieldDocumentID, item.DocumentID),
		logging.String(logging.FieldOperation, string(item.Operation)),
		logging.Int(logging.FieldRetryCount, item.RetryCount),
	)
	logger.Info("processing queue item")
	m.setLastItem(item)

	execCtx := ctx
	if timeout := time.Duration(m.cfg.Workflow.StaleProcessingTimeout) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := m.executeItem(execCtx, item)
	if err == nil {
		if statusErr := m.queue.UpdateStatus(ctx, item.ID, opqueue.StatusCompleted); statusErr != nil {
			m.setLastError(statusErr)
			return statusErr
		}
		logger.Info("queue item completed")
		return nil
	}

	m.setLastError(err)
	if ctx.Err() != nil {
		// Shutdown mid-operation: leave the item processing, startup
		// recovery returns it to pending.
		return context.Canceled
	}

	if !services.Retryable(err) {
		logger.Error("queue item failed permanently", logging.Error(err))
		return m.queue.MarkFailed(ctx, item.ID, err.Error())
	}

	retried, retryErr := m.queue.IncrementRetry(ctx, item.ID)
	if retryErr != nil {
		return retryErr
	}
	if !retried {
		exhausted := services.Wrap(services.ErrMaxRetries, "processor", "execute",
			fmt.Sprintf("gave up after %d attempts", item.MaxRetries+1), err)
		logger.Error("queue item exhausted retry budget", logging.Error(exhausted))
		return m.queue.MarkFailed(ctx, item.ID, exhausted.Error())
	}
	logger.Warn("queue item failed, scheduled for retry",
		logging.Error(err),
		logging.Int(logging.FieldRetryCount, item.RetryCount+1),
	)
	return nil
}

func (m *Manager) executeItem(ctx context.Context, item *opqueue.Item) error {
	switch item.Operation {
	case opqueue.OpCreate:
		return m.executeCreate(ctx, item)
	case opqueue.OpUpdate:
		return m.executeUpdate(ctx, item)
	case opqueue.OpDelete:
		return m.syncer.Delete(ctx, item.DocumentID)
	case opqueue.OpSync:
		return m.executeSync(ctx, item)
	default:
		return services.Wrap(services.ErrValidation, "processor", "execute",
			fmt.Sprintf("unknown operation %q", item.Operation), nil)
	}
}

func (m *Manager) executeCreate(ctx context.Context, item *opqueue.Item) error {
	doc, err := m.loadDocument(ctx, item.DocumentID)
	if err != nil {
		return err
	}
	if _, err := m.syncer.Upload(ctx, toRemote(doc)); err != nil {
		return err
	}
	return m.documents.MarkSynced(ctx, doc.ID, time.Now().UTC())
}

func (m *Manager) executeUpdate(ctx context.Context, item *opqueue.Item) error {
	var payload UpdatePayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return services.Wrap(services.ErrValidation, "processor", "update", "decode payload", err)
	}
	doc, err := m.loadDocument(ctx, item.DocumentID)
	if err != nil {
		return err
	}

	_, err = m.syncer.PushDelta(ctx, doc.ID, payload.BaseVersion, payload.Frame)
	if services.IsConflict(err) {
		return m.resolveConflict(ctx, doc)
	}
	if err != nil {
		return err
	}
	return m.documents.MarkSynced(ctx, doc.ID, time.Now().UTC())
}

// executeSync reconciles one document with the remote regardless of deltas:
// missing remotes get the full local copy, diverged remotes go through
// conflict resolution.
func (m *Manager) executeSync(ctx context.Context, item *opqueue.Item) error {
	doc, err := m.loadDocument(ctx, item.DocumentID)
	if err != nil {
		return err
	}

	theirs, err := m.syncer.Fetch(ctx, doc.ID)
	if services.IsNotFound(err) {
		if _, uploadErr := m.syncer.Upload(ctx, toRemote(doc)); uploadErr != nil {
			return uploadErr
		}
		return m.documents.MarkSynced(ctx, doc.ID, time.Now().UTC())
	}
	if err != nil {
		return err
	}

	if theirs.Checksum == doc.Checksum {
		return m.documents.MarkSynced(ctx, doc.ID, time.Now().UTC())
	}
	return m.resolveConflictWith(ctx, doc, theirs)
}

// resolveConflict applies the configured policy after the remote rejected a
// delta for version mismatch.
func (m *Manager) resolveConflict(ctx context.Context, doc *docstore.Document) error {
	if m.cfg.Sync.ConflictPolicy == config.ConflictKeepLocal {
		return m.forcePushLocal(ctx, doc)
	}
	theirs, err := m.syncer.Fetch(ctx, doc.ID)
	if services.IsNotFound(err) {
		return m.forcePushLocal(ctx, doc)
	}
	if err != nil {
		return err
	}
	return m.resolveConflictWith(ctx, doc, theirs)
}

func (m *Manager) resolveConflictWith(ctx context.Context, doc *docstore.Document, theirs *remote.Document) error {
	if m.cfg.Sync.ConflictPolicy == config.ConflictKeepLocal || !theirs.ModifiedAt.After(doc.ModifiedAt) {
		return m.forcePushLocal(ctx, doc)
	}
	return m.adoptRemote(ctx, doc, theirs)
}

func (m *Manager) forcePushLocal(ctx context.Context, doc *docstore.Document) error {
	if _, err := m.syncer.Upload(ctx, toRemote(doc)); err != nil {
		return err
	}
	m.logger.Info("conflict resolved in favor of local copy",
		logging.String(logging.FieldDocumentID, doc.ID))
	return m.documents.MarkSynced(ctx, doc.ID, time.Now().UTC())
}

// adoptRemote replaces the local copy with the remote one and records the
// overwrite in the document's history.
func (m *Manager) adoptRemote(ctx context.Context, doc *docstore.Document, theirs *remote.Document) error {
	doc.Data = theirs.Data
	if theirs.FileName != "" {
		doc.FileName = theirs.FileName
	}
	if err := m.documents.SaveDocument(ctx, doc); err != nil {
		return err
	}
	detail, _ := json.Marshal(map[string]any{
		"remote_version":  theirs.Version,
		"remote_checksum": theirs.Checksum,
	})
	if err := m.documents.AddHistoryEntry(ctx, doc.ID, &docstore.HistoryEntry{
		Type:    "sync",
		Action:  "conflict-resolved-remote",
		Payload: detail,
	}); err != nil {
		return err
	}
	m.logger.Info("conflict resolved in favor of remote copy",
		logging.String(logging.FieldDocumentID, doc.ID))
	return m.documents.MarkSynced(ctx, doc.ID, time.Now().UTC())
}

func (m *Manager) loadDocument(ctx context.Context, id string) (*docstore.Document, error) {
	doc, err := m.documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, services.Wrap(services.ErrNotFound, "processor", "load document",
			fmt.Sprintf("document %s no longer exists locally", id), nil)
	}
	return doc, nil
}

func toRemote(doc *docstore.Document) *remote.Document {
	return &remote.Document{
		ID:         doc.ID,
		FileName:   doc.FileName,
		Version:    doc.Version,
		Checksum:   doc.Checksum,
		ModifiedAt: doc.ModifiedAt,
		Data:       doc.Data,
	}
}

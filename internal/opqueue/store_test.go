package opqueue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"folio/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := OpenPath(path, 3, 2*time.Second, 300*time.Second)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}

func TestEnqueuePersistsItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, OpUpdate, "doc-1", []byte("payload"), PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if item.ID == "" {
		t.Fatal("expected generated item id")
	}
	if item.Status != StatusPending {
		t.Fatalf("status = %s, want pending", item.Status)
	}
	if item.MaxRetries != 3 {
		t.Fatalf("max retries = %d, want store default 3", item.MaxRetries)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected item to round-trip")
	}
	if string(fetched.Payload) != "payload" {
		t.Fatalf("payload = %q, want %q", fetched.Payload, "payload")
	}
	if fetched.Operation != OpUpdate || fetched.DocumentID != "doc-1" {
		t.Fatalf("unexpected item %+v", fetched)
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, Operation("upload"), "doc-1", nil, PriorityNormal); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown operation error = %v, want ErrValidation", err)
	}
	if _, err := store.Enqueue(ctx, OpCreate, "  ", nil, PriorityNormal); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("blank document id error = %v, want ErrValidation", err)
	}
	if _, err := store.Enqueue(ctx, OpCreate, "doc-1", nil, Priority("urgent")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown priority error = %v, want ErrValidation", err)
	}
}

func TestPendingItemsPriorityOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Enqueued low, high, normal; drained high, normal, low.
	if _, err := store.Enqueue(ctx, OpUpdate, "doc-low", nil, PriorityLow); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if _, err := store.Enqueue(ctx, OpUpdate, "doc-high", nil, PriorityHigh); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}
	if _, err := store.Enqueue(ctx, OpUpdate, "doc-normal", nil, PriorityNormal); err != nil {
		t.Fatalf("enqueue normal: %v", err)
	}

	pending, err := store.PendingItems(ctx)
	if err != nil {
		t.Fatalf("pending items: %v", err)
	}
	got := make([]Priority, 0, len(pending))
	for _, item := range pending {
		got = append(got, item.Priority)
	}
	want := []Priority{PriorityHigh, PriorityNormal, PriorityLow}
	if len(got) != len(want) {
		t.Fatalf("pending count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending order = %v, want %v", got, want)
		}
	}
}

func TestClaimNextDrainOrderAndTransition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, OpUpdate, "doc-a", nil, PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	high, err := store.Enqueue(ctx, OpUpdate, "doc-b", nil, PriorityHigh)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != high.ID {
		t.Fatalf("claimed %+v, want high-priority item %s", claimed, high.ID)
	}
	if claimed.Status != StatusProcessing {
		t.Fatalf("claimed status = %s, want processing", claimed.Status)
	}
}

func TestClaimNextSerializesPerDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, OpUpdate, "doc-1", nil, PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, OpUpdate, "doc-1", nil, PriorityHigh); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	other, err := store.Enqueue(ctx, OpUpdate, "doc-2", nil, PriorityLow)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// The high-priority sibling must not jump ahead of the earlier item for
	// the same document.
	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claimed %+v, want first doc-1 item %s", claimed, first.ID)
	}

	// doc-1 has an item in flight, so only doc-2 is claimable.
	next, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if next == nil || next.ID != other.ID {
		t.Fatalf("claimed %+v, want doc-2 item %s", next, other.ID)
	}

	// Everything else is blocked behind in-flight work.
	blocked, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if blocked != nil {
		t.Fatalf("claimed %+v, want nothing eligible", blocked)
	}

	// Completing the first item releases the doc-1 sibling.
	if err := store.UpdateStatus(ctx, claimed.ID, StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	released, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if released == nil || released.DocumentID != "doc-1" {
		t.Fatalf("claimed %+v, want remaining doc-1 item", released)
	}
}

func TestIncrementRetryBacksOffThenExhausts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	item, err := store.Enqueue(ctx, OpSync, "doc-1", nil, PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for attempt := 1; attempt <= item.MaxRetries; attempt++ {
		claimed, err := store.ClaimNext(ctx)
		if err != nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		if claimed == nil {
			t.Fatalf("attempt %d: nothing claimable", attempt)
		}
		retried, err := store.IncrementRetry(ctx, claimed.ID)
		if err != nil {
			t.Fatalf("increment retry: %v", err)
		}
		if !retried {
			t.Fatalf("attempt %d: budget exhausted early", attempt)
		}

		// Not claimable until the backoff deadline passes.
		if early, err := store.ClaimNext(ctx); err != nil || early != nil {
			t.Fatalf("claim before backoff = (%+v, %v), want nothing", early, err)
		}
		current = current.Add(store.backoffDelay(attempt) + time.Second)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected final attempt to be claimable")
	}
	retried, err := store.IncrementRetry(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("increment retry: %v", err)
	}
	if retried {
		t.Fatal("expected retry budget exhausted")
	}
	if err := store.MarkFailed(ctx, claimed.ID, "remote unreachable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	summary, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if summary.Pending != 0 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 0 pending and 1 failed", summary)
	}

	failed, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("get failed item: %v", err)
	}
	if failed.RetryCount != failed.MaxRetries {
		t.Fatalf("retry count = %d, want %d", failed.RetryCount, failed.MaxRetries)
	}
	if failed.ErrorMessage != "remote unreachable" {
		t.Fatalf("error message = %q", failed.ErrorMessage)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	store := newTestStore(t)

	if got := store.backoffDelay(1); got != 2*time.Second {
		t.Fatalf("attempt 1 delay = %s, want 2s", got)
	}
	if got := store.backoffDelay(3); got != 8*time.Second {
		t.Fatalf("attempt 3 delay = %s, want 8s", got)
	}
	if got := store.backoffDelay(30); got != 300*time.Second {
		t.Fatalf("attempt 30 delay = %s, want cap 300s", got)
	}
}

func TestCancelOnlyPendingItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, OpDelete, "doc-1", nil, PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	cancelled, err := store.CancelItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("expected pending item to cancel")
	}

	again, err := store.CancelItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("cancel terminal: %v", err)
	}
	if again {
		t.Fatal("cancelled item must not cancel twice")
	}

	inflight, err := store.Enqueue(ctx, OpUpdate, "doc-2", nil, PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	cancelled, err = store.CancelItem(ctx, inflight.ID)
	if err != nil {
		t.Fatalf("cancel processing: %v", err)
	}
	if cancelled {
		t.Fatal("processing item must not be cancellable")
	}
}

func TestRetryFailedReArmsItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, OpSync, "doc-1", nil, PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, item.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("re-armed %d items, want 1", count)
	}

	rearmed, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rearmed.Status != StatusPending || rearmed.RetryCount != 0 || rearmed.ErrorMessage != "" {
		t.Fatalf("re-armed item = %+v, want pristine pending", rearmed)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, OpUpdate, "doc-1", nil, PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("reset stuck: %v", err)
	}
	if count != 1 {
		t.Fatalf("reset %d items, want 1", count)
	}

	summary, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if summary.Pending != 1 || summary.Processing != 0 {
		t.Fatalf("summary = %+v, want item back to pending", summary)
	}
}

func TestClearCompletedLeavesOtherStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done, err := store.Enqueue(ctx, OpCreate, "doc-1", nil, PriorityNormal)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, OpCreate, "doc-2", nil, PriorityNormal); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.UpdateStatus(ctx, done.ID, StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("clear completed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	summary, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if summary.Total != 1 || summary.Pending != 1 {
		t.Fatalf("summary = %+v, want the pending item left", summary)
	}
}

func TestUpdateStatusUnknownItem(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateStatus(context.Background(), "missing", StatusCompleted)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

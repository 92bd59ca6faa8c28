package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"folio/internal/config"
	"folio/internal/docstore"
	"folio/internal/logging"
	"folio/internal/opqueue"
	"folio/internal/services/remote"
)

// Manager drains the operation queue in the background, executing one item
// at a time against the remote syncer.
type Manager struct {
	cfg       *config.Config
	queue     *opqueue.Store
	documents *docstore.Store
	syncer    remote.Syncer
	logger    *slog.Logger

	pollInterval  time.Duration
	errorInterval time.Duration

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *opqueue.Item
}

// NewManager constructs a processor over the given stores and syncer.
func NewManager(cfg *config.Config, queue *opqueue.Store, documents *docstore.Store, syncer remote.Syncer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	errorInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	if errorInterval <= 0 {
		errorInterval = pollInterval
	}
	return &Manager{
		cfg:           cfg,
		queue:         queue,
		documents:     documents,
		syncer:        syncer,
		logger:        logging.NewComponentLogger(logger, "processor"),
		pollInterval:  pollInterval,
		errorInterval: errorInterval,
	}
}

// Start begins background processing. Processing leftovers from a previous
// run are returned to pending first so a crash never strands an item.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("processor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if reset, err := m.queue.ResetStuckProcessing(runCtx); err != nil {
		m.logger.Warn("reset stuck processing failed; stranded items may remain",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	} else if reset > 0 {
		m.logger.Info("recovered in-flight items from previous run", logging.Int64("count", reset))
	}

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for the current item to
// finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the drain loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent processing failure, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// LastItem returns a copy of the most recently executed item.
func (m *Manager) LastItem() *opqueue.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastItem == nil {
		return nil
	}
	item := *m.lastItem
	return &item
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := m.queue.ClaimNext(ctx)
		if err != nil {
			m.setLastError(err)
			m.logger.Error("failed to claim next queue item",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			if !m.sleep(ctx, m.errorInterval) {
				return
			}
			continue
		}
		if item == nil {
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		if err := m.processItem(ctx, item); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastItem(item *opqueue.Item) {
	m.mu.Lock()
	m.lastItem = item
	m.mu.Unlock()
}

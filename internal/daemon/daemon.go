package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"folio/internal/config"
	"folio/internal/docstore"
	"folio/internal/logging"
	"folio/internal/opqueue"
	"folio/internal/preflight"
	"folio/internal/processor"
)

// Daemon coordinates the background sync services and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	queue     *opqueue.Store
	documents *docstore.Store
	processor *processor.Manager

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running      atomic.Bool
	cancel       context.CancelFunc
	unsubscribe  func()
	eventsDone   chan struct{}
	eventsClosed bool
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool            `json:"running"`
	PID              int             `json:"pid"`
	QueueDBPath      string          `json:"queue_db_path"`
	DocumentsDBPath  string          `json:"documents_db_path"`
	LockFilePath     string          `json:"lock_file_path"`
	ProcessorRunning bool            `json:"processor_running"`
	LastError        string          `json:"last_error,omitempty"`
	Queue            opqueue.Summary `json:"queue"`
	Storage          docstore.Stats  `json:"storage"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, queue *opqueue.Store, documents *docstore.Store, proc *processor.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || queue == nil || documents == nil || proc == nil {
		return nil, errors.New("daemon requires config, stores, and a processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		queue:     queue,
		documents: documents,
		processor: proc,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock, runs preflight, and launches the
// processor and the status API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another folio daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg)
	for _, result := range results {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail))
			continue
		}
		level := d.logger.Error
		if result.Optional {
			level = d.logger.Warn
		}
		level("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
	if blockers := preflight.Blockers(results); len(blockers) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(blockers))
		for _, b := range blockers {
			names = append(names, b.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.processor.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start processor: %w", err)
	}
	d.watchQueueEvents()

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.processor.Stop()
			d.stopEventWatcher()
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("folio daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.processor.Stop()
	d.stopEventWatcher()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("folio daemon stopped")
}

// Close stops the daemon and closes both stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if err := d.queue.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.documents.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Status gathers runtime information for the API and the CLI.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		QueueDBPath:      d.queue.Path(),
		DocumentsDBPath:  d.documents.Path(),
		LockFilePath:     d.lockPath,
		ProcessorRunning: d.processor.Running(),
	}
	if err := d.processor.LastError(); err != nil {
		status.LastError = err.Error()
	}
	if summary, err := d.queue.Stats(ctx); err == nil {
		status.Queue = summary
	}
	if stats, err := d.documents.StorageStats(ctx); err == nil {
		status.Storage = stats
	}
	return status
}

// watchQueueEvents mirrors queue transitions into the daemon log so an
// operator can follow sync progress from a single stream.
func (d *Daemon) watchQueueEvents() {
	events, unsubscribe := d.queue.Events().Subscribe(64)
	d.unsubscribe = unsubscribe
	d.eventsDone = make(chan struct{})
	d.eventsClosed = false

	go func() {
		defer close(d.eventsDone)
		for event := range events {
			d.logger.Info("queue item transition",
				logging.String(logging.FieldItemID, event.ItemID),
				logging.String(logging.FieldDocumentID, event.DocumentID),
				logging.String(logging.FieldOperation, string(event.Operation)),
				logging.String(logging.FieldQueueStatus, string(event.To)),
				logging.Int(logging.FieldRetryCount, event.RetryCount),
			)
		}
	}()
}

func (d *Daemon) stopEventWatcher() {
	if d.eventsClosed {
		return
	}
	d.eventsClosed = true
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	if d.eventsDone != nil {
		<-d.eventsDone
		d.eventsDone = nil
	}
}

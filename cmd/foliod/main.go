package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"folio/internal/config"
	"folio/internal/daemon"
	"folio/internal/docstore"
	"folio/internal/logging"
	"folio/internal/opqueue"
	"folio/internal/processor"
	"folio/internal/services/remote"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	queue, err := opqueue.Open(cfg)
	if err != nil {
		logger.Error("open operation queue", logging.Error(err))
		return
	}
	documents, err := docstore.Open(cfg)
	if err != nil {
		_ = queue.Close()
		logger.Error("open document store", logging.Error(err))
		return
	}

	syncer := buildSyncer(cfg, logger)
	proc := processor.NewManager(cfg, queue, documents, syncer, logger)

	d, err := daemon.New(cfg, queue, documents, proc, logger)
	if err != nil {
		_ = queue.Close()
		_ = documents.Close()
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("foliod shutting down")
}

func buildSyncer(cfg *config.Config, logger *slog.Logger) remote.Syncer {
	if cfg.Sync.RemoteURL == "" {
		logger.Warn("no remote_url configured; queued work completes locally only")
		return remote.NewNoop()
	}
	syncer, err := remote.NewHTTP(cfg)
	if err != nil {
		logger.Warn("remote endpoint misconfigured; queued work completes locally only", logging.Error(err))
		return remote.NewNoop()
	}
	return syncer
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/daemon"
	"folio/internal/docstore"
	"folio/internal/opqueue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemon.Status
			if err := ctx.daemonGet("/api/status", &status); err != nil {
				cmd.Println("Daemon: not running")
				return printLocalStatus(ctx, cmd)
			}

			cmd.Println("Daemon: running")
			rows := [][]string{
				{"PID", fmt.Sprintf("%d", status.PID)},
				{"Processor", onOff(status.ProcessorRunning)},
				{"Documents", fmt.Sprintf("%d (%s)", status.Storage.TotalDocuments, formatBytes(status.Storage.TotalSize))},
				{"Queue pending", fmt.Sprintf("%d", status.Queue.Pending)},
				{"Queue processing", fmt.Sprintf("%d", status.Queue.Processing)},
				{"Queue failed", fmt.Sprintf("%d", status.Queue.Failed)},
				{"Queue database", status.QueueDBPath},
				{"Document database", status.DocumentsDBPath},
			}
			if status.LastError != "" {
				rows = append(rows, []string{"Last error", status.LastError})
			}
			cmd.Println(renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

// printLocalStatus inspects the databases directly when the daemon is down.
func printLocalStatus(ctx *commandContext, cmd *cobra.Command) error {
	return ctx.withQueue(func(queue *opqueue.Store) error {
		return ctx.withDocStore(func(documents *docstore.Store) error {
			summary, err := queue.Stats(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := documents.StorageStats(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"Documents", fmt.Sprintf("%d (%s)", stats.TotalDocuments, formatBytes(stats.TotalSize))},
				{"Queue pending", fmt.Sprintf("%d", summary.Pending)},
				{"Queue failed", fmt.Sprintf("%d", summary.Failed)},
			}
			cmd.Println(renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		})
	})
}

func onOff(value bool) string {
	if value {
		return "running"
	}
	return "stopped"
}

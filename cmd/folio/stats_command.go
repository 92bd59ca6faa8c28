package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/docstore"
	"folio/internal/opqueue"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage and queue statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDocStore(func(documents *docstore.Store) error {
				return ctx.withQueue(func(queue *opqueue.Store) error {
					stats, err := documents.StorageStats(cmd.Context())
					if err != nil {
						return err
					}
					summary, err := queue.Stats(cmd.Context())
					if err != nil {
						return err
					}

					rows := [][]string{
						{"Documents", fmt.Sprintf("%d", stats.TotalDocuments)},
						{"Storage used", formatBytes(stats.TotalSize)},
						{"Queue pending", fmt.Sprintf("%d", summary.Pending)},
						{"Queue failed", fmt.Sprintf("%d", summary.Failed)},
						{"Queue total", fmt.Sprintf("%d", summary.Total)},
					}
					cmd.Println(renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
}

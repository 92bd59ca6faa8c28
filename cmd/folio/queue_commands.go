package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/opqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the sync queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(queue *opqueue.Store) error {
				var items []*opqueue.Item
				var err error
				if statusFilter != "" {
					status, ok := opqueue.ParseStatus(statusFilter)
					if !ok {
						return fmt.Errorf("unknown status %q", statusFilter)
					}
					items, err = queue.ItemsByStatus(cmd.Context(), status)
				} else {
					items, err = queue.Items(cmd.Context())
				}
				if err != nil {
					return err
				}
				if len(items) == 0 {
					cmd.Println("Queue is empty.")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						truncateID(item.ID),
						string(item.Operation),
						truncateID(item.DocumentID),
						string(item.Priority),
						string(item.Status),
						fmt.Sprintf("%d/%d", item.RetryCount, item.MaxRetries),
						formatTime(item.UpdatedAt),
					})
				}
				cmd.Println(renderTable(
					[]string{"ID", "Operation", "Document", "Priority", "Status", "Retries", "Updated"},
					rows,
					nil,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, processing, completed, failed, cancelled)")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(queue *opqueue.Store) error {
				summary, err := queue.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Pending", fmt.Sprintf("%d", summary.Pending)},
					{"Processing", fmt.Sprintf("%d", summary.Processing)},
					{"Completed", fmt.Sprintf("%d", summary.Completed)},
					{"Failed", fmt.Sprintf("%d", summary.Failed)},
					{"Cancelled", fmt.Sprintf("%d", summary.Cancelled)},
					{"Total", fmt.Sprintf("%d", summary.Total)},
				}
				cmd.Println(renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-arm failed items for another attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(queue *opqueue.Store) error {
				count, err := queue.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				cmd.Printf("Re-armed %d item(s).\n", count)
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(queue *opqueue.Store) error {
				cancelled, err := queue.CancelItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !cancelled {
					return fmt.Errorf("item %s is not pending", args[0])
				}
				cmd.Println("Cancelled.")
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(queue *opqueue.Store) error {
				var count int64
				var err error
				if completedOnly {
					count, err = queue.ClearCompleted(cmd.Context())
				} else {
					count, err = queue.ClearAll(cmd.Context())
				}
				if err != nil {
					return err
				}
				cmd.Printf("Removed %d item(s).\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completedOnly, "completed", false, "Only remove completed items")
	return cmd
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"folio/internal/delta"
	"folio/internal/docstore"
	"folio/internal/opqueue"
	"folio/internal/processor"
)

func newDocsCommand(ctx *commandContext) *cobra.Command {
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage offline documents",
	}

	docsCmd.AddCommand(newDocsListCommand(ctx))
	docsCmd.AddCommand(newDocsAddCommand(ctx))
	docsCmd.AddCommand(newDocsUpdateCommand(ctx))
	docsCmd.AddCommand(newDocsShowCommand(ctx))
	docsCmd.AddCommand(newDocsRemoveCommand(ctx))

	return docsCmd
}

func newDocsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDocStore(func(store *docstore.Store) error {
				docs, err := store.ListDocuments(cmd.Context())
				if err != nil {
					return err
				}
				if len(docs) == 0 {
					cmd.Println("No documents stored.")
					return nil
				}
				rows := make([][]string, 0, len(docs))
				for _, doc := range docs {
					rows = append(rows, []string{
						truncateID(doc.ID),
						doc.FileName,
						formatBytes(doc.FileSize),
						fmt.Sprintf("v%d", doc.Version),
						formatTime(doc.ModifiedAt),
						formatTimePtr(doc.SyncedAt),
					})
				}
				cmd.Println(renderTable(
					[]string{"ID", "Name", "Size", "Version", "Modified", "Synced"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newDocsAddCommand(ctx *commandContext) *cobra.Command {
	var priority string
	var offline bool

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Import a document and queue it for sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			return ctx.withDocStore(func(store *docstore.Store) error {
				doc := &docstore.Document{
					FileName:         filepath.Base(args[0]),
					Data:             data,
					Priority:         priority,
					AvailableOffline: offline,
				}
				if err := store.SaveDocument(cmd.Context(), doc); err != nil {
					return err
				}
				if err := store.AddHistoryEntry(cmd.Context(), doc.ID, &docstore.HistoryEntry{
					Type:   "document",
					Action: "import",
				}); err != nil {
					return err
				}

				return ctx.withQueue(func(queue *opqueue.Store) error {
					itemPriority, _ := opqueue.ParsePriority(priority)
					item, err := queue.Enqueue(cmd.Context(), opqueue.OpCreate, doc.ID, nil, itemPriority)
					if err != nil {
						return err
					}
					cmd.Printf("Imported %s as %s (queued %s)\n", doc.FileName, doc.ID, truncateID(item.ID))
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "normal", "Sync priority (high, normal, low)")
	cmd.Flags().BoolVar(&offline, "offline", true, "Keep the document available offline")
	return cmd
}

func newDocsUpdateCommand(ctx *commandContext) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "update <id> <file>",
		Short: "Replace a document's content and queue a delta sync",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}

			return ctx.withDocStore(func(store *docstore.Store) error {
				doc, err := store.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("document %s not found", args[0])
				}

				// The delta is computed against the content being replaced;
				// the remote applies it at the pre-edit version.
				frame, err := delta.Encode(delta.Calculate(doc.Data, data))
				if err != nil {
					return err
				}
				baseVersion := doc.Version

				doc.Data = data
				if err := store.SaveDocument(cmd.Context(), doc); err != nil {
					return err
				}
				if err := store.AddHistoryEntry(cmd.Context(), doc.ID, &docstore.HistoryEntry{
					Type:   "document",
					Action: "update",
				}); err != nil {
					return err
				}

				payload, err := processor.EncodeUpdatePayload(baseVersion, frame)
				if err != nil {
					return err
				}
				return ctx.withQueue(func(queue *opqueue.Store) error {
					itemPriority, _ := opqueue.ParsePriority(priority)
					item, err := queue.Enqueue(cmd.Context(), opqueue.OpUpdate, doc.ID, payload, itemPriority)
					if err != nil {
						return err
					}
					cmd.Printf("Updated %s to v%d (queued %s, delta %s)\n",
						doc.FileName, doc.Version, truncateID(item.ID), formatBytes(int64(len(frame))))
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "normal", "Sync priority (high, normal, low)")
	return cmd
}

func newDocsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one document with annotations and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDocStore(func(store *docstore.Store) error {
				doc, err := store.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("document %s not found", args[0])
				}

				rows := [][]string{
					{"ID", doc.ID},
					{"Name", doc.FileName},
					{"Size", formatBytes(doc.FileSize)},
					{"Pages", fmt.Sprintf("%d", doc.PageCount)},
					{"Version", fmt.Sprintf("%d", doc.Version)},
					{"Checksum", doc.Checksum},
					{"Priority", doc.Priority},
					{"Modified", formatTime(doc.ModifiedAt)},
					{"Synced", formatTimePtr(doc.SyncedAt)},
					{"Annotations", fmt.Sprintf("%d", len(doc.Annotations))},
					{"History entries", fmt.Sprintf("%d", len(doc.History))},
				}
				cmd.Println(renderTable([]string{"Field", "Value"}, rows, nil))

				if len(doc.Annotations) > 0 {
					annRows := make([][]string, 0, len(doc.Annotations))
					for _, ann := range doc.Annotations {
						annRows = append(annRows, []string{
							truncateID(ann.ID),
							ann.Type,
							fmt.Sprintf("%d", ann.PageIndex),
							formatTime(ann.ModifiedAt),
						})
					}
					cmd.Println(renderTable([]string{"Annotation", "Type", "Page", "Modified"}, annRows, nil))
				}
				return nil
			})
		},
	}
}

func newDocsRemoveCommand(ctx *commandContext) *cobra.Command {
	var localOnly bool

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a document and queue the remote removal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDocStore(func(store *docstore.Store) error {
				doc, err := store.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("document %s not found", args[0])
				}
				if err := store.DeleteDocument(cmd.Context(), doc.ID); err != nil {
					return err
				}
				cmd.Printf("Deleted %s\n", doc.FileName)

				if localOnly {
					return nil
				}
				return ctx.withQueue(func(queue *opqueue.Store) error {
					if _, err := queue.Enqueue(cmd.Context(), opqueue.OpDelete, doc.ID, nil, opqueue.PriorityNormal); err != nil {
						return err
					}
					cmd.Println("Remote removal queued.")
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVar(&localOnly, "local-only", false, "Skip queueing the remote removal")
	return cmd
}

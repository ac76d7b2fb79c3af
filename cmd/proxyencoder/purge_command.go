package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"proxyencoder/internal/queue"
	"proxyencoder/internal/reconcile"
)

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var completed bool
	var batchID string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove jobs from the queue",
		Long: "Remove every job from the queue after confirmation. --completed only prunes " +
			"finished jobs older than broker.result_expires; --batch cancels one batch.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if completed && strings.TrimSpace(batchID) != "" {
				return fmt.Errorf("--completed and --batch cannot be combined")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return ctx.withStore(func(store *queue.Store) error {
				switch {
				case completed:
					expires := time.Duration(cfg.Broker.ResultExpires) * time.Hour
					removed, err := store.PurgeCompletedBefore(cmd.Context(), time.Now().Add(-expires))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Removed %d finished jobs older than %s\n", removed, expires)
					return nil
				case strings.TrimSpace(batchID) != "":
					canceled, err := store.CancelBatch(cmd.Context(), strings.TrimSpace(batchID))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Canceled %d jobs in batch %s\n", canceled, strings.TrimSpace(batchID))
					return nil
				}

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if stats.Total == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				if stats.Encoding > 0 {
					fmt.Fprintf(out, "%d jobs are encoding right now; their workers will abandon them.\n", stats.Encoding)
				}
				ok, err := ctx.prompter(cmd).Confirm(cmd.Context(), fmt.Sprintf("Remove all %d jobs from the queue?", stats.Total))
				if err != nil {
					return err
				}
				if !ok {
					return reconcile.ErrAborted
				}
				removed, err := store.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d jobs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&completed, "completed", false, "Only remove finished jobs older than broker.result_expires")
	cmd.Flags().StringVar(&batchID, "batch", "", "Cancel the pending and encoding jobs of one batch")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proxyencoder/internal/queue"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs",
		Long:  "Move failed jobs back to pending with a fresh attempt budget. Without IDs every failed job is retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withStore(func(store *queue.Store) error {
				retried, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				if retried == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				fmt.Fprintf(out, "Retried %d failed jobs\n", retried)
				return nil
			})
		},
	}
}

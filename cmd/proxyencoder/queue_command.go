package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proxyencoder/internal/dispatch"
	"proxyencoder/internal/editor"
	"proxyencoder/internal/notifications"
	"proxyencoder/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue proxies for the current timeline",
		Long: "Reconcile the current timeline's clips against existing proxies, " +
			"queue the rest for rendering, wait for the batch and link the results.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return ctx.withStore(func(store *queue.Store) error {
				return ctx.withEditor(logger, func(client editor.Client) error {
					d := dispatch.New(cfg, store, client, ctx.prompter(cmd), notifications.NewService(cfg), logger,
						dispatch.WithOutput(out),
					)
					result, err := d.Run(cmd.Context(), !noWait)
					if err != nil {
						return err
					}
					if result.Queued() && noWait {
						fmt.Fprintln(out, "Run `proxyencoder mon` to follow the batch.")
					}
					if len(result.LinkFailed) > 0 {
						return fmt.Errorf("%d proxies were not linked", len(result.LinkFailed))
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return once the batch is queued")
	return cmd
}

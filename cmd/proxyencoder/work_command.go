package main

import (
	"github.com/spf13/cobra"

	"proxyencoder/internal/daemonrun"
)

func newWorkCommand(ctx *commandContext) *cobra.Command {
	var concurrency int
	var development bool

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run a render worker in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := cfg.Worker.LogLevel
			if ctx.logLevelFlag != nil && *ctx.logLevelFlag != "" {
				level = *ctx.logLevelFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    level,
				Concurrency: concurrency,
				Development: development,
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel encodes (overrides worker.concurrency)")
	cmd.Flags().BoolVar(&development, "dev", false, "Add source locations to log lines")
	return cmd
}

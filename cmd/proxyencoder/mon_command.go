package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/config"
	"proxyencoder/internal/queue"
)

const (
	monBatchLimit = 10
	monJobLimit   = 50
)

func newMonCommand(ctx *commandContext) *cobra.Command {
	var watch int

	cmd := &cobra.Command{
		Use:   "mon",
		Short: "Monitor batches, active jobs and online workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return ctx.withStore(func(store *queue.Store) error {
				if watch <= 0 {
					return renderMonitor(cmd.Context(), out, cfg, store)
				}

				watchCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				clearScreen := shouldColorize(out)
				ticker := time.NewTicker(time.Duration(watch) * time.Second)
				defer ticker.Stop()
				for {
					if clearScreen {
						fmt.Fprint(out, "\x1b[H\x1b[2J")
					}
					if err := renderMonitor(watchCtx, out, cfg, store); err != nil {
						if watchCtx.Err() != nil {
							return nil
						}
						return err
					}
					select {
					case <-watchCtx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}

	cmd.Flags().IntVar(&watch, "watch", 0, "Refresh every N seconds until interrupted")
	return cmd
}

func renderMonitor(ctx context.Context, out io.Writer, cfg *config.Config, store *queue.Store) error {
	batches, err := store.Batches(ctx, monBatchLimit)
	if err != nil {
		return err
	}
	jobs, err := store.List(ctx, queue.Filter{
		Statuses: []queue.Status{queue.StatusEncoding, queue.StatusPending, queue.StatusFailed},
		Limit:    monJobLimit,
	})
	if err != nil {
		return err
	}
	since := time.Now().Add(-time.Duration(cfg.Worker.HeartbeatTimeout) * time.Second)
	workers, err := store.OnlineWorkers(ctx, since)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Batches")
	if len(batches) == 0 {
		fmt.Fprintln(out, "Queue is empty")
	} else {
		fmt.Fprint(out, renderTable(
			[]string{"Batch", "Project / Timeline", "Queue", "State", "Done", "Failed", "Queued"},
			buildBatchRows(batches),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Jobs")
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No pending, encoding or failed jobs")
	} else {
		fmt.Fprint(out, renderTable(
			[]string{"Job", "Clip", "Status", "Progress", "Worker", "Attempts", "Started", "Detail"},
			buildJobRows(jobs),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
		))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Workers")
	if len(workers) == 0 {
		fmt.Fprintln(out, "No workers online")
		return nil
	}
	fmt.Fprint(out, renderTable(
		[]string{"Host", "Queue", "Slots", "Version", "Up", "Last seen"},
		buildWorkerRows(workers, cfg.QueueName(buildinfo.Commit())),
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	))
	return nil
}

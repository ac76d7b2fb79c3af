package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/spf13/cobra"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/config"
	"proxyencoder/internal/deps"
	"proxyencoder/internal/preflight"
	"proxyencoder/internal/queue"
	"proxyencoder/internal/updatecheck"
)

const updateCheckTimeout = 5 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var skipEditor bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependencies, paths, queue and worker status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := newPalette(shouldColorize(out))

			p.section(out, "Version")
			renderVersionStatus(cmd.Context(), out, p, cfg)
			fmt.Fprintln(out)

			p.section(out, "Dependencies")
			for _, line := range dependencyLines(p, preflight.CheckSystemDeps(cmd.Context(), cfg)) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)

			p.section(out, "Paths")
			for _, check := range []preflight.Result{
				preflight.CheckDirectoryAccess("Proxy root", cfg.Paths.ProxyPathRoot),
				preflight.CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
				preflight.CheckDirectoryAccess("Encode log directory", cfg.Paths.EncodeLogDir),
			} {
				fmt.Fprintln(out, p.statusLine(check.Name, checkKind(check, statusError), check.Detail))
			}
			if !skipEditor {
				check := preflight.CheckEditor(cmd.Context(), cfg)
				fmt.Fprintln(out, p.statusLine(check.Name, checkKind(check, statusWarn), check.Detail))
			}
			fmt.Fprintln(out)

			return ctx.withStore(func(store *queue.Store) error {
				queueName := cfg.QueueName(buildinfo.Commit())
				p.section(out, "Queue")
				fmt.Fprintln(out, p.statusLine("Broker", statusInfo, fmt.Sprintf("%s (%s)", store.Backend(), store.Location())))
				fmt.Fprintln(out, p.statusLine("Routing queue", statusInfo, queueName))
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if rows := buildQueueStatusRows(stats); len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
				} else {
					fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				fmt.Fprintln(out)

				p.section(out, "Workers")
				since := time.Now().Add(-time.Duration(cfg.Worker.HeartbeatTimeout) * time.Second)
				workers, err := store.OnlineWorkers(cmd.Context(), since)
				if err != nil {
					return err
				}
				constrained := !cfg.App.DisableVersionConstrain && buildinfo.Commit() != ""
				report := preflight.CheckWorkers(workers, queueName, constrained)
				switch {
				case report.None():
					fmt.Fprintln(out, p.statusLine("Online", statusWarn, "no workers online"))
				case report.AllIncompatible():
					fmt.Fprintln(out, p.statusLine("Online", statusError,
						fmt.Sprintf("%d online, none on queue %s", len(workers), queueName)))
				case len(report.Incompatible) > 0:
					fmt.Fprintln(out, p.statusLine("Online", statusWarn,
						fmt.Sprintf("%d compatible, %d on other versions", len(report.Compatible), len(report.Incompatible))))
				default:
					fmt.Fprintln(out, p.statusLine("Online", statusOK, fmt.Sprintf("%d compatible", len(report.Compatible))))
				}
				if len(workers) > 0 {
					fmt.Fprint(out, renderTable(
						[]string{"Host", "Queue", "Slots", "Version", "Up", "Last seen"},
						buildWorkerRows(workers, queueName),
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&skipEditor, "skip-editor", false, "Do not contact the editor")
	return cmd
}

func renderVersionStatus(ctx context.Context, out io.Writer, p palette, cfg *config.Config) {
	fmt.Fprintln(out, p.statusLine("Build", statusInfo, versionLine()))
	if !cfg.App.CheckForUpdates {
		fmt.Fprintln(out, p.statusLine("Update check", statusInfo, "disabled"))
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, updateCheckTimeout)
	defer cancel()
	client := github.NewClient(&http.Client{Timeout: updateCheckTimeout})
	result, err := updatecheck.Check(checkCtx, client, cfg.App.UpdateRepo, cfg.App.UpdateBranch, buildinfo.Commit())
	switch {
	case err != nil:
		fmt.Fprintln(out, p.statusLine("Update check", statusWarn, err.Error()))
	case result.IsLatest != nil && !*result.IsLatest:
		fmt.Fprintln(out, p.statusLine("Update check", statusWarn, result.Status()))
	default:
		fmt.Fprintln(out, p.statusLine("Update check", statusOK, result.Status()))
	}
}

func dependencyLines(p palette, statuses []deps.Status) []string {
	lines := make([]string, 0, len(statuses)+1)
	missing := deps.Missing(statuses)
	if len(missing) == 0 {
		lines = append(lines, p.statusLine("Summary", statusOK, "all required binaries found"))
	} else {
		lines = append(lines, p.statusLine("Summary", statusError, fmt.Sprintf("%d required binaries missing", len(missing))))
	}
	for _, dep := range statuses {
		if dep.Available {
			detail := fmt.Sprintf("Ready (command: %s)", dep.Command)
			if dep.Version != "" {
				detail += " " + dep.Version
			}
			lines = append(lines, p.statusLine(dep.Name, statusOK, detail))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		detail := dep.Detail
		if detail == "" {
			detail = "not found"
		}
		lines = append(lines, p.statusLine(dep.Name, kind, detail))
	}
	return lines
}

func checkKind(check preflight.Result, failed statusKind) statusKind {
	if check.Passed {
		return statusOK
	}
	return failed
}

package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"proxyencoder/internal/config"
	"proxyencoder/internal/editor"
	"proxyencoder/internal/linker"
	"proxyencoder/internal/logging"
)

const linkSettle = 2 * time.Second

func newLinkCommand(ctx *commandContext) *cobra.Command {
	var exts []string
	var watch bool

	cmd := &cobra.Command{
		Use:   "link [dir]",
		Short: "Link rendered proxies to matching timeline clips",
		Long: "Search every timeline, current first, for clips whose source name contains " +
			"a proxy file's name and link the first match. Defaults to the proxy root.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			dir := cfg.Paths.ProxyPathRoot
			if len(args) == 1 {
				dir, err = config.ExpandPath(args[0])
				if err != nil {
					return err
				}
			}
			allowed := normalizeExts(exts, cfg.Proxy.Ext)
			out := cmd.OutOrStdout()

			return ctx.withEditor(logger, func(client editor.Client) error {
				files, err := linker.CollectProxyFiles(dir, allowed)
				if err != nil {
					return fmt.Errorf("collect proxies in %s: %w", dir, err)
				}
				if len(files) == 0 {
					fmt.Fprintf(out, "No proxy files (%s) found in %s\n", strings.Join(allowed, ", "), dir)
				} else {
					result, err := linker.FindAndLink(cmd.Context(), client, files, logger)
					if err != nil {
						return err
					}
					printLinkResult(out, result)
				}
				if !watch {
					return nil
				}

				watchCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				fmt.Fprintf(out, "Watching %s for new proxies. Press Ctrl+C to stop.\n", dir)
				return linker.Watch(watchCtx, dir, allowed, linkSettle, func(path string) {
					result, err := linker.FindAndLink(watchCtx, client, []string{path}, logger)
					if err != nil {
						logger.Warn("link failed", logging.String("proxy", path), logging.Error(err))
						return
					}
					printLinkResult(out, result)
				}, logger)
			})
		},
	}

	cmd.Flags().StringArrayVar(&exts, "ext", nil, "Proxy file extension to link (repeatable; defaults to proxy.ext)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep linking new proxies as they appear")
	return cmd
}

func normalizeExts(exts []string, fallback string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	if len(out) == 0 {
		out = append(out, fallback)
	}
	return out
}

func printLinkResult(out io.Writer, result linker.Result) {
	for _, path := range result.Linked {
		fmt.Fprintf(out, "Linked %s\n", path)
	}
	for _, path := range result.Failed {
		fmt.Fprintf(out, "Failed to link %s\n", path)
	}
	for _, path := range result.Unmatched {
		fmt.Fprintf(out, "No clip matches %s\n", path)
	}
	fmt.Fprintln(out, result.Summary())
}

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"proxyencoder/internal/buildinfo"
	"proxyencoder/internal/config"
)

var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	var (
		initPath  string
		overwrite bool
	)
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveTarget(ctx, initPath)
			if err != nil {
				return err
			}
			return writeSampleConfig(cmd.OutOrStdout(), target, overwrite)
		},
	}
	initCmd.Flags().StringVarP(&initPath, "path", "p", "", "Where to write the file")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")

	validateCmd := &cobra.Command{
		Use:         "validate",
		Short:       "Load and validate the configuration",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "No file found; using defaults")
			}
			fmt.Fprintf(out, "Broker: %s\n", cfg.Broker.Backend)
			fmt.Fprintf(out, "Queue: %s\n", cfg.QueueName(buildinfo.Commit()))
			fmt.Fprintf(out, "Editor driver: %s\n", cfg.Editor.Driver)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration with secrets masked",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, _, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			masked := *cfg
			masked.Broker.PostgresDSN = mask(masked.Broker.PostgresDSN)
			masked.Editor.BridgeToken = mask(masked.Editor.BridgeToken)
			data, err := toml.Marshal(masked)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	pathCmd := &cobra.Command{
		Use:         "path",
		Short:       "Print which configuration file would be used",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveTarget(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}

	root := &cobra.Command{Use: "config", Short: "Inspect or create the configuration file"}
	root.AddCommand(initCmd, validateCmd, showCmd, pathCmd)
	return root
}

// resolveTarget picks the file a config subcommand acts on: explicit, then
// --config, then PROXYENCODER_CONFIG, then the default location.
func resolveTarget(ctx *commandContext, explicit string) (string, error) {
	for _, candidate := range []string{explicit, ctx.configPath(), os.Getenv("PROXYENCODER_CONFIG")} {
		if candidate = strings.TrimSpace(candidate); candidate == "" {
			continue
		}
		path, err := config.ExpandPath(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return path, nil
	}
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("determine default config path: %w", err)
	}
	return path, nil
}

func writeSampleConfig(out io.Writer, target string, overwrite bool) error {
	if !overwrite {
		switch _, err := os.Stat(target); {
		case err == nil:
			return fmt.Errorf("%s already exists (pass --overwrite to replace it)", target)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if err := config.CreateSample(target); err != nil {
		return fmt.Errorf("create sample config: %w", err)
	}
	fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
	fmt.Fprintln(out, "Set paths.proxy_path_root and the [editor] section before queueing.")
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"proxyencoder/internal/buildinfo"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the build version and commit",
		Args:        cobra.NoArgs,
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), versionLine())
			return nil
		},
	}
}

func versionLine() string {
	commit := buildinfo.ShortSHA()
	if commit == "" {
		commit = "unknown"
	}
	if buildinfo.Modified() {
		commit += "-dirty"
	}
	return fmt.Sprintf("proxyencoder %s (%s)", buildinfo.Version(), commit)
}

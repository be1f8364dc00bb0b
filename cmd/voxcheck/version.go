package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attest-ai/voxcheck/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "voxcheck %s (engine %s)\n", version, server.EngineVersion)
		},
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "showoff",
		Short: "Visual output surfaces for AI agents",
		Long: `showoff lets an agent draw on a canvas, show screens and arrange
windows in front-end surfaces attached over WebSocket.

Running without a command is the same as "showoff serve".

CONFIGURATION:
    Config file: ./config.yaml (override with --config)
    Environment: SHOWOFF_* variables override config
    Secrets:     "enc:" values are decrypted with SHOWOFF_CONFIG_KEY`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the gateway API and surface endpoints",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "mcp",
			Short: "Serve tools over MCP on stdio, with surfaces on the gateway",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMCP(cmd.Context(), configPath, cmd.InOrStdin(), cmd.OutOrStdout())
			},
		},
		newEncryptCmd(),
	)
	return root
}

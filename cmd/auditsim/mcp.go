package main

import (
	"github.com/spf13/cobra"

	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the simulator over the Model Context Protocol (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; keep logs off it.
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = "warn"
		}
		logger := logging.New(level, "json", cmd.ErrOrStderr())
		return mcp.NewServer(version, logger).Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

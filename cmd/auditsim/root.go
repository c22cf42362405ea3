package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/auditsim/pkg/config"
	"github.com/rmax-ai/auditsim/pkg/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "auditsim",
	Short: "auditsim simulates database users and emits synthetic audit events",
	Long: `auditsim drives a population of simulated employees and service accounts
through a shared virtual clock. Each agent issues SQL actions shaped by its role,
schedule and expertise, and a small share run scripted suspicious scenarios.
Every completed action becomes one telemetry record.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", envOrDefault("AUDITSIM_CONFIG", "auditsim.yaml"), "path to the simulation config (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", envOrDefault("AUDITSIM_LOG_LEVEL", ""), "log level: debug|info|warn|error (overrides the config)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text|json (overrides the config)")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig reads the --config file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// newLogger builds the logger, letting flags override the config.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	level, format := "info", "text"
	if cfg != nil {
		level, format = cfg.LogLevel, cfg.LogFormat
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		format = v
	}
	return logging.New(level, format, os.Stderr)
}

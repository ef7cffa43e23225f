// Package main provides the CLI entry point for agentcore, a local
// terminal coding-agent core: it streams turns to a model, dispatches
// shell_command/apply_patch/view_image/mcp__ tool calls, and persists every
// turn to a per-conversation rollout log.
//
// # Basic Usage
//
// Run an interactive session of turns against the current directory:
//
//	agentcore serve
//
// List recorded sessions:
//
//	agentcore rollout list
//
// Inspect configured MCP servers:
//
//	agentcore mcp servers
//
// # Environment Variables
//
//   - AGENTCORE_CONFIG: path to the YAML config file (default ~/.agentcore/agentcore.yaml)
//   - OPENAI_API_KEY / ANTHROPIC_API_KEY: model provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - a local terminal coding-agent core",
		Long: `agentcore drives one conversation turn at a time against a model transport,
dispatching shell_command, apply_patch, view_image, and mcp__ tool calls and
persisting every turn to an append-only rollout log.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: $AGENTCORE_CONFIG, else ~/.agentcore/agentcore.yaml)")

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRolloutCmd(),
		buildMcpCmd(),
	)
	return rootCmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("AGENTCORE_CONFIG"); env != "" {
		return env
	}
	return DefaultConfigPath()
}

package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command, agentcore's primary mode: a
// read-eval-print loop that assembles, streams, and dispatches one turn per
// line of stdin, per spec.md §4.J.
func buildServeCmd() *cobra.Command {
	var (
		cwd   string
		model string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an interactive turn loop against stdin",
		Long: `Start agentcore's turn loop. Each line read from stdin becomes one user
message; agentcore assembles a prompt, streams the model's response, and
dispatches any shell_command, apply_patch, view_image, or mcp__ tool calls
it returns, looping until the model completes the turn with no further
calls. Every turn is appended to a rollout log under the configured home
directory.

Type "exit" or send EOF (Ctrl-D) to stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}
			return runServe(cmd, cfg, cwd)
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory for shell_command and apply_patch (default: current directory)")
	cmd.Flags().StringVar(&model, "model", "", "Override the configured model")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turnkit/agentcore/internal/mcp"
)

// buildMcpCmd creates the "mcp" command group for inspecting and calling
// into MCP servers directly, independent of a running turn, per spec.md
// §4.F.
func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage MCP servers and call their tools",
		Long: `Manage MCP servers and interact with their tools/resources/prompts.

Use "agentcore mcp servers" to list configured servers.`,
	}
	cmd.AddCommand(
		buildMcpServersCmd(),
		buildMcpToolsCmd(),
		buildMcpCallCmd(),
	)
	return cmd
}

func loadMCPManagerFromConfig() (*mcp.Manager, error) {
	cfg, err := LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return mcp.NewManager(&cfg.MCP, slog.Default()), nil
}

func buildMcpServersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadMCPManagerFromConfig()
			if err != nil {
				return err
			}
			if err := mgr.Start(cmd.Context()); err != nil {
				return err
			}
			defer mgr.Stop()

			out := cmd.OutOrStdout()
			statuses := mgr.Status()
			if len(statuses) == 0 {
				fmt.Fprintln(out, "No MCP servers configured.")
				return nil
			}
			for _, status := range statuses {
				state := "disconnected"
				if status.Connected {
					state = "connected"
				}
				fmt.Fprintf(out, "  %s (%s) - %s\n", status.ID, status.Name, state)
				if status.Connected {
					fmt.Fprintf(out, "    tools=%d resources=%d prompts=%d\n", status.Tools, status.Resources, status.Prompts)
				}
			}
			return nil
		},
	}
}

func buildMcpToolsCmd() *cobra.Command {
	var serverID string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List MCP tools, connecting to servers as needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadMCPManagerFromConfig()
			if err != nil {
				return err
			}
			defer mgr.Stop()
			if serverID != "" {
				if err := mgr.Connect(cmd.Context(), serverID); err != nil {
					return err
				}
			} else if err := mgr.Start(cmd.Context()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tools := mgr.AllTools()
			if len(tools) == 0 {
				fmt.Fprintln(out, "No tools available.")
				return nil
			}
			for id, list := range tools {
				fmt.Fprintf(out, "%s:\n", id)
				for _, tool := range list {
					fmt.Fprintf(out, "  - %s: %s\n", tool.Name, tool.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverID, "server", "", "Server ID (optional, connects the auto-start servers otherwise)")
	return cmd
}

func buildMcpCallCmd() *cobra.Command {
	var rawArgs []string
	cmd := &cobra.Command{
		Use:   "call <server.tool>",
		Short: "Call an MCP tool directly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverID, toolName, err := parseMCPQualifiedName(args[0])
			if err != nil {
				return err
			}
			mgr, err := loadMCPManagerFromConfig()
			if err != nil {
				return err
			}
			defer mgr.Stop()
			if err := mgr.Connect(cmd.Context(), serverID); err != nil {
				return err
			}

			toolArgs, err := parseCallArgs(rawArgs)
			if err != nil {
				return err
			}
			result, err := mgr.CallTool(cmd.Context(), serverID, toolName, toolArgs)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result == nil || len(result.Content) == 0 {
				fmt.Fprintln(out, "No result.")
				return nil
			}
			for _, item := range result.Content {
				if item.Type == "text" {
					fmt.Fprintln(out, item.Text)
					continue
				}
				payload, err := json.Marshal(item)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(payload))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&rawArgs, "arg", nil, "Tool argument (key=value, value parsed as JSON when possible)")
	return cmd
}

func parseMCPQualifiedName(value string) (string, string, error) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected format <server>.<tool>")
	}
	return parts[0], parts[1], nil
}

func parseCallArgs(items []string) (map[string]any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make(map[string]any)
	for _, item := range items {
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid arg %q, expected key=value", item)
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err == nil {
			out[key] = parsed
		} else {
			out[key] = value
		}
	}
	return out, nil
}

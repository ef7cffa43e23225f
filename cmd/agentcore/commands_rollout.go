package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/turnkit/agentcore/internal/rollout"
)

// buildRolloutCmd creates the "rollout" command group for inspecting
// recorded sessions, per spec.md §4.D.
func buildRolloutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Inspect recorded session rollouts",
	}
	cmd.AddCommand(buildRolloutListCmd(), buildRolloutShowCmd())
	return cmd
}

func buildRolloutListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rollout files under the configured home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(resolveConfigPath())
			if err != nil {
				return err
			}
			paths, err := listRolloutFiles(cfg.Home)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(paths) == 0 {
				fmt.Fprintln(out, "No rollouts found.")
				return nil
			}
			for _, path := range paths {
				items, err := rollout.ReadFile(path)
				if err != nil || len(items) == 0 || items[0].SessionMeta == nil {
					fmt.Fprintf(out, "%s (unreadable)\n", path)
					continue
				}
				meta := items[0].SessionMeta
				fmt.Fprintf(out, "%s  thread=%s  cwd=%s  items=%d\n", path, meta.ThreadID, meta.Cwd, len(items))
			}
			return nil
		},
	}
	return cmd
}

func buildRolloutShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <path>",
		Short: "Print every item in a rollout file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := rollout.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, it := range items {
				switch it.Type {
				case rollout.TypeSessionMeta:
					fmt.Fprintf(out, "[%s] session_meta thread=%s cwd=%s\n", it.Timestamp.Format("15:04:05"), it.SessionMeta.ThreadID, it.SessionMeta.Cwd)
				case rollout.TypeResponseItem:
					ri := it.ResponseItem
					fmt.Fprintf(out, "[%s] %s role=%s name=%s call_id=%s\n", it.Timestamp.Format("15:04:05"), ri.Kind, ri.Role, ri.Name, ri.CallID)
					if ri.Content != "" {
						fmt.Fprintf(out, "    %s\n", ri.Content)
					}
					if ri.Output != "" {
						fmt.Fprintf(out, "    -> %s\n", ri.Output)
					}
				case rollout.TypeEventMsg:
					fmt.Fprintf(out, "[%s] event %s\n", it.Timestamp.Format("15:04:05"), it.EventMsg.Kind)
				case rollout.TypeCompacted:
					fmt.Fprintf(out, "[%s] compacted: %s\n", it.Timestamp.Format("15:04:05"), it.Compacted.Message)
				}
			}
			return nil
		},
	}
	return cmd
}

func listRolloutFiles(home string) ([]string, error) {
	sessionsDir := filepath.Join(home, "sessions")
	var paths []string
	err := filepath.WalkDir(sessionsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				return nil // sessions dir doesn't exist yet
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".jsonl" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

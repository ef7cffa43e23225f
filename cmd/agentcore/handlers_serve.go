package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turnkit/agentcore/internal/mcp"
	"github.com/turnkit/agentcore/internal/promptassembler"
	"github.com/turnkit/agentcore/internal/rollout"
	"github.com/turnkit/agentcore/internal/transport"
	"github.com/turnkit/agentcore/internal/truncate"
	"github.com/turnkit/agentcore/internal/turn"
	"github.com/turnkit/agentcore/internal/unifiedexec"
)

func runServe(cmd *cobra.Command, cfg *Config, cwd string) error {
	ctx := cmd.Context()

	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("serve: getwd: %w", err)
		}
		cwd = wd
	}

	threadID := uuid.NewString()

	stateDB, err := openStateDB(cfg.Home)
	if err != nil {
		return fmt.Errorf("serve: open state db: %w", err)
	}
	defer stateDB.Close()
	slog.SetDefault(slog.New(newStatedbHandler(slog.Default().Handler(), stateDB, threadID)))

	writer, err := rollout.Create(cfg.Home, rollout.SessionMeta{
		ThreadID:  threadID,
		Source:    rollout.SourceCli,
		Cwd:       cwd,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("serve: rollout create: %w", err)
	}
	defer writer.Close()

	mgr := mcp.NewManager(&cfg.MCP, slog.Default())
	if cfg.MCP.Enabled {
		if err := mgr.Start(ctx); err != nil {
			slog.Warn("mcp start failed", "error", err)
		}
	}
	defer mgr.Stop()
	dispatch := mcp.NewDispatch(mgr)

	auth := apiKeyAuthRecovery()
	streamer, err := buildStreamer(cfg, auth, threadID)
	if err != nil {
		return err
	}

	assembler := promptassembler.New(cfg.UserInstructions, "", true)
	exec := unifiedexec.NewManager(0)
	defer exec.TerminateAll()

	ui := newTerminalUI(cmd.OutOrStdout(), cmd.InOrStdin())
	telemetry := &slogTelemetry{logger: slog.Default()}

	orch := turn.New(turn.Config{
		Model:             cfg.Model,
		ConversationID:    threadID,
		Cwd:               cwd,
		Shell:             cfg.Shell,
		ApprovalPolicy:    cfg.ApprovalPolicy,
		SandboxPolicy:     cfg.SandboxPolicy,
		ReasoningEffort:   cfg.ReasoningEffort,
		ReasoningSummary:  cfg.ReasoningSummary,
		ParallelToolCalls: cfg.ParallelToolCalls,
		MCPTimeout:        cfg.MCPTimeout,
		TruncatePolicy:    truncate.Tokens(4096),
	}, assembler, streamer, exec, dispatch, ui, telemetry, writer, nil)

	fmt.Fprintf(cmd.OutOrStdout(), "agentcore ready (thread %s, rollout %s)\n", threadID, writer.FilePath())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(cmd.OutOrStdout(), "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if err := orch.RunTurn(ctx, line, nil); err != nil {
			if errors.Is(err, turn.ErrAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "[turn aborted]")
				continue
			}
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[turn error: %v]\n", err)
		}
	}
	return scanner.Err()
}

func apiKeyAuthRecovery() transport.AuthRecovery {
	token := os.Getenv("OPENAI_API_KEY")
	if token == "" {
		token = os.Getenv("ANTHROPIC_API_KEY")
	}
	return transport.NoAuthRecovery{Cred: transport.Auth{Mode: transport.AuthModeAPIKey, Token: token}}
}

func buildStreamer(cfg *Config, auth transport.AuthRecovery, conversationID string) (turn.Streamer, error) {
	switch cfg.Transport {
	case "ws", "websocket":
		return turn.WSStreamer{
			Client:         transport.NewWSClient(cfg.APIBaseURL, auth),
			ConversationID: conversationID,
		}, nil
	case "", "sse":
		provider := transport.ProviderInfo{Name: "openai", IsCanonicalOpenAI: strings.Contains(cfg.APIBaseURL, "api.openai.com")}
		return transport.NewSSEClient(cfg.APIBaseURL, provider, transport.Features{}, auth), nil
	default:
		return nil, fmt.Errorf("serve: unknown transport %q", cfg.Transport)
	}
}

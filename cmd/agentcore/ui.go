package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/turnkit/agentcore/internal/collab"
	"github.com/turnkit/agentcore/internal/rollout"
)

// terminalUI is a minimal collab.UI implementation that renders turn events
// to stdout and prompts for exec/patch approvals on stdin, the way a
// terminal coding agent's front end would. It exists so the CLI has
// something concrete to drive internal/turn.Orchestrator with; spec.md §1
// and §4.L place richer UI rendering out of scope for this core.
type terminalUI struct {
	out *bufio.Writer
	in  *bufio.Reader
}

func newTerminalUI(out io.Writer, in io.Reader) *terminalUI {
	return &terminalUI{out: bufio.NewWriter(out), in: bufio.NewReader(in)}
}

func (u *terminalUI) Emit(ctx context.Context, event rollout.EventMsg) {
	switch event.Kind {
	case "agent_message_delta", "reasoning_delta":
		var payload struct {
			Text string `json:"text"`
		}
		_ = unmarshalPayload(event.Payload, &payload)
		fmt.Fprint(u.out, payload.Text)
	case "turn_complete":
		fmt.Fprintln(u.out)
	case "exec_command_end":
		// already rendered via the function_call_output once it lands in history
	case "exec_warning":
		var payload struct {
			Message string `json:"message"`
		}
		_ = unmarshalPayload(event.Payload, &payload)
		fmt.Fprintf(u.out, "\n[warning] %s\n", payload.Message)
	case "mention":
		var payload struct {
			Scheme, Path string
		}
		_ = unmarshalPayload(event.Payload, &payload)
		fmt.Fprintf(u.out, "\n[mention] %s://%s\n", payload.Scheme, payload.Path)
	}
	u.out.Flush()
}

func (u *terminalUI) RequestApproval(ctx context.Context, req collab.ApprovalRequest) (collab.ApprovalResponse, error) {
	u.out.Flush()
	prompt := approvalPrompt(req)
	fmt.Fprintf(u.out, "\n%s\napprove? [y]es / [n]o / [s]ession / [a]bort: ", prompt)
	u.out.Flush()

	line, err := u.in.ReadString('\n')
	if err != nil && line == "" {
		return collab.ApprovalResponse{CallID: req.CallID, Decision: collab.DecisionAbort}, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "":
		return collab.ApprovalResponse{CallID: req.CallID, Decision: collab.DecisionApproved}, nil
	case "s", "session":
		return collab.ApprovalResponse{CallID: req.CallID, Decision: collab.DecisionApprovedForSession}, nil
	case "a", "abort":
		return collab.ApprovalResponse{CallID: req.CallID, Decision: collab.DecisionAbort}, nil
	default:
		return collab.ApprovalResponse{CallID: req.CallID, Decision: collab.DecisionAbort}, nil
	}
}

func approvalPrompt(req collab.ApprovalRequest) string {
	switch req.Kind {
	case collab.ApprovalExec:
		return fmt.Sprintf("exec: %s %s (cwd=%s)", req.Env.Command, strings.Join(req.Env.Args, " "), req.Env.Cwd)
	case collab.ApprovalApplyPatch:
		return fmt.Sprintf("apply_patch: %d file(s): %s", len(req.Patch.Order), strings.Join(req.Patch.Order, ", "))
	case collab.ApprovalMcpElicitation:
		return fmt.Sprintf("mcp elicitation: %s", req.ElicitationPrompt)
	default:
		return "approval requested"
	}
}

// slogTelemetry adapts collab.Telemetry onto slog, the way the teacher logs
// gateway request/response metrics.
type slogTelemetry struct {
	logger *slog.Logger
}

func (t *slogTelemetry) RecordAPIRequest(attempt int, status int, err error, duration time.Duration) {
	if err != nil {
		t.logger.Warn("api request failed", "attempt", attempt, "status", status, "error", err, "duration", duration)
		return
	}
	t.logger.Debug("api request", "attempt", attempt, "status", status, "duration", duration)
}

func (t *slogTelemetry) LogSSEEvent(ok bool, duration time.Duration) {
	t.logger.Debug("sse stream closed", "ok", ok, "duration", duration)
}

func (t *slogTelemetry) SSEEventCompleted(inputTokens, outputTokens, cachedTokens, reasoningTokens, totalTokens int64) {
	t.logger.Info("turn usage",
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"cached_tokens", cachedTokens,
		"reasoning_tokens", reasoningTokens,
		"total_tokens", totalTokens)
}

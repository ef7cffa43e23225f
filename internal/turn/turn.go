// Package turn implements the spec.md §4.J turn orchestrator: the
// assemble/stream/dispatch/truncate/retry/abort loop that drives one
// conversation turn across the prompt assembler, model transport,
// unified-exec process manager, apply-patch engine, and MCP client.
package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/turnkit/agentcore/internal/approval"
	"github.com/turnkit/agentcore/internal/backoff"
	"github.com/turnkit/agentcore/internal/collab"
	"github.com/turnkit/agentcore/internal/mcp"
	"github.com/turnkit/agentcore/internal/promptassembler"
	"github.com/turnkit/agentcore/internal/rollout"
	"github.com/turnkit/agentcore/internal/transport"
	"github.com/turnkit/agentcore/internal/truncate"
	"github.com/turnkit/agentcore/internal/unifiedexec"
)

// Streamer is the subset of transport.SSEClient/transport.WSClient the
// orchestrator needs: open one turn's stream and deliver ResponseEvents,
// per spec.md §4.J step 2. WSStreamer below adapts the WebSocket wire,
// whose SendTurn also takes a conversation id, to this shape.
type Streamer interface {
	Stream(ctx context.Context, req transport.Request, turnState *transport.TurnState) (<-chan transport.ResponseEvent, <-chan error)
}

// WSStreamer adapts a transport.WSClient, bound to one conversation, to
// the Streamer interface.
type WSStreamer struct {
	Client         *transport.WSClient
	ConversationID string
}

func (w WSStreamer) Stream(ctx context.Context, req transport.Request, turnState *transport.TurnState) (<-chan transport.ResponseEvent, <-chan error) {
	return w.Client.SendTurn(ctx, w.ConversationID, req, turnState)
}

// ErrAborted is returned by RunTurn when an ApprovalDecision of Abort stops
// the turn mid-flight (spec.md §4.J step 6). Context cancellation also stops
// the turn, but RunTurn then returns the context's error, not ErrAborted.
var ErrAborted = fmt.Errorf("turn: aborted")

// Config carries the per-conversation policy and model settings the
// orchestrator needs to assemble requests and gate approvals.
type Config struct {
	Model              string
	ConversationID     string
	Cwd                string
	Shell              string
	ApprovalPolicy     string // "never", "on-failure", "untrusted", "always"
	SandboxPolicy      string
	ReasoningEffort    string
	ReasoningSummary   string
	ParallelToolCalls  bool
	SupportsImageInput bool
	MCPTimeout         time.Duration
	TruncatePolicy     truncate.Policy
	MaxRetries         int
	RetryPolicy        backoff.BackoffPolicy
}

func (c Config) turnContext() promptassembler.TurnContext {
	return promptassembler.TurnContext{
		ConversationID:   c.ConversationID,
		Cwd:              c.Cwd,
		Shell:            c.Shell,
		ApprovalPolicy:   c.ApprovalPolicy,
		SandboxPolicy:    c.SandboxPolicy,
		ModelSlug:        c.Model,
		ReasoningEffort:  c.ReasoningEffort,
		ReasoningSummary: c.ReasoningSummary,
	}
}

// Orchestrator drives turns for one conversation, per spec.md §4.J.
type Orchestrator struct {
	cfg       Config
	assembler *promptassembler.Assembler
	streamer  Streamer
	exec      *unifiedexec.Manager
	mcp       *mcp.Dispatch
	ui        collab.UI
	telemetry collab.Telemetry
	rollout   *rollout.Writer
	skills    approval.SkillResolver

	history   []rollout.ResponseItem
	approvals *sessionApprovals
}

// New builds an Orchestrator. telemetry and rollout writer may be nil;
// skills may be nil to disable skill-token injection (spec.md §4.K).
func New(cfg Config, assembler *promptassembler.Assembler, streamer Streamer, exec *unifiedexec.Manager, mcpDispatch *mcp.Dispatch, ui collab.UI, telemetry collab.Telemetry, writer *rollout.Writer, skills approval.SkillResolver) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TruncatePolicy.Limit <= 0 {
		cfg.TruncatePolicy = truncate.Tokens(4096)
	}
	return &Orchestrator{
		cfg:       cfg,
		assembler: assembler,
		streamer:  streamer,
		exec:      exec,
		mcp:       mcpDispatch,
		ui:        ui,
		telemetry: telemetry,
		rollout:   writer,
		skills:    skills,
		approvals: newSessionApprovals(),
	}
}

// RunTurn assembles, streams, and dispatches tool calls for one user
// message until the model reports Completed with no further function
// calls, per spec.md §4.J's loop.
func (o *Orchestrator) RunTurn(ctx context.Context, userText string, tools []promptassembler.ToolSpec) error {
	tc := o.cfg.turnContext()
	turnInput := o.buildUserTurnInput(userText)
	turnState := transport.NewTurnState()

	for {
		prompt, err := o.assembler.Assemble(tc, o.history, turnInput, tools, o.cfg.ParallelToolCalls)
		if err != nil {
			return fmt.Errorf("turn: assemble: %w", err)
		}

		req := transport.NewRequest(o.cfg.Model, prompt.Input, prompt.BaseInstructionsOverride, toTransportTools(prompt.Tools), prompt.ParallelToolCalls, prompt.PromptCacheKey)
		if o.cfg.ReasoningEffort != "" {
			req.Reasoning = &transport.Reasoning{Effort: o.cfg.ReasoningEffort, Summary: o.cfg.ReasoningSummary}
		}

		items, calls, completed, err := o.streamTurn(ctx, req, turnState)
		o.appendHistory(turnInput...)
		o.appendHistory(items...)
		if err != nil {
			return err
		}

		if len(calls) == 0 {
			if completed {
				o.emit("turn_complete", nil)
			}
			return nil
		}

		outputs, err := o.dispatchCalls(ctx, tc, calls)
		o.appendHistory(outputs...)
		if err != nil {
			return err
		}

		turnInput = nil // the next round's "current turn input" is empty; new items are already in history.
	}
}

// buildUserTurnInput renders the user's message plus any skill-token
// injections recognized in it, per spec.md §4.K.
func (o *Orchestrator) buildUserTurnInput(userText string) []rollout.ResponseItem {
	msg := rollout.ResponseItem{Kind: rollout.ResponseItemMessage, Role: "user", Content: userText}
	if o.skills == nil {
		return []rollout.ResponseItem{msg}
	}
	injection := approval.Extract(userText, o.skills)
	for _, m := range injection.Mentions {
		o.emit("mention", map[string]any{"scheme": m.Scheme, "path": m.Path})
	}
	out := make([]rollout.ResponseItem, 0, 1+len(injection.SkillMessages))
	out = append(out, injection.SkillMessages...)
	out = append(out, msg)
	return out
}

func (o *Orchestrator) appendHistory(items ...rollout.ResponseItem) {
	o.history = append(o.history, items...)
	if o.rollout == nil {
		return
	}
	for _, it := range items {
		itCopy := it
		_ = o.rollout.Append(rollout.Item{Type: rollout.TypeResponseItem, ResponseItem: &itCopy})
	}
}

func (o *Orchestrator) emit(kind string, payload any) {
	if o.ui == nil {
		return
	}
	msg := rollout.EventMsg{Kind: kind}
	if payload != nil {
		if raw, err := marshalPayload(payload); err == nil {
			msg.Payload = raw
		}
	}
	o.ui.Emit(context.Background(), msg)
	if o.rollout != nil {
		_ = o.rollout.Append(rollout.Item{Type: rollout.TypeEventMsg, EventMsg: &msg})
	}
}

func toTransportTools(tools []promptassembler.ToolSpec) []transport.ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	out := make([]transport.ToolSpec, len(tools))
	for i, t := range tools {
		out[i] = transport.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Schema}
	}
	return out
}

// Package collab declares the collaborator contracts the turn orchestrator
// consumes but does not implement, per spec.md §4.L and §1 "Deliberately
// out of scope": sandbox execution, TUI rendering, telemetry, and
// credential storage are external to this core.
package collab

import (
	"context"
	"time"

	"github.com/turnkit/agentcore/internal/patch"
	"github.com/turnkit/agentcore/internal/rollout"
	"github.com/turnkit/agentcore/internal/unifiedexec"
)

// SandboxDenial describes why a sandboxed command was refused.
type SandboxDenial struct {
	Reason string
}

func (d *SandboxDenial) Error() string { return "sandbox denied: " + d.Reason }

// ExecOutcome is the result of a sandbox-mediated execution.
type ExecOutcome struct {
	Output   []byte
	ExitCode int
	Duration time.Duration
}

// Sandbox executes a unified-exec spawn request under whatever isolation
// policy the embedder configures. The core only consumes this contract; it
// never implements sandboxing itself (spec.md §1 Non-goals).
type Sandbox interface {
	Execute(ctx context.Context, env unifiedexec.Env) (ExecOutcome, error)
}

// ApprovalDecision is the human's answer to an ApprovalRequest.
type ApprovalDecision string

const (
	DecisionApproved                    ApprovalDecision = "approved"
	DecisionApprovedForSession          ApprovalDecision = "approved_for_session"
	DecisionApprovedExecpolicyAmendment ApprovalDecision = "approved_execpolicy_amendment"
	DecisionAbort                       ApprovalDecision = "abort"
)

// ApprovalRequestKind discriminates ApprovalRequest's tagged union.
type ApprovalRequestKind string

const (
	ApprovalExec            ApprovalRequestKind = "exec"
	ApprovalApplyPatch       ApprovalRequestKind = "apply_patch"
	ApprovalMcpElicitation  ApprovalRequestKind = "mcp_elicitation"
)

// ApprovalRequest is sent to the UI when a tool call requires approval
// before running, per spec.md §4.J "Approval protocol".
type ApprovalRequest struct {
	Kind ApprovalRequestKind

	// ApprovalExec
	Env unifiedexec.Env

	// ApprovalApplyPatch
	Patch patch.Action

	// ApprovalMcpElicitation
	ElicitationPrompt string

	CallID string
}

// ApprovalResponse is the decision the UI sends back for one ApprovalRequest.
type ApprovalResponse struct {
	CallID       string
	Decision     ApprovalDecision
	PolicyPrefix []string // set only for DecisionApprovedExecpolicyAmendment
}

// UI receives EventMsgs and produces Ops; it owns composer state,
// approvals, and cancellation. The core never renders; it only emits
// events and waits on the channels this interface exposes.
type UI interface {
	// Emit delivers one UI-observable event (spec.md §3 EventMsg).
	Emit(ctx context.Context, event rollout.EventMsg)
	// RequestApproval suspends the calling turn until the user answers.
	RequestApproval(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error)
}

// Telemetry records request/response metrics for the model transport and
// turn orchestrator, per spec.md §4.L.
type Telemetry interface {
	RecordAPIRequest(attempt int, status int, err error, duration time.Duration)
	LogSSEEvent(ok bool, duration time.Duration)
	SSEEventCompleted(inputTokens, outputTokens, cachedTokens, reasoningTokens, totalTokens int64)
}

// Auth resolves credentials and refresh attempts for the model transport,
// mirroring transport.AuthRecovery's shape at the collaborator-contract
// level (spec.md §4.L "Auth").
type Auth interface {
	HasNext() bool
	Next(ctx context.Context) error
}

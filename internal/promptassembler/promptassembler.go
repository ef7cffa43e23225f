// Package promptassembler builds the per-turn model request so its prefix —
// permissions, user instructions, environment context — stays byte-for-byte
// stable across turns whenever its inputs haven't changed, maximizing
// server-side prompt-cache hits (spec.md §4.I).
package promptassembler

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/turnkit/agentcore/internal/rollout"
)

// TurnContext carries the per-turn policy and environment values that
// decide whether the cacheable prefix needs to be re-emitted.
type TurnContext struct {
	ConversationID   string
	Cwd              string
	Shell            string
	ApprovalPolicy   string
	SandboxPolicy    string
	ModelSlug        string
	ReasoningEffort  string
	ReasoningSummary string
}

// ToolSpec identifies one callable tool by name; duplicates within a
// Prompt.Tools slice are forbidden per spec.md §3.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Prompt is the request body's input sequence plus its ancillary fields,
// per spec.md §3 "Prompt".
type Prompt struct {
	Input                    []rollout.ResponseItem
	Tools                    []ToolSpec
	ParallelToolCalls        bool
	BaseInstructionsOverride string
	OutputSchema             json.RawMessage
	PromptCacheKey           string
}

// applyPatchInstructionsBlock is appended to base instructions when the
// apply_patch freeform tool is present and the model family needs special
// guidance for it (spec.md §4.I).
const applyPatchInstructionsBlock = `

To edit files, emit an apply_patch call whose body is a patch envelope:
*** Begin Patch
*** Add File: <path> | *** Delete File: <path> | *** Update File: <path>
...
*** End Patch
`

// sessionState tracks what has already been emitted for one conversation so
// repeated identical turn contexts don't re-expand the prefix.
type sessionState struct {
	permissionsEmitted  bool
	lastApprovalPolicy  string
	lastSandboxPolicy   string
	instructionsEmitted bool
	envEmitted          bool
	lastCwd             string
	lastShell           string
}

// Assembler builds prompts for one running process, tracking per-
// conversation emission state so OverrideTurnContext / UserTurn calls with
// unchanged fields don't expand the cached prefix (spec.md §8 Idempotence).
type Assembler struct {
	mu                          sync.Mutex
	userInstructions            string
	baseInstructions            string
	needsApplyPatchInstructions bool
	sessions                    map[string]*sessionState
}

// New creates an Assembler. userInstructions comes from configuration and is
// emitted once per session; baseInstructions is the model's default system
// prompt; needsApplyPatchInstructions should be true for model families
// that require the extra apply-patch guidance block.
func New(userInstructions, baseInstructions string, needsApplyPatchInstructions bool) *Assembler {
	return &Assembler{
		userInstructions:            userInstructions,
		baseInstructions:            baseInstructions,
		needsApplyPatchInstructions: needsApplyPatchInstructions,
		sessions:                    make(map[string]*sessionState),
	}
}

func (a *Assembler) stateFor(conversationID string) *sessionState {
	st, ok := a.sessions[conversationID]
	if !ok {
		st = &sessionState{}
		a.sessions[conversationID] = st
	}
	return st
}

// Assemble builds the input sequence for one turn: the cacheable prefix
// (permissions, instructions, environment context — each re-emitted only
// when its inputs changed), followed by history, followed by the current
// turn's user input.
func (a *Assembler) Assemble(tc TurnContext, history []rollout.ResponseItem, turnInput []rollout.ResponseItem, tools []ToolSpec, parallelToolCalls bool) (Prompt, error) {
	if err := validateTools(tools); err != nil {
		return Prompt{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	st := a.stateFor(tc.ConversationID)

	var prefix []rollout.ResponseItem

	if !st.permissionsEmitted || st.lastApprovalPolicy != tc.ApprovalPolicy || st.lastSandboxPolicy != tc.SandboxPolicy {
		prefix = append(prefix, permissionsMessage(tc))
		st.permissionsEmitted = true
		st.lastApprovalPolicy = tc.ApprovalPolicy
		st.lastSandboxPolicy = tc.SandboxPolicy
	}

	if !st.instructionsEmitted && a.userInstructions != "" {
		prefix = append(prefix, instructionsMessage(a.userInstructions))
		st.instructionsEmitted = true
	}

	if !st.envEmitted || st.lastCwd != tc.Cwd || st.lastShell != tc.Shell {
		prefix = append(prefix, environmentContextMessage(tc))
		st.envEmitted = true
		st.lastCwd = tc.Cwd
		st.lastShell = tc.Shell
	}

	input := make([]rollout.ResponseItem, 0, len(prefix)+len(history)+len(turnInput))
	input = append(input, prefix...)
	input = append(input, history...)
	input = append(input, turnInput...)

	base := a.baseInstructions
	if a.needsApplyPatchInstructions && hasTool(tools, "apply_patch") {
		base += applyPatchInstructionsBlock
	}

	return Prompt{
		Input:                    input,
		Tools:                    tools,
		ParallelToolCalls:        parallelToolCalls,
		BaseInstructionsOverride: base,
		PromptCacheKey:           tc.ConversationID,
	}, nil
}

func validateTools(tools []ToolSpec) error {
	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if seen[t.Name] {
			return fmt.Errorf("promptassembler: duplicate tool name %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

func hasTool(tools []ToolSpec, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func permissionsMessage(tc TurnContext) rollout.ResponseItem {
	return rollout.ResponseItem{
		Kind:    rollout.ResponseItemMessage,
		Role:    "developer",
		Content: fmt.Sprintf("approval_policy=%s sandbox_policy=%s", tc.ApprovalPolicy, tc.SandboxPolicy),
	}
}

func instructionsMessage(userInstructions string) rollout.ResponseItem {
	return rollout.ResponseItem{
		Kind:    rollout.ResponseItemMessage,
		Role:    "user",
		Content: userInstructions,
	}
}

func environmentContextMessage(tc TurnContext) rollout.ResponseItem {
	return rollout.ResponseItem{
		Kind:    rollout.ResponseItemMessage,
		Role:    "user",
		Content: fmt.Sprintf("<environment_context><cwd>%s</cwd><shell>%s</shell></environment_context>", tc.Cwd, tc.Shell),
	}
}

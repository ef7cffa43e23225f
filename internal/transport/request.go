package transport

import (
	"encoding/json"

	"github.com/turnkit/agentcore/internal/rollout"
)

// ToolSpec is the wire shape of one callable tool, mirroring
// promptassembler.ToolSpec (kept decoupled to avoid an import cycle between
// the two leaf packages).
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Reasoning configures a request's reasoning effort/summary verbosity.
type Reasoning struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Request is the Responses-API request body, per spec.md §4.H step 1.
type Request struct {
	Model             string                  `json:"model"`
	Input             []rollout.ResponseItem  `json:"input"`
	Instructions      string                  `json:"instructions,omitempty"`
	Tools             []ToolSpec              `json:"tools,omitempty"`
	ToolChoice        string                  `json:"tool_choice,omitempty"`
	ParallelToolCalls bool                    `json:"parallel_tool_calls"`
	Reasoning         *Reasoning              `json:"reasoning,omitempty"`
	Store             bool                    `json:"store"`
	Stream            bool                    `json:"stream"`
	Include           []string                `json:"include,omitempty"`
	PromptCacheKey    string                  `json:"prompt_cache_key,omitempty"`
	Text              json.RawMessage         `json:"text,omitempty"`
	OutputSchema      json.RawMessage         `json:"output_schema,omitempty"`
}

// defaultToolChoice is always "auto" per spec.md §4.H step 1.
const defaultToolChoice = "auto"

// NewRequest builds the streamed Responses request body for one turn.
func NewRequest(model string, input []rollout.ResponseItem, instructions string, tools []ToolSpec, parallelToolCalls bool, promptCacheKey string) Request {
	return Request{
		Model:             model,
		Input:             input,
		Instructions:      instructions,
		Tools:             tools,
		ToolChoice:        defaultToolChoice,
		ParallelToolCalls: parallelToolCalls,
		Store:             true,
		Stream:            true,
		PromptCacheKey:    promptCacheKey,
	}
}

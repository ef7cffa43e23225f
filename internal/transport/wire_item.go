package transport

import (
	"encoding/json"

	"github.com/turnkit/agentcore/internal/rollout"
)

// responseItemWire is the on-the-wire shape of a model response item
// carried inside an EventOutputItemDone frame; it mirrors
// rollout.ResponseItem's fields so the transport package doesn't need to
// depend on rollout's JSON tagging beyond this one conversion point.
type responseItemWire struct {
	Kind    string          `json:"kind"`
	Role    string          `json:"role,omitempty"`
	Content string          `json:"content,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Output  string          `json:"output,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
	Summary string          `json:"summary,omitempty"`
}

func (w responseItemWire) toRollout() rollout.ResponseItem {
	return rollout.ResponseItem{
		Kind:    rollout.ResponseItemKind(w.Kind),
		Role:    w.Role,
		Content: w.Content,
		CallID:  w.CallID,
		Name:    w.Name,
		Args:    w.Args,
		Output:  w.Output,
		IsError: w.IsError,
		Summary: w.Summary,
	}
}

func fromRollout(item rollout.ResponseItem) responseItemWire {
	return responseItemWire{
		Kind:    string(item.Kind),
		Role:    item.Role,
		Content: item.Content,
		CallID:  item.CallID,
		Name:    item.Name,
		Args:    item.Args,
		Output:  item.Output,
		IsError: item.IsError,
		Summary: item.Summary,
	}
}

package promptassembler

import (
	"fmt"

	"github.com/turnkit/agentcore/internal/rollout"
)

// ReserializeToolOutputs prefixes prior function-call outputs whose Name is
// "shell", "apply_patch" or "local_shell" with an "Output:" header line,
// only when the apply_patch freeform tool is present in the current turn's
// tool list; otherwise items are returned unchanged. It adds no "Exit code"
// or "Wall time" lines, and outputs with any other Name (or none) are left
// as they are.
func ReserializeToolOutputs(items []rollout.ResponseItem, tools []ToolSpec) []rollout.ResponseItem {
	if !hasTool(tools, "apply_patch") {
		return items
	}

	out := make([]rollout.ResponseItem, len(items))
	copy(out, items)
	for i, it := range out {
		if it.Kind != rollout.ResponseItemFunctionOutput {
			continue
		}
		if it.Name != "shell" && it.Name != "apply_patch" && it.Name != "local_shell" {
			continue
		}
		out[i].Output = fmt.Sprintf("Output:\n%s", it.Output)
	}
	return out
}

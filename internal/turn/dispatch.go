package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/turnkit/agentcore/internal/approval"
	"github.com/turnkit/agentcore/internal/collab"
	"github.com/turnkit/agentcore/internal/mcp"
	"github.com/turnkit/agentcore/internal/patch"
	"github.com/turnkit/agentcore/internal/promptassembler"
	"github.com/turnkit/agentcore/internal/rollout"
	"github.com/turnkit/agentcore/internal/truncate"
	"github.com/turnkit/agentcore/internal/unifiedexec"
)

const (
	toolShellCommand = "shell_command"
	toolApplyPatch   = "apply_patch"
	toolViewImage    = "view_image"
)

// dispatchCalls executes every pending function call from one stream
// round, per spec.md §4.J step 3, truncating each output per step 4 and
// returning the function_call_output items to fold into history.
func (o *Orchestrator) dispatchCalls(ctx context.Context, tc promptassembler.TurnContext, calls []rollout.ResponseItem) ([]rollout.ResponseItem, error) {
	outputs := make([]rollout.ResponseItem, 0, len(calls))
	for _, call := range calls {
		output, aborted, err := o.dispatchOne(ctx, tc, call)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, output)
		if aborted {
			return outputs, ErrAborted
		}
	}
	return outputs, nil
}

func (o *Orchestrator) dispatchOne(ctx context.Context, tc promptassembler.TurnContext, call rollout.ResponseItem) (rollout.ResponseItem, bool, error) {
	switch {
	case call.Name == toolShellCommand:
		return o.dispatchShell(ctx, tc, call)
	case call.Name == toolApplyPatch:
		return o.dispatchApplyPatch(ctx, tc, call)
	case call.Name == toolViewImage:
		return o.dispatchViewImage(call)
	case mcp.IsMCPCall(call.Name):
		return o.dispatchMCP(ctx, call)
	default:
		return functionOutput(call.CallID, fmt.Sprintf("unknown tool %q", call.Name), true), false, nil
	}
}

type shellArgs struct {
	Command     []string          `json:"command"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	TTY         bool              `json:"tty,omitempty"`
	YieldTimeMs int               `json:"yield_time_ms,omitempty"`
}

// dispatchShell runs a shell_command call through §4.G, gating on approval
// per the turn's policy, per spec.md §4.J step 3.
func (o *Orchestrator) dispatchShell(ctx context.Context, tc promptassembler.TurnContext, call rollout.ResponseItem) (rollout.ResponseItem, bool, error) {
	var args shellArgs
	if err := json.Unmarshal(call.Args, &args); err != nil || len(args.Command) == 0 {
		return functionOutput(call.CallID, "invalid shell_command arguments", true), false, nil
	}

	env := unifiedexec.Env{
		Command: args.Command[0],
		Args:    args.Command[1:],
		Cwd:     firstNonEmpty(args.Cwd, tc.Cwd),
		Env:     args.Env,
		TTY:     args.TTY,
	}

	key := approvalKey(args.Command)
	decision, aborted, err := o.requestApproval(ctx, tc.ApprovalPolicy, key, collab.ApprovalRequest{
		Kind:   collab.ApprovalExec,
		Env:    env,
		CallID: call.CallID,
	})
	if err != nil {
		return rollout.ResponseItem{}, false, err
	}
	if aborted {
		return functionOutput(call.CallID, "exec rejected by approval", true), true, nil
	}
	_ = decision

	yieldMs := args.YieldTimeMs
	if yieldMs <= 0 {
		yieldMs = 1000
	}
	start := time.Now()
	result, err := o.exec.ExecCommand(ctx, env, call.CallID, yieldMs)
	if err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("exec error: %v", err), true), false, nil
	}

	exitCode := result.ExitCode
	output := result.Output
	if !result.HasExited {
		code, werr := o.exec.WatchExit(ctx, result.ProcessID)
		if werr != nil {
			return functionOutput(call.CallID, fmt.Sprintf("exec error: %v", werr), true), false, nil
		}
		exitCode = code
		more, _, _, _ := o.exec.CollectOutput(ctx, result.ProcessID, time.Now())
		output = append(output, more...)
		o.emit("exec_command_end", map[string]any{"call_id": call.CallID, "exit_code": exitCode})
	}
	if result.Warning != "" {
		o.emit("exec_warning", map[string]any{"message": result.Warning})
	}

	totalLines := lineCount(output)
	rendered := truncate.ShellOutput(exitCode, time.Since(start).Seconds(), totalLines, string(output), o.cfg.TruncatePolicy)
	return functionOutput(call.CallID, rendered, exitCode != 0), false, nil
}

// osFileReader implements patch.FileReader against the local filesystem.
type osFileReader struct{}

func (osFileReader) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type applyPatchArgs struct {
	Input string `json:"input"`
}

// dispatchApplyPatch parses and approves an apply_patch call, per spec.md
// §4.A and §4.J step 3.
func (o *Orchestrator) dispatchApplyPatch(ctx context.Context, tc promptassembler.TurnContext, call rollout.ResponseItem) (rollout.ResponseItem, bool, error) {
	var args applyPatchArgs
	if err := json.Unmarshal(call.Args, &args); err != nil {
		return functionOutput(call.CallID, "invalid apply_patch arguments", true), false, nil
	}

	action, err := patch.Apply(args.Input, tc.Cwd, osFileReader{})
	if err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("patch parse error: %v", err), true), false, nil
	}

	decision, aborted, err := o.requestApproval(ctx, tc.ApprovalPolicy, args.Input, collab.ApprovalRequest{
		Kind:   collab.ApprovalApplyPatch,
		Patch:  *action,
		CallID: call.CallID,
	})
	if err != nil {
		return rollout.ResponseItem{}, false, err
	}
	if aborted {
		return functionOutput(call.CallID, "patch rejected by approval", true), true, nil
	}
	_ = decision

	if err := applyFileChanges(action); err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("patch apply error: %v", err), true), false, nil
	}

	summary := fmt.Sprintf("applied patch: %d file(s) changed", len(action.Order))
	return functionOutput(call.CallID, truncate.Truncate(summary, o.cfg.TruncatePolicy), false), false, nil
}

func applyFileChanges(action *patch.Action) error {
	for _, path := range action.Order {
		change := action.Changes[path]
		switch change.Kind {
		case patch.KindAdd:
			if err := os.WriteFile(path, []byte(change.Content), 0o644); err != nil {
				return err
			}
		case patch.KindDelete:
			if err := os.Remove(path); err != nil {
				return err
			}
		case patch.KindUpdate:
			target := path
			if change.MovePath != "" {
				target = change.MovePath
			}
			if err := os.WriteFile(target, []byte(change.NewContent), 0o644); err != nil {
				return err
			}
			if change.MovePath != "" && change.MovePath != path {
				if err := os.Remove(path); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type viewImageArgs struct {
	Path string `json:"path"`
}

// dispatchViewImage reads a local image when the model declares image-input
// support and returns its base64 data URL as the text of the function
// output; no separate input_image content item is built. Without that
// support it returns a placeholder text message.
func (o *Orchestrator) dispatchViewImage(call rollout.ResponseItem) (rollout.ResponseItem, bool, error) {
	var args viewImageArgs
	if err := json.Unmarshal(call.Args, &args); err != nil || args.Path == "" {
		return functionOutput(call.CallID, "invalid view_image arguments", true), false, nil
	}

	if !o.cfg.SupportsImageInput {
		return functionOutput(call.CallID, fmt.Sprintf("[image attached: %s — this model does not accept image input]", args.Path), false), false, nil
	}

	img, err := approval.InjectLocalImage(args.Path)
	if err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("failed to read image: %v", err), true), false, nil
	}
	return functionOutput(call.CallID, img.DataURL, false), false, nil
}

// dispatchMCP routes an "mcp__<server>__<tool>" call through the MCP
// client dispatch table, per spec.md §4.F/§4.J. The timeout is
// Config.MCPTimeout, one value shared by every server (none when zero).
func (o *Orchestrator) dispatchMCP(ctx context.Context, call rollout.ResponseItem) (rollout.ResponseItem, bool, error) {
	if o.mcp == nil {
		return functionOutput(call.CallID, "MCP is not configured", true), false, nil
	}

	var args map[string]any
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return functionOutput(call.CallID, "invalid MCP tool arguments", true), false, nil
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.MCPTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.MCPTimeout)
		defer cancel()
	}

	result, err := o.mcp.Call(callCtx, call.Name, args)
	if err != nil {
		return functionOutput(call.CallID, fmt.Sprintf("mcp error: %v", err), true), false, nil
	}
	return functionOutput(call.CallID, truncate.Truncate(result.Content, o.cfg.TruncatePolicy), result.IsError), false, nil
}

func functionOutput(callID, output string, isError bool) rollout.ResponseItem {
	return rollout.ResponseItem{
		Kind:    rollout.ResponseItemFunctionOutput,
		CallID:  callID,
		Output:  output,
		IsError: isError,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func lineCount(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := 1
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func approvalKey(command []string) string {
	key := ""
	for i, c := range command {
		if i > 0 {
			key += " "
		}
		key += c
	}
	return key
}

package turn

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/turnkit/agentcore/internal/mcp"
	"github.com/turnkit/agentcore/internal/promptassembler"
	"github.com/turnkit/agentcore/internal/rollout"
)

func TestDispatchApplyPatchWritesFile(t *testing.T) {
	dir := t.TempDir()
	envelope := "*** Begin Patch\n*** Add File: note.txt\n+hello world\n*** End Patch"
	args, _ := json.Marshal(applyPatchArgs{Input: envelope})

	o := newTestOrchestrator(&scriptedStreamer{}, &fakeUI{})
	tc := promptassembler.TurnContext{Cwd: dir, ApprovalPolicy: "never"}

	out, aborted, err := o.dispatchApplyPatch(context.Background(), tc, rollout.ResponseItem{CallID: "c1", Args: args})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aborted {
		t.Fatal("did not expect abort under never-approval policy")
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Output)
	}

	data, rerr := os.ReadFile(filepath.Join(dir, "note.txt"))
	if rerr != nil {
		t.Fatalf("expected note.txt to be written: %v", rerr)
	}
	if string(data) != "hello world\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestDispatchViewImageWithoutImageSupportReturnsPlaceholder(t *testing.T) {
	o := newTestOrchestrator(&scriptedStreamer{}, &fakeUI{})
	o.cfg.SupportsImageInput = false

	args, _ := json.Marshal(viewImageArgs{Path: "/tmp/does-not-matter.png"})
	out, aborted, err := o.dispatchViewImage(rollout.ResponseItem{CallID: "c1", Args: args})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aborted {
		t.Fatal("view_image never aborts")
	}
	if out.IsError {
		t.Fatalf("placeholder path should not be an error: %s", out.Output)
	}
	if out.Output == "" {
		t.Fatal("expected a placeholder message")
	}
}

func TestDispatchMCPUnknownToolReturnsError(t *testing.T) {
	mgr := mcp.NewManager(&mcp.Config{Enabled: true}, nil)
	dispatch := mcp.NewDispatch(mgr)

	o := newTestOrchestrator(&scriptedStreamer{}, &fakeUI{})
	o.mcp = dispatch

	out, aborted, err := o.dispatchMCP(context.Background(), rollout.ResponseItem{CallID: "c1", Name: "mcp__server__tool"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aborted {
		t.Fatal("mcp dispatch never aborts")
	}
	if !out.IsError {
		t.Fatal("expected an error output for an unregistered tool")
	}
}

func TestDispatchOneRoutesByName(t *testing.T) {
	o := newTestOrchestrator(&scriptedStreamer{}, &fakeUI{})
	tc := promptassembler.TurnContext{ApprovalPolicy: "never"}

	out, _, err := o.dispatchOne(context.Background(), tc, rollout.ResponseItem{CallID: "c1", Name: "totally_unknown_tool"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected an error output for an unknown tool name")
	}
}

package promptassembler

import (
	"reflect"
	"testing"

	"github.com/turnkit/agentcore/internal/rollout"
)

func baseTC() TurnContext {
	return TurnContext{
		ConversationID: "conv-1",
		Cwd:            "/repo",
		Shell:          "/bin/bash",
		ApprovalPolicy: "on-request",
		SandboxPolicy:  "workspace-write",
	}
}

func TestAssemblePrefixStability(t *testing.T) {
	a := New("be helpful", "base instructions", false)

	p1, err := a.Assemble(baseTC(), nil, []rollout.ResponseItem{{Kind: rollout.ResponseItemMessage, Role: "user", Content: "turn one"}}, nil, true)
	if err != nil {
		t.Fatalf("assemble 1: %v", err)
	}

	history := p1.Input // the whole turn-one input, including its user message, becomes next turn's history
	p2, err := a.Assemble(baseTC(), history, []rollout.ResponseItem{{Kind: rollout.ResponseItemMessage, Role: "user", Content: "turn two"}}, nil, true)
	if err != nil {
		t.Fatalf("assemble 2: %v", err)
	}

	if len(p2.Input) < len(p1.Input) {
		t.Fatalf("p2 shorter than p1")
	}
	for i := range p1.Input {
		if !reflect.DeepEqual(p1.Input[i], p2.Input[i]) {
			t.Fatalf("prefix diverged at index %d: %+v vs %+v", i, p1.Input[i], p2.Input[i])
		}
	}
}

func TestAssembleReEmitsOnPolicyChange(t *testing.T) {
	a := New("", "base", false)
	tc := baseTC()

	p1, err := a.Assemble(tc, nil, nil, nil, true)
	if err != nil {
		t.Fatalf("assemble 1: %v", err)
	}
	n1 := len(p1.Input)

	tc2 := tc
	tc2.ApprovalPolicy = "never"
	p2, err := a.Assemble(tc2, p1.Input, nil, nil, true)
	if err != nil {
		t.Fatalf("assemble 2: %v", err)
	}
	if len(p2.Input) != n1+1 {
		t.Fatalf("expected exactly one new permissions message, got %d extra items", len(p2.Input)-n1)
	}
}

func TestAssembleDuplicateToolNameRejected(t *testing.T) {
	a := New("", "base", false)
	tools := []ToolSpec{{Name: "shell"}, {Name: "shell"}}
	if _, err := a.Assemble(baseTC(), nil, nil, tools, true); err == nil {
		t.Fatalf("expected error for duplicate tool name")
	}
}

func TestPromptCacheKeyIsConversationID(t *testing.T) {
	a := New("", "base", false)
	p, err := a.Assemble(baseTC(), nil, nil, nil, true)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if p.PromptCacheKey != "conv-1" {
		t.Fatalf("got cache key %q, want conv-1", p.PromptCacheKey)
	}
}

func TestIdenticalOverrideDoesNotExpandPrefix(t *testing.T) {
	a := New("", "base", false)
	tc := baseTC()

	p1, err := a.Assemble(tc, nil, nil, nil, true)
	if err != nil {
		t.Fatalf("assemble 1: %v", err)
	}
	p2, err := a.Assemble(tc, p1.Input, nil, nil, true)
	if err != nil {
		t.Fatalf("assemble 2: %v", err)
	}
	if len(p2.Input) != len(p1.Input) {
		t.Fatalf("identical override context should not expand prefix: %d vs %d", len(p2.Input), len(p1.Input))
	}
}

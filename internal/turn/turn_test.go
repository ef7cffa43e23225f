package turn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/turnkit/agentcore/internal/backoff"
	"github.com/turnkit/agentcore/internal/collab"
	"github.com/turnkit/agentcore/internal/promptassembler"
	"github.com/turnkit/agentcore/internal/rollout"
	"github.com/turnkit/agentcore/internal/transport"
	"github.com/turnkit/agentcore/internal/truncate"
	"github.com/turnkit/agentcore/internal/unifiedexec"
)

type scriptedStreamer struct {
	rounds [][]transport.ResponseEvent
	err    error
	calls  int
}

func (s *scriptedStreamer) Stream(ctx context.Context, req transport.Request, turnState *transport.TurnState) (<-chan transport.ResponseEvent, <-chan error) {
	events := make(chan transport.ResponseEvent, 16)
	errs := make(chan error, 1)

	round := s.calls
	s.calls++

	go func() {
		defer close(events)
		defer close(errs)
		if round < len(s.rounds) {
			for _, ev := range s.rounds[round] {
				events <- ev
			}
		}
		if s.err != nil && round == len(s.rounds)-1 {
			errs <- s.err
		}
	}()
	return events, errs
}

type fakeUI struct {
	events    []rollout.EventMsg
	responses []collab.ApprovalResponse
	calls     int
}

func (f *fakeUI) Emit(ctx context.Context, event rollout.EventMsg) {
	f.events = append(f.events, event)
}

func (f *fakeUI) RequestApproval(ctx context.Context, req collab.ApprovalRequest) (collab.ApprovalResponse, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return collab.ApprovalResponse{CallID: req.CallID, Decision: collab.DecisionApproved}, nil
}

func newTestOrchestrator(streamer Streamer, ui collab.UI) *Orchestrator {
	assembler := promptassembler.New("", "", false)
	cfg := Config{
		Model:          "test-model",
		ConversationID: "conv-1",
		Cwd:            "/tmp",
		ApprovalPolicy: "never",
		MaxRetries:     2,
		RetryPolicy:    backoff.BackoffPolicy{InitialMs: 1, MaxMs: 5, Factor: 2, Jitter: 0},
		TruncatePolicy: truncate.Tokens(4096),
	}
	return New(cfg, assembler, streamer, unifiedexec.NewManager(1), nil, ui, nil, nil, nil)
}

func TestRunTurnCompletesWithoutToolCalls(t *testing.T) {
	streamer := &scriptedStreamer{
		rounds: [][]transport.ResponseEvent{
			{
				{Kind: transport.EventOutputTextDelta, Text: "hi"},
				{Kind: transport.EventOutputItemDone, Item: rollout.ResponseItem{Kind: rollout.ResponseItemMessage, Role: "assistant", Content: "hi"}},
				{Kind: transport.EventCompleted},
			},
		},
	}
	ui := &fakeUI{}
	o := newTestOrchestrator(streamer, ui)

	if err := o.RunTurn(context.Background(), "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(o.history) != 2 {
		t.Fatalf("expected 2 history items (user + assistant), got %d", len(o.history))
	}
	found := false
	for _, ev := range ui.events {
		if ev.Kind == "turn_complete" {
			found = true
		}
	}
	if !found {
		t.Error("expected a turn_complete event to be emitted")
	}
}

func TestRunTurnDispatchesShellCommandAndLoops(t *testing.T) {
	args, _ := json.Marshal(shellArgs{Command: []string{"echo", "hello"}})
	streamer := &scriptedStreamer{
		rounds: [][]transport.ResponseEvent{
			{
				{Kind: transport.EventOutputItemDone, Item: rollout.ResponseItem{
					Kind: rollout.ResponseItemFunctionCall, Name: toolShellCommand, CallID: "call-1", Args: args,
				}},
				{Kind: transport.EventCompleted},
			},
			{
				{Kind: transport.EventOutputItemDone, Item: rollout.ResponseItem{Kind: rollout.ResponseItemMessage, Role: "assistant", Content: "done"}},
				{Kind: transport.EventCompleted},
			},
		},
	}
	ui := &fakeUI{}
	o := newTestOrchestrator(streamer, ui)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.RunTurn(ctx, "run echo", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawOutput bool
	for _, item := range o.history {
		if item.Kind == rollout.ResponseItemFunctionOutput && item.CallID == "call-1" {
			sawOutput = true
			if item.IsError {
				t.Errorf("expected success output, got error: %s", item.Output)
			}
		}
	}
	if !sawOutput {
		t.Fatal("expected a function_call_output for call-1 in history")
	}
	if streamer.calls != 2 {
		t.Fatalf("expected the turn to loop back for a second stream round, got %d rounds", streamer.calls)
	}
}

func TestRunTurnAbortsOnDenialAndStopsLoop(t *testing.T) {
	args, _ := json.Marshal(shellArgs{Command: []string{"echo", "hello"}})
	streamer := &scriptedStreamer{
		rounds: [][]transport.ResponseEvent{
			{
				{Kind: transport.EventOutputItemDone, Item: rollout.ResponseItem{
					Kind: rollout.ResponseItemFunctionCall, Name: toolShellCommand, CallID: "call-1", Args: args,
				}},
				{Kind: transport.EventCompleted},
			},
		},
	}
	ui := &fakeUI{responses: []collab.ApprovalResponse{{Decision: collab.DecisionAbort}}}
	o := newTestOrchestrator(streamer, ui)
	o.cfg.ApprovalPolicy = "untrusted"

	err := o.RunTurn(context.Background(), "run echo", nil)
	if err != ErrAborted {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if streamer.calls != 1 {
		t.Fatalf("expected the loop to stop after the aborted round, got %d rounds", streamer.calls)
	}
}

func TestIsRetriableExcludes401(t *testing.T) {
	if isRetriable(&transport.HTTPError{StatusCode: 401}) {
		t.Error("expected 401 to be non-retriable at this layer")
	}
	if !isRetriable(&transport.HTTPError{StatusCode: 500}) {
		t.Error("expected 500 to be retriable")
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func newTestClient(transport Transport) *Client {
	return &Client{
		config:       &ServerConfig{ID: "server"},
		transport:    transport,
		logger:       slog.Default(),
		pending:      make(map[int64]*pendingCall),
		dispatchDone: make(chan struct{}),
	}
}

func TestSendRequestResolvesOnMatchingResponse(t *testing.T) {
	transport := newFakeTransport()
	transport.connected = true
	client := newTestClient(transport)
	go client.dispatchLoop()
	defer transport.Close()

	resultCh := make(chan pendingResult, 1)
	go func() {
		result, err := client.sendRequest(context.Background(), "tools/list", nil, nil)
		resultCh <- pendingResult{result: result, err: err}
	}()

	var sent JSONRPCRequest
	select {
	case frame := <-transport.sent:
		if err := json.Unmarshal(frame, &sent); err != nil {
			t.Fatalf("failed to parse sent frame: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request to be sent")
	}

	reply, _ := json.Marshal(JSONRPCResponse{JSONRPC: "2.0", ID: sent.ID, Result: json.RawMessage(`{"tools":[]}`)})
	transport.frames <- reply

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
		if string(res.result) != `{"tools":[]}` {
			t.Fatalf("unexpected result: %s", res.result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sendRequest to resolve")
	}
}

func TestSendRequestTimesOutAndRemovesPending(t *testing.T) {
	transport := newFakeTransport()
	transport.connected = true
	client := newTestClient(transport)
	go client.dispatchLoop()
	defer transport.Close()

	timeout := 20 * time.Millisecond
	_, err := client.sendRequest(context.Background(), "tools/list", nil, &timeout)
	if err == nil {
		t.Fatal("expected timeout error")
	}

	client.pendingMu.Lock()
	n := len(client.pending)
	client.pendingMu.Unlock()
	if n != 0 {
		t.Fatalf("expected pending map to be empty after timeout, got %d entries", n)
	}
}

type failingSendTransport struct {
	*fakeTransport
}

func (f *failingSendTransport) Send(ctx context.Context, frame []byte) error {
	return context.DeadlineExceeded
}

func TestSendRequestSendFailureResolvesPending(t *testing.T) {
	inner := newFakeTransport()
	inner.connected = true
	transport := &failingSendTransport{fakeTransport: inner}
	client := newTestClient(transport)

	_, err := client.sendRequest(context.Background(), "tools/list", nil, nil)
	if err == nil {
		t.Fatal("expected error when transport.Send fails")
	}

	client.pendingMu.Lock()
	n := len(client.pending)
	client.pendingMu.Unlock()
	if n != 0 {
		t.Fatalf("expected pending entry to be cleared after send failure, got %d entries", n)
	}
}

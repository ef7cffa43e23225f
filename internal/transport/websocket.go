package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/turnkit/agentcore/internal/rollout"
)

// wsRequestKind discriminates the two shapes the WS client may send, per
// spec.md §4.H "Responses WebSocket".
type wsRequestKind string

const (
	wsResponseCreate wsRequestKind = "response_create"
	wsResponseAppend wsRequestKind = "response_append"
)

type wsOutboundFrame struct {
	Type  wsRequestKind  `json:"type"`
	Input []responseItemWire `json:"input,omitempty"`
	// Full request fields, present only on response_create.
	Model             string             `json:"model,omitempty"`
	Instructions      string             `json:"instructions,omitempty"`
	Tools             []ToolSpec         `json:"tools,omitempty"`
	ToolChoice        string             `json:"tool_choice,omitempty"`
	ParallelToolCalls bool               `json:"parallel_tool_calls,omitempty"`
	PromptCacheKey    string             `json:"prompt_cache_key,omitempty"`
}

// WSConn is one persistent Responses WebSocket connection for a
// conversation, reused across turns per spec.md §4.H "Connection reuse".
type WSConn struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	closed       bool
	lastInput    []rollout.ResponseItem
	turnState    *TurnState
	url          string
	conversation string
}

// WSClient opens/reuses WSConns keyed by conversation id.
type WSClient struct {
	mu    sync.Mutex
	conns map[string]*WSConn
	URL   string
	Auth  AuthRecovery
}

// NewWSClient creates a WSClient dialing url for new connections.
func NewWSClient(url string, auth AuthRecovery) *WSClient {
	return &WSClient{conns: make(map[string]*WSConn), URL: url, Auth: auth}
}

// connFor returns a reused connection for conversationID, or dials a new
// one, per spec.md §4.H "Connection reuse": "if a prior connection exists
// and is not closed, reuse it; else open a new one".
func (c *WSClient) connFor(ctx context.Context, conversationID string, turnState *TurnState) (*WSConn, error) {
	c.mu.Lock()
	existing, ok := c.conns[conversationID]
	c.mu.Unlock()
	if ok {
		existing.mu.Lock()
		closed := existing.closed
		existing.mu.Unlock()
		if !closed {
			return existing, nil
		}
	}

	auth, _ := c.Auth.Auth()
	headers := buildConversationHeaders(conversationID)
	if turnState != nil {
		if v := turnState.Value(); v != "" {
			headers.Set("x-codex-turn-state", v)
		}
	}
	headers.Set("Authorization", "Bearer "+auth.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.URL, http.Header(headers))
	if err != nil {
		return nil, fmt.Errorf("transport: ws dial: %w", err)
	}
	if resp != nil {
		turnState.Observe(resp.Header.Get("x-codex-turn-state"))
	}

	wc := &WSConn{conn: conn, turnState: turnState, url: c.URL, conversation: conversationID}
	c.mu.Lock()
	c.conns[conversationID] = wc
	c.mu.Unlock()
	return wc, nil
}

// SendTurn sends one turn's request over the conversation's WebSocket,
// applying the incremental-append rule: if req.Input starts with the
// connection's last-sent input and is strictly longer, only the suffix is
// sent as ResponseAppend; otherwise the full input is sent as
// ResponseCreate.
func (c *WSClient) SendTurn(ctx context.Context, conversationID string, req Request, turnState *TurnState) (<-chan ResponseEvent, <-chan error) {
	events := make(chan ResponseEvent, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		wc, err := c.connFor(ctx, conversationID, turnState)
		if err != nil {
			errs <- err
			return
		}

		frame := wc.buildFrame(req)

		wc.mu.Lock()
		writeErr := wc.conn.WriteJSON(frame)
		if writeErr == nil {
			wc.lastInput = append([]rollout.ResponseItem(nil), req.Input...)
		}
		wc.mu.Unlock()
		if writeErr != nil {
			errs <- fmt.Errorf("transport: ws write: %w", writeErr)
			return
		}

		if err := wc.pump(ctx, events); err != nil {
			errs <- err
		}
	}()

	return events, errs
}

// buildFrame implements the incremental-append rule described above.
func (wc *WSConn) buildFrame(req Request) wsOutboundFrame {
	wc.mu.Lock()
	prev := wc.lastInput
	wc.mu.Unlock()

	if isStrictExtension(prev, req.Input) {
		suffix := req.Input[len(prev):]
		return wsOutboundFrame{
			Type:  wsResponseAppend,
			Input: wireItems(suffix),
		}
	}

	return wsOutboundFrame{
		Type:              wsResponseCreate,
		Input:             wireItems(req.Input),
		Model:             req.Model,
		Instructions:      req.Instructions,
		Tools:             req.Tools,
		ToolChoice:        req.ToolChoice,
		ParallelToolCalls: req.ParallelToolCalls,
		PromptCacheKey:    req.PromptCacheKey,
	}
}

// isStrictExtension reports whether next equals prev with one or more
// items appended (prev is a strict, element-wise prefix of next).
func isStrictExtension(prev, next []rollout.ResponseItem) bool {
	if len(next) <= len(prev) {
		return false
	}
	for i, item := range prev {
		if !responseItemsEqual(item, next[i]) {
			return false
		}
	}
	return true
}

func responseItemsEqual(a, b rollout.ResponseItem) bool {
	if a.Kind != b.Kind || a.Role != b.Role || a.Content != b.Content || a.CallID != b.CallID || a.Name != b.Name || a.Output != b.Output || a.IsError != b.IsError || a.Summary != b.Summary {
		return false
	}
	return string(a.Args) == string(b.Args)
}

func wireItems(items []rollout.ResponseItem) []responseItemWire {
	out := make([]responseItemWire, len(items))
	for i, it := range items {
		out[i] = fromRollout(it)
	}
	return out
}

// pump reads frames from the connection until a Completed event, a Close
// frame, or ctx cancellation, answering Ping with Pong as it goes, per
// spec.md §5 "Per WebSocket: one pump task ... inbound Ping is answered
// with Pong; Close propagates."
func (wc *WSConn) pump(ctx context.Context, events chan<- ResponseEvent) error {
	wc.conn.SetPingHandler(func(data string) error {
		return wc.conn.WriteControl(websocket.PongMessage, []byte(data), deadlineNow())
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			wc.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("transport: ws read: %w", err)
		}

		var we wireEvent
		if err := json.Unmarshal(data, &we); err != nil {
			slog.Debug("transport: skipping unparseable stream frame", "error", err)
			continue // ResponseParse: unrecognized frame logged and ignored
		}
		ev, ok := decodeWireEvent(we)
		if !ok {
			slog.Debug("transport: skipping stream event", "error", ErrUnrecognizedEvent, "type", we.Type)
			continue
		}
		if ev.Kind == EventCreated {
			// carried turn-state, if any, was already applied on dial.
		}
		events <- ev
		if ev.Kind == EventCompleted {
			return nil
		}
	}
}

func deadlineNow() time.Time {
	return time.Now().Add(5 * time.Second)
}

// Close marks the connection closed and closes the underlying socket.
func (wc *WSConn) Close() error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	if wc.closed {
		return nil
	}
	wc.closed = true
	return wc.conn.Close()
}

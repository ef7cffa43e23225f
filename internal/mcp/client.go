package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pendingCall is the oneshot the dispatch loop resolves when a response
// for its request id arrives (or the transport closes / the call times
// out).
type pendingCall struct {
	resultCh chan pendingResult
}

type pendingResult struct {
	result json.RawMessage
	err    error
}

// NotificationHandler processes a server notification asynchronously; for
// example, routing an elicitation notification to an approval queue per
// spec.md §4.F.
type NotificationHandler func(method string, params json.RawMessage)

// Client is an MCP client for a single server: one transport, one
// id_counter, and one pending-request map, per spec.md §4.F.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	idCounter  atomic.Int64
	pendingMu  sync.Mutex
	pending    map[int64]*pendingCall
	notifyFunc NotificationHandler
	samplingFn SamplingHandler

	mu         sync.RWMutex
	tools      []*MCPTool
	resources  []*MCPResource
	prompts    []*MCPPrompt
	serverInfo ServerInfo

	dispatchDone chan struct{}
}

// NewClient creates an MCP client bound to cfg; it does not connect.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:       cfg,
		transport:    NewTransport(cfg),
		logger:       logger.With("mcp_server", cfg.ID),
		pending:      make(map[int64]*pendingCall),
		dispatchDone: make(chan struct{}),
	}
}

// OnNotification registers the handler invoked for every server
// notification the dispatch loop decodes.
func (c *Client) OnNotification(h NotificationHandler) {
	c.notifyFunc = h
}

// Connect starts the transport, runs the dispatch (reader) loop, and
// performs the initialize/initialized handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	go c.dispatchLoop()

	initParams := map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": true},
		},
		"clientInfo": map[string]any{
			"name":    "agentcore",
			"version": "1.0.0",
		},
	}
	result, err := c.sendRequest(ctx, "initialize", initParams, nil)
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	c.logger.Info("connected to MCP server",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion)

	if err := c.sendNotification(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}

	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}

	return nil
}

// Close closes the transport and aborts any still-pending calls.
func (c *Client) Close() error {
	err := c.transport.Close()
	<-c.dispatchDone
	return err
}

func (c *Client) Config() *ServerConfig { return c.config }

func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *Client) Connected() bool { return c.transport.Connected() }

// sendRequest implements spec.md §4.F's send_request: register a pending
// oneshot under a fresh id, hand the frame to the transport, and wait for
// the dispatch loop to resolve it — by reply, by timeout, or because the
// transport closed. timeout == nil waits indefinitely.
func (c *Client) sendRequest(ctx context.Context, method string, params any, timeout *time.Duration) (json.RawMessage, error) {
	id := c.idCounter.Add(1)

	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	call := &pendingCall{resultCh: make(chan pendingResult, 1)}
	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	if err := c.transport.Send(ctx, frame); err != nil {
		// Failure policy (§4.F): synthesize an error reply so the
		// oneshot still resolves instead of leaking the pending entry.
		c.resolvePending(id, pendingResult{err: fmt.Errorf("send request: %w", err)})
		return nil, fmt.Errorf("send request: %w", err)
	}

	var timeoutCh <-chan time.Time
	if timeout != nil {
		timer := time.NewTimer(*timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-call.resultCh:
		return res.result, res.err
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-timeoutCh:
		c.removePending(id)
		return nil, fmt.Errorf("request timed out")
	}
}

func (c *Client) sendNotification(ctx context.Context, method string, params any) error {
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	frame, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return c.transport.Send(ctx, frame)
}

func (c *Client) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) resolvePending(id int64, res pendingResult) {
	c.pendingMu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if ok {
		call.resultCh <- res
	}
}

// dispatchLoop is the reader task: it decodes every frame the transport
// delivers and routes it as a response, a notification, or a (logged,
// unhandled) server-initiated request, per spec.md §4.F.
func (c *Client) dispatchLoop() {
	defer close(c.dispatchDone)
	for frame := range c.transport.Frames() {
		c.dispatchFrame(frame)
	}
	c.abortPending(fmt.Errorf("mcp transport closed"))
}

func (c *Client) dispatchFrame(frame []byte) {
	var envelope struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		c.logger.Warn("discarding unparseable MCP frame", "error", err)
		return
	}

	switch {
	case envelope.Method == "" && len(envelope.ID) > 0:
		c.dispatchResponse(envelope.ID, envelope.Result, envelope.Error)
	case envelope.Method != "" && len(envelope.ID) > 0:
		c.dispatchServerRequest(envelope.ID, envelope.Method, envelope.Params)
	case envelope.Method != "":
		c.logger.Debug("MCP notification", "method", envelope.Method)
		if c.notifyFunc != nil {
			c.notifyFunc(envelope.Method, envelope.Params)
		}
	default:
		c.logger.Warn("discarding unrecognized MCP frame")
	}
}

func (c *Client) dispatchResponse(rawID json.RawMessage, result json.RawMessage, rpcErr *JSONRPCError) {
	var id int64
	if err := json.Unmarshal(rawID, &id); err != nil {
		c.logger.Warn("response with non-integer id", "id", string(rawID))
		return
	}
	var err error
	if rpcErr != nil {
		err = fmt.Errorf("MCP error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	c.resolvePending(id, pendingResult{result: result, err: err})
}

// dispatchServerRequest handles a server-initiated request. Per spec.md
// §4.F these are ignored (logged) by default; the one exception this core
// wires up is sampling/createMessage, routed to an optional handler.
func (c *Client) dispatchServerRequest(rawID json.RawMessage, method string, params json.RawMessage) {
	c.logger.Debug("server-initiated MCP request", "method", method)
	if method != "sampling/createMessage" || c.samplingFn == nil {
		return
	}

	var id any
	_ = json.Unmarshal(rawID, &id)
	go c.handleSamplingRequest(id, params)
}

func (c *Client) abortPending(err error) {
	c.pendingMu.Lock()
	calls := c.pending
	c.pending = make(map[int64]*pendingCall)
	c.pendingMu.Unlock()
	for _, call := range calls {
		call.resultCh <- pendingResult{err: err}
	}
}

// RefreshCapabilities refreshes the cached tools, resources, and prompts.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	if result, err := c.sendRequest(ctx, "tools/list", nil, nil); err == nil {
		var resp ListToolsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.tools = resp.Tools
			c.mu.Unlock()
		}
	}
	if result, err := c.sendRequest(ctx, "resources/list", nil, nil); err == nil {
		var resp ListResourcesResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.resources = resp.Resources
			c.mu.Unlock()
		}
	}
	if result, err := c.sendRequest(ctx, "prompts/list", nil, nil); err == nil {
		var resp ListPromptsResult
		if json.Unmarshal(result, &resp) == nil {
			c.mu.Lock()
			c.prompts = resp.Prompts
			c.mu.Unlock()
		}
	}
	return nil
}

func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

func (c *Client) Resources() []*MCPResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

func (c *Client) Prompts() []*MCPPrompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// defaultCallTimeout bounds tool/resource/prompt calls that don't carry
// their own deadline via ctx.
const defaultCallTimeout = 30 * time.Second

func (c *Client) callTimeout() *time.Duration {
	d := c.config.Timeout
	if d == 0 {
		d = defaultCallTimeout
	}
	return &d
}

// CallTool calls a tool on the MCP server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = argsJSON
	}

	result, err := c.sendRequest(ctx, "tools/call", params, c.callTimeout())
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &callResult, nil
}

// ReadResource reads a resource from the MCP server.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.sendRequest(ctx, "resources/read", map[string]any{"uri": uri}, c.callTimeout())
	if err != nil {
		return nil, err
	}
	var readResult ReadResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return readResult.Contents, nil
}

// GetPrompt gets a prompt from the MCP server.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.sendRequest(ctx, "prompts/get", map[string]any{
		"name":      name,
		"arguments": arguments,
	}, c.callTimeout())
	if err != nil {
		return nil, err
	}
	var promptResult GetPromptResult
	if err := json.Unmarshal(result, &promptResult); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}
	return &promptResult, nil
}

// SamplingHandler handles server-initiated sampling requests.
type SamplingHandler func(ctx context.Context, req *SamplingRequest) (*SamplingResponse, error)

// HandleSampling registers the handler used for sampling/createMessage
// server requests. Must be called before Connect to avoid a race with the
// dispatch loop.
func (c *Client) HandleSampling(handler SamplingHandler) {
	c.samplingFn = handler
}

func (c *Client) handleSamplingRequest(id any, rawParams json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), *c.callTimeout())
	defer cancel()

	var params SamplingRequest
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			c.respondError(ctx, id, ErrCodeInvalidParams, "invalid sampling params")
			return
		}
	}

	response, err := c.samplingFn(ctx, &params)
	if err != nil {
		c.respondError(ctx, id, ErrCodeInternalError, err.Error())
		return
	}
	if response == nil {
		c.respondError(ctx, id, ErrCodeInternalError, "sampling handler returned nil response")
		return
	}

	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id}
	data, err := json.Marshal(response)
	if err != nil {
		c.respondError(ctx, id, ErrCodeInternalError, "marshal sampling response")
		return
	}
	resp.Result = data
	frame, _ := json.Marshal(resp)
	if err := c.transport.Send(ctx, frame); err != nil {
		c.logger.Warn("failed to respond to sampling request", "error", err)
	}
}

func (c *Client) respondError(ctx context.Context, id any, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
	frame, _ := json.Marshal(resp)
	_ = c.transport.Send(ctx, frame)
}

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/turnkit/agentcore/internal/backoff"
)

// SSETransport is the SSE wire binding: a persistent GET stream
// (text/event-stream) delivers frames, and requests/notifications are
// POSTed to a sibling URL, per spec.md §4.F "SSE".
type SSETransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client
	policy backoff.BackoffPolicy

	frames    chan []byte
	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewSSETransport creates a new SSE transport.
func NewSSETransport(cfg *ServerConfig) *SSETransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SSETransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "sse"),
		client:   &http.Client{Timeout: timeout},
		policy:   backoff.DefaultPolicy(),
		frames:   make(chan []byte, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect opens the SSE stream in the background and marks the transport
// connected once the handshake requests can be POSTed (the stream itself
// reconnects independently on failure).
func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for SSE transport")
	}

	t.connected.Store(true)
	t.wg.Add(1)
	go t.streamLoop(ctx)
	return nil
}

// Close tears down the SSE stream.
func (t *SSETransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)
	t.wg.Wait()
	close(t.frames)
	return nil
}

// Send POSTs one JSON-RPC frame to the sibling request URL.
func (t *SSETransport) Send(ctx context.Context, frame []byte) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	// A synchronous 200 body (if present) is itself a JSON-RPC frame some
	// servers return inline instead of over the stream.
	if body, _ := io.ReadAll(resp.Body); len(bytes.TrimSpace(body)) > 0 {
		select {
		case t.frames <- body:
		default:
			t.logger.Warn("frame channel full, dropping inline response")
		}
	}
	return nil
}

// Frames delivers raw JSON-RPC frames decoded off the SSE stream.
func (t *SSETransport) Frames() <-chan []byte {
	return t.frames
}

// Connected returns whether the transport believes it has a live stream.
func (t *SSETransport) Connected() bool {
	return t.connected.Load()
}

// streamLoop keeps the SSE GET connection alive, reconnecting with
// backoff on failure until Close is called.
func (t *SSETransport) streamLoop(ctx context.Context) {
	defer t.wg.Done()

	sseURL := strings.TrimSuffix(t.config.URL, "/") + "/sse"
	attempt := 1

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		default:
		}

		connectedAt := time.Now()
		t.connectSSE(ctx, sseURL)
		if float64(time.Since(connectedAt).Milliseconds()) > t.policy.MaxMs {
			attempt = 1
		}

		delay := backoff.ComputeBackoff(t.policy, attempt)
		attempt++

		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		case <-time.After(delay):
		}
	}
}

func (t *SSETransport) connectSSE(ctx context.Context, sseURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sseURL, nil)
	if err != nil {
		t.logger.Debug("failed to create SSE request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("SSE connection failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Debug("SSE returned non-200", "status", resp.StatusCode)
		return
	}

	t.logger.Debug("SSE connected", "url", sseURL)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case <-t.stopChan:
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if strings.TrimSpace(data) == "" {
			continue
		}

		buf := make([]byte, len(data))
		copy(buf, data)

		select {
		case t.frames <- buf:
		case <-t.stopChan:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		t.logger.Debug("SSE scanner error", "error", err)
	}
}

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

// NDJSONTransport is the HTTP NDJSON-streaming binding: a persistent GET
// stream (application/x-ndjson) delivers server-initiated frames, and
// POSTed requests may themselves return an NDJSON-framed stream of
// responses, per spec.md §4.F "HTTP NDJSON".
type NDJSONTransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client
	policy backoff.BackoffPolicy

	frames    chan []byte
	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewNDJSONTransport creates a new NDJSON-streaming HTTP transport.
func NewNDJSONTransport(cfg *ServerConfig) *NDJSONTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &NDJSONTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "ndjson"),
		client:   &http.Client{Timeout: 0}, // streaming: no fixed deadline
		policy:   backoff.DefaultPolicy(),
		frames:   make(chan []byte, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect starts the persistent GET stream in the background.
func (t *NDJSONTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for HTTP transport")
	}
	t.connected.Store(true)
	t.wg.Add(1)
	go t.streamLoop(ctx)
	return nil
}

// Close tears down the stream.
func (t *NDJSONTransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)
	t.wg.Wait()
	close(t.frames)
	return nil
}

// Send POSTs one JSON-RPC frame. The response body may be a single JSON
// object or an NDJSON stream of several; every line is forwarded as its
// own frame.
func (t *NDJSONTransport) Send(ctx context.Context, frame []byte) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(frame))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson, application/json")
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

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)
		select {
		case t.frames <- buf:
		case <-t.stopChan:
			return nil
		}
	}
	return scanner.Err()
}

// Frames delivers raw JSON-RPC frames decoded off the persistent GET
// stream and any streamed POST responses.
func (t *NDJSONTransport) Frames() <-chan []byte {
	return t.frames
}

// Connected returns whether the transport believes it has a live stream.
func (t *NDJSONTransport) Connected() bool {
	return t.connected.Load()
}

func (t *NDJSONTransport) streamLoop(ctx context.Context) {
	defer t.wg.Done()

	streamURL := strings.TrimSuffix(t.config.URL, "/") + "/stream"
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
		t.connectStream(ctx, streamURL)
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

func (t *NDJSONTransport) connectStream(ctx context.Context, streamURL string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		t.logger.Debug("failed to create stream request", "error", err)
		return
	}
	req.Header.Set("Accept", "application/x-ndjson")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("NDJSON stream connection failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Debug("NDJSON stream returned non-200", "status", resp.StatusCode)
		return
	}

	t.logger.Debug("NDJSON stream connected", "url", streamURL)

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

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)

		select {
		case t.frames <- buf:
		case <-t.stopChan:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		t.logger.Debug("NDJSON scanner error", "error", err)
	}
}

package mcp

import (
	"context"
	"testing"
	"time"
)

func TestNewTransportStdio(t *testing.T) {
	cfg := &ServerConfig{
		ID:        "test",
		Transport: TransportStdio,
		Command:   "echo",
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*StdioTransport); !ok {
		t.Error("expected StdioTransport")
	}
}

func TestNewTransportHTTP(t *testing.T) {
	cfg := &ServerConfig{
		ID:        "test",
		Transport: TransportHTTP,
		URL:       "https://example.com/mcp",
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*NDJSONTransport); !ok {
		t.Error("expected NDJSONTransport")
	}
}

func TestNewTransportSSE(t *testing.T) {
	cfg := &ServerConfig{
		ID:        "test",
		Transport: TransportSSE,
		URL:       "https://example.com/mcp",
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*SSETransport); !ok {
		t.Error("expected SSETransport")
	}
}

func TestNewTransportDefault(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "test",
		Command: "echo",
		// No transport type specified, should default to stdio
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*StdioTransport); !ok {
		t.Error("expected StdioTransport as default")
	}
}

func TestNewStdioTransport(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "test-stdio",
		Command: "mcp-server",
		Args:    []string{"--config", "test.yaml"},
		Env:     map[string]string{"DEBUG": "true"},
		WorkDir: "/tmp",
		Timeout: 30 * time.Second,
	}

	transport := NewStdioTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if transport.config != cfg {
		t.Error("expected config to be set")
	}
	if transport.frames == nil {
		t.Error("expected frames channel to be initialized")
	}
}

func TestStdioTransportConnected(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestStdioTransportFrames(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	if transport.Frames() == nil {
		t.Error("expected non-nil frames channel")
	}
}

func TestStdioTransportConnectNoCommand(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: ""})

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for missing command")
	}
}

func TestStdioTransportSendNotConnected(t *testing.T) {
	transport := NewStdioTransport(&ServerConfig{ID: "test", Command: "echo"})

	if err := transport.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Error("expected error when not connected")
	}
}

func TestStdioChildEnvFiltersToAllowlist(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("AGENTCORE_TEST_SECRET", "should-not-leak")

	env := stdioChildEnv(map[string]string{"EXTRA": "1"})

	seenSecret := false
	seenHome := false
	seenExtra := false
	for _, kv := range env {
		switch {
		case kv == "AGENTCORE_TEST_SECRET=should-not-leak":
			seenSecret = true
		case kv == "HOME=/home/tester":
			seenHome = true
		case kv == "EXTRA=1":
			seenExtra = true
		}
	}
	if seenSecret {
		t.Error("expected non-allowlisted variable to be filtered out")
	}
	if !seenHome {
		t.Error("expected HOME to be forwarded")
	}
	if !seenExtra {
		t.Error("expected configured extra env to be forwarded")
	}
}

func TestNewNDJSONTransport(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "test-http",
		URL:     "https://mcp.example.com/api",
		Headers: map[string]string{"Authorization": "Bearer token"},
		Timeout: 60 * time.Second,
	}

	transport := NewNDJSONTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if transport.config != cfg {
		t.Error("expected config to be set")
	}
	if transport.frames == nil {
		t.Error("expected frames channel to be initialized")
	}
}

func TestNDJSONTransportConnected(t *testing.T) {
	transport := NewNDJSONTransport(&ServerConfig{ID: "test", URL: "https://mcp.example.com"})

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestNDJSONTransportConnectNoURL(t *testing.T) {
	transport := NewNDJSONTransport(&ServerConfig{ID: "test", Transport: TransportHTTP, URL: ""})

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestNDJSONTransportSendNotConnected(t *testing.T) {
	transport := NewNDJSONTransport(&ServerConfig{ID: "test", URL: "https://mcp.example.com"})

	if err := transport.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Error("expected error when not connected")
	}
}

func TestNewSSETransport(t *testing.T) {
	cfg := &ServerConfig{ID: "test", Transport: TransportSSE, URL: "https://mcp.example.com"}

	transport := NewSSETransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}
	if transport.frames == nil {
		t.Error("expected frames channel to be initialized")
	}
}

func TestSSETransportConnectNoURL(t *testing.T) {
	transport := NewSSETransport(&ServerConfig{ID: "test", Transport: TransportSSE, URL: ""})

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestSSETransportSendNotConnected(t *testing.T) {
	transport := NewSSETransport(&ServerConfig{ID: "test", Transport: TransportSSE, URL: "https://mcp.example.com"})

	if err := transport.Send(context.Background(), []byte(`{}`)); err == nil {
		t.Error("expected error when not connected")
	}
}

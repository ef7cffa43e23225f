package mcp

import "context"

// Transport is the narrow byte-frame binding each wire protocol (stdio,
// SSE, NDJSON-streaming HTTP) implements. All JSON-RPC framing, request/
// response correlation, and notification routing live in Client, per
// spec.md §4.F — a transport only ships bytes in and delivers bytes out.
type Transport interface {
	// Connect establishes the underlying connection (spawns the child,
	// opens the SSE stream, etc.) and starts whatever background reader
	// the binding needs to populate Frames.
	Connect(ctx context.Context) error

	// Close tears the transport down and closes the Frames channel.
	Close() error

	// Send writes one encoded JSON-RPC frame (request, notification, or
	// response) to the wire. Client calls it directly from whichever
	// goroutine issues the request or reply; there is no separate writer
	// goroutine.
	Send(ctx context.Context, frame []byte) error

	// Frames delivers raw incoming JSON-RPC frames as the reader task
	// decodes them off the wire. Closed when the transport shuts down.
	Frames() <-chan []byte

	// Connected reports whether the transport believes it has a live
	// connection.
	Connected() bool
}

// NewTransport selects a wire binding for cfg.Transport.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportSSE:
		return NewSSETransport(cfg)
	case TransportHTTP:
		return NewNDJSONTransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}

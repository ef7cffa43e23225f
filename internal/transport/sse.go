package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// SSEClient implements spec.md §4.H "Responses SSE": a POST that returns a
// text/event-stream body decoded into ResponseEvents, with sticky turn
// routing, one-shot 401 auth-refresh retry, and optional zstd compression.
type SSEClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Provider   ProviderInfo
	Features   Features
	Auth       AuthRecovery
}

// NewSSEClient builds an SSEClient with a default *http.Client.
func NewSSEClient(baseURL string, provider ProviderInfo, features Features, auth AuthRecovery) *SSEClient {
	return &SSEClient{
		HTTPClient: http.DefaultClient,
		BaseURL:    baseURL,
		Provider:   provider,
		Features:   features,
		Auth:       auth,
	}
}

// wireEvent is the on-the-wire JSON shape of one SSE "data:" frame.
type wireEvent struct {
	Type       string            `json:"type"`
	Item       json.RawMessage   `json:"item,omitempty"`
	Delta      string            `json:"delta,omitempty"`
	CallID     string            `json:"call_id,omitempty"`
	RateLimits RateLimitSnapshot `json:"rate_limits,omitempty"`
	ResponseID string            `json:"response_id,omitempty"`
	Usage      TokenUsage        `json:"usage,omitempty"`
}

// Stream opens one Responses SSE request for req and delivers decoded
// events on the returned channel, closing it when the stream ends (whether
// by Completed, a transport error sent as the channel's final value being
// absent, or ctx cancellation). On HTTP 401 it invokes AuthRecovery and
// retries the request once before giving up, per spec.md §4.H step 4.
func (c *SSEClient) Stream(ctx context.Context, req Request, turnState *TurnState) (<-chan ResponseEvent, <-chan error) {
	events := make(chan ResponseEvent, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		retried := false
		for {
			err := c.attempt(ctx, req, turnState, events)
			if err == nil {
				return
			}
			var httpErr *HTTPError
			if isHTTP401(err, &httpErr) && !retried && c.Auth != nil && c.Auth.HasNext() {
				retried = true
				if refreshErr := c.Auth.Next(ctx); refreshErr != nil {
					errs <- fmt.Errorf("transport: auth refresh after 401: %w", refreshErr)
					return
				}
				continue
			}
			errs <- err
			return
		}
	}()

	return events, errs
}

func isHTTP401(err error, out **HTTPError) bool {
	he, ok := err.(*HTTPError)
	if !ok || he.StatusCode != http.StatusUnauthorized {
		return false
	}
	*out = he
	return true
}

func (c *SSEClient) attempt(ctx context.Context, req Request, turnState *TurnState, events chan<- ResponseEvent) error {
	auth, _ := c.Auth.Auth()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("transport: encode request: %w", err)
	}

	compressed := shouldCompress(c.Features, auth, c.Provider)
	if compressed {
		body, err = compressBody(body)
		if err != nil {
			return fmt.Errorf("transport: compress request: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header = buildHeaders(auth, c.Features, turnState)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if compressed {
		httpReq.Header.Set("Content-Encoding", "zstd")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: sse request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	turnState.Observe(resp.Header.Get("x-codex-turn-state"))

	return decodeSSE(resp.Body, turnState, events)
}

// decodeSSE reads "data: <json>" frames from r, decoding each into a
// ResponseEvent and sending it on events. A blank line separates frames;
// lines beginning with ':' are comments/heartbeats and are ignored.
func decodeSSE(r io.Reader, turnState *TurnState, events chan<- ResponseEvent) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var dataLines []string
	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if data == "[DONE]" {
			return nil
		}
		var we wireEvent
		if err := json.Unmarshal([]byte(data), &we); err != nil {
			// ResponseParse: an unrecognized frame is logged and ignored,
			// not fatal, per spec.md §7.
			slog.Debug("transport: skipping unparseable stream frame", "error", err)
			return nil
		}
		ev, ok := decodeWireEvent(we)
		if !ok {
			slog.Debug("transport: skipping stream event", "error", ErrUnrecognizedEvent, "type", we.Type)
			return nil
		}
		events <- ev
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "event:"):
			// event name is redundant with wireEvent.Type; ignored
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("transport: read sse stream: %w", err)
	}
	return nil
}

func decodeWireEvent(we wireEvent) (ResponseEvent, bool) {
	switch EventKind(we.Type) {
	case EventCreated:
		return ResponseEvent{Kind: EventCreated}, true
	case EventOutputItemDone:
		var item responseItemWire
		if len(we.Item) > 0 {
			if err := json.Unmarshal(we.Item, &item); err != nil {
				return ResponseEvent{}, false
			}
		}
		return ResponseEvent{Kind: EventOutputItemDone, Item: item.toRollout()}, true
	case EventOutputTextDelta:
		return ResponseEvent{Kind: EventOutputTextDelta, Text: we.Delta}, true
	case EventReasoningSummaryDelta:
		return ResponseEvent{Kind: EventReasoningSummaryDelta, Text: we.Delta}, true
	case EventReasoningContentDelta:
		return ResponseEvent{Kind: EventReasoningContentDelta, Text: we.Delta}, true
	case EventReasoningSummaryPartAdd:
		return ResponseEvent{Kind: EventReasoningSummaryPartAdd}, true
	case EventWebSearchCallBegin:
		return ResponseEvent{Kind: EventWebSearchCallBegin, CallID: we.CallID}, true
	case EventRateLimits:
		return ResponseEvent{Kind: EventRateLimits, RateLimits: we.RateLimits}, true
	case EventCompleted:
		return ResponseEvent{Kind: EventCompleted, ResponseID: we.ResponseID, Usage: we.Usage}, true
	default:
		return ResponseEvent{}, false
	}
}

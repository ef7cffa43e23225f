// Package transport implements the model streaming wire APIs described in
// spec.md §4.H: Responses SSE, Responses WebSocket, and the legacy Chat
// Completions wire, plus the compaction unary call, request compression
// gating, and sticky turn-state routing shared by the stream-based clients.
package transport

import (
	"github.com/turnkit/agentcore/internal/rollout"
)

// EventKind discriminates ResponseEvent's tagged union, per spec.md §3
// "ResponseEvent".
type EventKind string

const (
	EventCreated                  EventKind = "created"
	EventOutputItemDone           EventKind = "output_item_done"
	EventOutputTextDelta          EventKind = "output_text_delta"
	EventReasoningSummaryDelta    EventKind = "reasoning_summary_delta"
	EventReasoningContentDelta    EventKind = "reasoning_content_delta"
	EventReasoningSummaryPartAdd  EventKind = "reasoning_summary_part_added"
	EventWebSearchCallBegin       EventKind = "web_search_call_begin"
	EventRateLimits               EventKind = "rate_limits"
	EventCompleted                EventKind = "completed"
)

// RateLimitSnapshot mirrors the provider's rate-limit headers/body at the
// moment a stream reports it.
type RateLimitSnapshot struct {
	LimitRequests     int64 `json:"limit_requests,omitempty"`
	RemainingRequests int64 `json:"remaining_requests,omitempty"`
	LimitTokens       int64 `json:"limit_tokens,omitempty"`
	RemainingTokens   int64 `json:"remaining_tokens,omitempty"`
}

// TokenUsage is the final accounting reported with Completed.
type TokenUsage struct {
	InputTokens       int64 `json:"input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens,omitempty"`
	ReasoningTokens   int64 `json:"reasoning_tokens,omitempty"`
}

// ResponseEvent is one item streamed from a model transport, per spec.md §3.
// Go has no sum type, so the struct carries a Kind discriminant and only
// the fields relevant to that kind are populated (Design Note "sum types
// over inheritance").
type ResponseEvent struct {
	Kind EventKind

	// EventOutputItemDone
	Item rollout.ResponseItem

	// EventOutputTextDelta / EventReasoningSummaryDelta / EventReasoningContentDelta
	Text string

	// EventWebSearchCallBegin
	CallID string

	// EventRateLimits
	RateLimits RateLimitSnapshot

	// EventCompleted
	ResponseID string
	Usage      TokenUsage
}

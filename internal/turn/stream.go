package turn

import (
	"context"
	"errors"
	"time"

	"github.com/turnkit/agentcore/internal/backoff"
	"github.com/turnkit/agentcore/internal/rollout"
	"github.com/turnkit/agentcore/internal/transport"
)

// streamTurn opens one streamed request, retrying per spec.md §4.J step 5
// ("other retriable transport errors use provider-configured retry
// policy" — the one-shot 401 refresh itself happens inside the Streamer),
// and returns every OutputItemDone item observed, the function-call items
// among them, and whether a Completed event arrived.
func (o *Orchestrator) streamTurn(ctx context.Context, req transport.Request, turnState *transport.TurnState) ([]rollout.ResponseItem, []rollout.ResponseItem, bool, error) {
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		items, calls, completed, err := o.streamOnce(ctx, req, turnState)
		if o.telemetry != nil {
			status := 0
			var httpErr *transport.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.StatusCode
			}
			o.telemetry.RecordAPIRequest(attempt, status, err, time.Since(start))
		}
		if err == nil {
			return items, calls, completed, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return items, calls, completed, ctx.Err()
		}
		if !isRetriable(err) {
			return items, calls, completed, err
		}
		if attempt < o.cfg.MaxRetries {
			if sleepErr := backoff.SleepWithBackoff(ctx, o.cfg.RetryPolicy, attempt); sleepErr != nil {
				return items, calls, completed, sleepErr
			}
		}
	}
	return nil, nil, false, lastErr
}

// streamOnce drains one attempt's events/errs channels, converting events
// into rollout items and UI emissions, per spec.md §4.J step 2.
func (o *Orchestrator) streamOnce(ctx context.Context, req transport.Request, turnState *transport.TurnState) ([]rollout.ResponseItem, []rollout.ResponseItem, bool, error) {
	events, errs := o.streamer.Stream(ctx, req, turnState)

	var items []rollout.ResponseItem
	var calls []rollout.ResponseItem
	completed := false

	sseStart := time.Now()
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return items, calls, completed, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case transport.EventOutputTextDelta:
				o.emit("agent_message_delta", map[string]any{"text": ev.Text})
			case transport.EventReasoningSummaryDelta, transport.EventReasoningContentDelta:
				o.emit("reasoning_delta", map[string]any{"text": ev.Text})
			case transport.EventOutputItemDone:
				items = append(items, ev.Item)
				if ev.Item.Kind == rollout.ResponseItemFunctionCall {
					calls = append(calls, ev.Item)
				}
			case transport.EventCompleted:
				completed = true
				if o.telemetry != nil {
					o.telemetry.SSEEventCompleted(ev.Usage.InputTokens, ev.Usage.OutputTokens, ev.Usage.CachedInputTokens, ev.Usage.ReasoningTokens, ev.Usage.InputTokens+ev.Usage.OutputTokens)
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if o.telemetry != nil {
				o.telemetry.LogSSEEvent(err == nil, time.Since(sseStart))
			}
			if err != nil {
				return items, calls, completed, err
			}
		}
	}
	return items, calls, completed, nil
}

// isRetriable reports whether err is worth a provider-policy retry rather
// than surfacing immediately. A 401 is excluded: the Streamer already
// performed its one allowed auth-refresh retry internally, per spec.md
// §4.H step 4, so seeing one here means that retry itself failed.
func isRetriable(err error) bool {
	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 401, 400, 403, 404:
			return false
		default:
			return true
		}
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

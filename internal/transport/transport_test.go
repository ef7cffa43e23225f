package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/turnkit/agentcore/internal/rollout"
)

func TestTurnState_ObserveIsWriteOnce(t *testing.T) {
	ts := NewTurnState()
	ts.Observe("")
	if got := ts.Value(); got != "" {
		t.Fatalf("Value() = %q, want empty before any non-empty Observe", got)
	}
	ts.Observe("abc")
	ts.Observe("xyz") // must not overwrite
	if got := ts.Value(); got != "abc" {
		t.Fatalf("Value() = %q, want %q", got, "abc")
	}
}

func TestDecodeSSE_ParsesKnownEventsAndIgnoresUnknown(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"type":"created"}`,
		"",
		`data: {"type":"output_text_delta","delta":"hel"}`,
		"",
		`data: {"type":"output_text_delta","delta":"lo"}`,
		"",
		`data: {"type":"some_future_event","delta":"ignored"}`,
		"",
		`data: {"type":"completed","response_id":"resp_1","usage":{"input_tokens":10,"output_tokens":2}}`,
		"",
	}, "\n")

	events := make(chan ResponseEvent, 16)
	if err := decodeSSE(strings.NewReader(stream), NewTurnState(), events); err != nil {
		t.Fatalf("decodeSSE: %v", err)
	}
	close(events)

	var got []ResponseEvent
	for ev := range events {
		got = append(got, ev)
	}

	if len(got) != 4 {
		t.Fatalf("got %d events, want 4 (unknown event type must be skipped): %+v", len(got), got)
	}
	if got[0].Kind != EventCreated {
		t.Fatalf("got[0].Kind = %v, want EventCreated", got[0].Kind)
	}
	if got[1].Text != "hel" || got[2].Text != "lo" {
		t.Fatalf("delta text mismatch: %+v", got[1:3])
	}
	last := got[3]
	if last.Kind != EventCompleted || last.ResponseID != "resp_1" || last.Usage.InputTokens != 10 {
		t.Fatalf("completed event mismatch: %+v", last)
	}
}

type fakeAuth struct {
	token      string
	refreshed  bool
	hasNext    bool
	refreshErr error
}

func (f *fakeAuth) Auth() (Auth, bool) { return Auth{Mode: AuthModeAPIKey, Token: f.token}, true }
func (f *fakeAuth) HasNext() bool      { return f.hasNext }
func (f *fakeAuth) Next(context.Context) error {
	f.refreshed = true
	f.token = "refreshed-token"
	return f.refreshErr
}

func TestSSEClient_RetriesOnceAfter401(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"type\":\"completed\",\"response_id\":\"r1\"}\n\n")
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "stale-token", hasNext: true}
	client := NewSSEClient(srv.URL, ProviderInfo{Name: "openai", IsCanonicalOpenAI: true}, Features{}, auth)

	req := NewRequest("test-model", nil, "", nil, false, "conv-1")
	events, errs := client.Stream(context.Background(), req, NewTurnState())

	var got []ResponseEvent
	for ev := range events {
		got = append(got, ev)
	}
	if err := <-errs; err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2 (one 401, one retried)", requests)
	}
	if !auth.refreshed {
		t.Fatalf("expected auth refresh to have been invoked")
	}
	if len(got) != 1 || got[0].Kind != EventCompleted {
		t.Fatalf("got = %+v, want one Completed event", got)
	}
}

func TestSSEClient_NoRetryWithoutRefreshAvailable(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := &fakeAuth{token: "stale-token", hasNext: false}
	client := NewSSEClient(srv.URL, ProviderInfo{}, Features{}, auth)
	req := NewRequest("test-model", nil, "", nil, false, "conv-2")
	events, errs := client.Stream(context.Background(), req, NewTurnState())
	for range events {
	}
	err := <-errs
	if err == nil {
		t.Fatalf("expected an error when no refresh is available")
	}
	if requests != 1 {
		t.Fatalf("requests = %d, want exactly 1 (no retry)", requests)
	}
}

func TestShouldCompress_GatedOnFeatureAuthAndProvider(t *testing.T) {
	cases := []struct {
		name     string
		features Features
		auth     Auth
		provider ProviderInfo
		want     bool
	}{
		{"all conditions met", Features{EnableCompression: true}, Auth{Mode: AuthModeChatGPT}, ProviderInfo{IsCanonicalOpenAI: true}, true},
		{"feature off", Features{EnableCompression: false}, Auth{Mode: AuthModeChatGPT}, ProviderInfo{IsCanonicalOpenAI: true}, false},
		{"api key auth", Features{EnableCompression: true}, Auth{Mode: AuthModeAPIKey}, ProviderInfo{IsCanonicalOpenAI: true}, false},
		{"non-canonical provider", Features{EnableCompression: true}, Auth{Mode: AuthModeChatGPT}, ProviderInfo{IsCanonicalOpenAI: false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldCompress(tc.features, tc.auth, tc.provider); got != tc.want {
				t.Fatalf("shouldCompress() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsStrictExtension(t *testing.T) {
	a := rollout.ResponseItem{Kind: rollout.ResponseItemMessage, Role: "user", Content: "hi"}
	b := rollout.ResponseItem{Kind: rollout.ResponseItemMessage, Role: "assistant", Content: "there"}
	c := rollout.ResponseItem{Kind: rollout.ResponseItemMessage, Role: "user", Content: "more"}

	if isStrictExtension([]rollout.ResponseItem{a, b}, []rollout.ResponseItem{a, b}) {
		t.Fatalf("identical input must not count as a strict extension")
	}
	if !isStrictExtension([]rollout.ResponseItem{a}, []rollout.ResponseItem{a, b}) {
		t.Fatalf("expected [a,b] to be a strict extension of [a]")
	}
	if isStrictExtension([]rollout.ResponseItem{a, b}, []rollout.ResponseItem{a, c}) {
		t.Fatalf("divergent histories must not count as a strict extension")
	}
}

func TestBuildHeaders_StickyTurnStateOnlyAfterObserve(t *testing.T) {
	ts := NewTurnState()
	h := buildHeaders(Auth{Token: "tok"}, Features{}, ts)
	if h.Get("x-codex-turn-state") != "" {
		t.Fatalf("turn-state header should be absent before the server sends one")
	}
	ts.Observe("sticky-value")
	h2 := buildHeaders(Auth{Token: "tok"}, Features{}, ts)
	if h2.Get("x-codex-turn-state") != "sticky-value" {
		t.Fatalf("x-codex-turn-state = %q, want %q", h2.Get("x-codex-turn-state"), "sticky-value")
	}
}

func TestChatCompletionsClient_RejectsOutputSchema(t *testing.T) {
	c := NewChatCompletionsClient(nil)
	req := NewRequest("gpt-4", nil, "", nil, false, "")
	req.OutputSchema = []byte(`{"type":"object"}`)
	_, errs := c.Stream(context.Background(), req)
	if err := <-errs; err != ErrUnsupportedOperation {
		t.Fatalf("err = %v, want ErrUnsupportedOperation", err)
	}
}

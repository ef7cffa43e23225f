package transport

import (
	"net/http"
	"strings"
)

// ProviderInfo names the upstream provider a request targets, used to gate
// request compression (spec.md §4.H "Request compression").
type ProviderInfo struct {
	// Name identifies the provider ("openai", "anthropic", ...).
	Name string
	// IsCanonicalOpenAI is true only for the first-party OpenAI endpoint,
	// not OpenAI-compatible third parties.
	IsCanonicalOpenAI bool
}

// Features is the set of experimental flags enabled for a session, rendered
// as the x-codex-beta-features comma list.
type Features struct {
	Enabled             []string
	WebSearchDisabled   bool
	EnableCompression   bool
}

// buildHeaders assembles the fixed header set for a Responses SSE/WS
// request, per spec.md §4.H step 2.
func buildHeaders(auth Auth, features Features, turnState *TurnState) http.Header {
	h := http.Header{}
	switch auth.Mode {
	case AuthModeChatGPT:
		h.Set("Authorization", "Bearer "+auth.Token)
		h.Set("chatgpt-account-id", "")
	default:
		h.Set("Authorization", "Bearer "+auth.Token)
	}
	if len(features.Enabled) > 0 {
		h.Set("x-codex-beta-features", strings.Join(features.Enabled, ","))
	}
	if features.WebSearchDisabled {
		h.Set("x-oai-web-search-eligible", "false")
	} else {
		h.Set("x-oai-web-search-eligible", "true")
	}
	if turnState != nil {
		if v := turnState.Value(); v != "" {
			h.Set("x-codex-turn-state", v)
		}
	}
	return h
}

// buildConversationHeaders extends extra headers with the conversation id,
// used when (re)establishing a Responses WebSocket connection per
// spec.md §4.H "Connection reuse".
func buildConversationHeaders(conversationID string) http.Header {
	h := http.Header{}
	if conversationID != "" {
		h.Set("x-codex-conversation-id", conversationID)
	}
	return h
}

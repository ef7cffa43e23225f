// Package rollout implements the append-only JSONL session log described in
// spec.md §4.D: one file per conversation, one line per RolloutItem, listed
// and paginated across a date-partitioned directory tree.
package rollout

import (
	"encoding/json"
	"time"
)

// SessionSource identifies what kind of client started a conversation.
type SessionSource string

const (
	SourceCli      SessionSource = "cli"
	SourceVscode   SessionSource = "vscode"
	SourceExec     SessionSource = "exec"
	SourceSubAgent SessionSource = "sub_agent"
)

// ItemType discriminates RolloutItem's tagged union. Go has no sum type, so
// Item carries the discriminant explicitly (spec.md §9, "sum types over
// inheritance").
type ItemType string

const (
	TypeSessionMeta  ItemType = "session_meta"
	TypeEventMsg     ItemType = "event_msg"
	TypeResponseItem ItemType = "response_item"
	TypeCompacted    ItemType = "compacted"
)

// GitInfo captures the repository state a session started in, recorded
// alongside SessionMeta when the cwd is inside a git checkout.
type GitInfo struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
	Repo   string `json:"repo_url,omitempty"`
}

// SessionMeta is always the first record in a rollout file.
type SessionMeta struct {
	ThreadID  string        `json:"thread_id"`
	Source    SessionSource `json:"source"`
	Cwd       string        `json:"cwd"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Git       *GitInfo      `json:"git,omitempty"`
}

// EventMsg wraps a UI-observable event kind, e.g. "user_message" or
// "shutdown_complete". Payload carries the event-specific fields.
type EventMsg struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ResponseItemKind discriminates the model response items recorded in a
// rollout: messages, function calls, reasoning, and tool outputs.
type ResponseItemKind string

const (
	ResponseItemMessage        ResponseItemKind = "message"
	ResponseItemFunctionCall   ResponseItemKind = "function_call"
	ResponseItemFunctionOutput ResponseItemKind = "function_call_output"
	ResponseItemReasoning      ResponseItemKind = "reasoning"
)

// ResponseItem mirrors the model-facing conversation item persisted in a
// turn's history.
type ResponseItem struct {
	Kind     ResponseItemKind `json:"kind"`
	Role     string           `json:"role,omitempty"`
	Content  string           `json:"content,omitempty"`
	CallID   string           `json:"call_id,omitempty"`
	Name     string           `json:"name,omitempty"`
	Args     json.RawMessage  `json:"args,omitempty"`
	Output   string           `json:"output,omitempty"`
	IsError  bool             `json:"is_error,omitempty"`
	Summary  string           `json:"summary,omitempty"`
}

// Compacted is the marker a compaction subagent leaves in place of the
// history it summarized.
type Compacted struct {
	Message string `json:"message"`
}

// Item is one line of a rollout file: a tagged union over SessionMeta,
// EventMsg, ResponseItem, and Compacted, keyed by Type.
type Item struct {
	Timestamp    time.Time     `json:"timestamp"`
	Type         ItemType      `json:"type"`
	SessionMeta  *SessionMeta  `json:"session_meta,omitempty"`
	EventMsg     *EventMsg     `json:"event_msg,omitempty"`
	ResponseItem *ResponseItem `json:"response_item,omitempty"`
	Compacted    *Compacted    `json:"compacted,omitempty"`
}

// wireItem is the on-disk shape: {"timestamp","type","payload"} per spec.md
// §6. Item's typed accessor fields are folded into payload on encode and
// unfolded on decode so callers work with the tagged struct above.
type wireItem struct {
	Timestamp string          `json:"timestamp"`
	Type      ItemType        `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON renders Item in the on-disk {timestamp,type,payload} shape.
func (it Item) MarshalJSON() ([]byte, error) {
	var payload any
	switch it.Type {
	case TypeSessionMeta:
		payload = it.SessionMeta
	case TypeEventMsg:
		payload = it.EventMsg
	case TypeResponseItem:
		payload = it.ResponseItem
	case TypeCompacted:
		payload = it.Compacted
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireItem{
		Timestamp: it.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:      it.Type,
		Payload:   raw,
	})
}

// UnmarshalJSON restores Item from the on-disk {timestamp,type,payload}
// shape, dispatching payload into the matching typed field.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, w.Timestamp)
		if err != nil {
			return err
		}
	}
	it.Timestamp = ts
	it.Type = w.Type
	switch w.Type {
	case TypeSessionMeta:
		var m SessionMeta
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, &m); err != nil {
				return err
			}
		}
		it.SessionMeta = &m
	case TypeEventMsg:
		var e EventMsg
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, &e); err != nil {
				return err
			}
		}
		it.EventMsg = &e
	case TypeResponseItem:
		var r ResponseItem
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, &r); err != nil {
				return err
			}
		}
		it.ResponseItem = &r
	case TypeCompacted:
		var c Compacted
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, &c); err != nil {
				return err
			}
		}
		it.Compacted = &c
	}
	return nil
}

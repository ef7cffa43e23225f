package transport

import "sync"

// TurnState is the sticky-routing once-cell described in spec.md §4.H
// "Sticky turn routing": the server may return x-codex-turn-state on the
// first request of a turn; the client stores it here and echoes it on
// every subsequent request of the *same* turn, never across turns.
type TurnState struct {
	mu    sync.Mutex
	value string
	set   bool
}

// NewTurnState returns an empty once-cell. Callers create one per turn.
func NewTurnState() *TurnState {
	return &TurnState{}
}

// Observe records value the first time it is called with a non-empty
// value; subsequent calls (even with a different value) are no-ops, per
// spec.md §5 "Turn state once-cell: written at most once per turn".
func (t *TurnState) Observe(value string) {
	if value == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set {
		return
	}
	t.value = value
	t.set = true
}

// Value returns the stored turn-state value, or "" if none has been
// observed yet this turn.
func (t *TurnState) Value() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

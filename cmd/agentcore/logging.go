package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/turnkit/agentcore/internal/statedb"
)

// statedbHandler wraps a base slog.Handler and additionally persists every
// record into the statedb "logs" table per spec.md §4.E, so `agentcore serve`
// sessions are queryable after the fact the same way the runtime's own log
// retention store is. Persistence is best-effort: a statedb write failure
// never prevents the record from reaching the base handler.
type statedbHandler struct {
	base        slog.Handler
	db          *statedb.DB
	processUUID string
}

func newStatedbHandler(base slog.Handler, db *statedb.DB, processUUID string) *statedbHandler {
	return &statedbHandler{base: base, db: db, processUUID: processUUID}
}

func (h *statedbHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *statedbHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.base.Handle(ctx, r); err != nil {
		return err
	}

	entry := statedb.LogEntry{
		Ts:             r.Time,
		TsNanos:        r.Time.UnixNano(),
		Level:          r.Level.String(),
		Target:         "agentcore",
		Message:        r.Message,
		ProcessUUID:    &h.processUUID,
		EstimatedBytes: int64(len(r.Message)),
	}
	_ = h.db.InsertLogs(ctx, []statedb.LogEntry{entry})
	return nil
}

func (h *statedbHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &statedbHandler{base: h.base.WithAttrs(attrs), db: h.db, processUUID: h.processUUID}
}

func (h *statedbHandler) WithGroup(name string) slog.Handler {
	return &statedbHandler{base: h.base.WithGroup(name), db: h.db, processUUID: h.processUUID}
}

// openStateDB opens the per-home state database used for log retention,
// creating the home directory if this is the first run.
func openStateDB(home string) (*statedb.DB, error) {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, err
	}
	return statedb.Open(filepath.Join(home, "state.db"))
}

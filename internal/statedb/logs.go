package statedb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// LogEntry is a single persisted log record, per spec.md §3 "Log entry".
type LogEntry struct {
	ID             int64
	Ts             time.Time
	TsNanos        int64
	Level          string
	Target         string
	Message        string
	ThreadID       *string
	ProcessUUID    *string
	ModulePath     *string
	File           *string
	Line           *int
	EstimatedBytes int64
}

// partitionBudgetBytes is the per-partition retention cap B from spec.md
// §4.E: after each batch insert, oldest rows in the touched partition are
// deleted until its cumulative estimated_bytes is <= B.
const partitionBudgetBytes = 10 * 1024 * 1024 // 10 MiB per partition.

// partitionKey identifies a log retention partition: thread_id when present,
// else process_uuid (NULL process_uuid is its own partition), per spec.md
// §4.E.
type partitionKey struct {
	threadID    *string
	processUUID *string
}

// InsertLogs appends entries and, in the same transaction, prunes each
// touched partition down to partitionBudgetBytes, matching
// original_source/codex-rs's runtime log-insert shape (insert then
// cumulative-bytes-over-window delete) so a reader never observes a
// partition mid-prune.
func (db *DB) InsertLogs(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statedb: insert logs: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO logs (ts, ts_nanos, level, target, message, thread_id, process_uuid, module_path, file, line, estimated_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("statedb: insert logs: prepare: %w", err)
	}
	defer stmt.Close()

	touched := map[partitionKey]bool{}
	for _, e := range entries {
		_, err := stmt.ExecContext(ctx, e.Ts.UTC().Format(time.RFC3339Nano), e.TsNanos, e.Level, e.Target, e.Message,
			nullableStr(e.ThreadID), nullableStr(e.ProcessUUID), nullableStr(e.ModulePath), nullableStr(e.File), nullableInt(e.Line), e.EstimatedBytes)
		if err != nil {
			return fmt.Errorf("statedb: insert logs: exec: %w", err)
		}
		touched[partitionKey{threadID: e.ThreadID, processUUID: e.ProcessUUID}] = true
	}

	for p := range touched {
		if err := prunePartition(ctx, tx, p); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// prunePartition deletes the oldest rows of partition p until its
// cumulative estimated_bytes is <= partitionBudgetBytes.
func prunePartition(ctx context.Context, tx *sql.Tx, p partitionKey) error {
	where, args := partitionWhere(p)

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT id, estimated_bytes FROM logs WHERE %s ORDER BY id DESC`, where), args...)
	if err != nil {
		return fmt.Errorf("statedb: prune partition: query: %w", err)
	}
	var ids []int64
	var running int64
	var toDelete []int64
	for rows.Next() {
		var id, bytes int64
		if err := rows.Scan(&id, &bytes); err != nil {
			rows.Close()
			return fmt.Errorf("statedb: prune partition: scan: %w", err)
		}
		ids = append(ids, id)
		running += bytes
		if running > partitionBudgetBytes {
			toDelete = append(toDelete, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}

	placeholders := make([]string, len(toDelete))
	delArgs := make([]any, len(toDelete))
	for i, id := range toDelete {
		placeholders[i] = "?"
		delArgs[i] = id
	}
	q := fmt.Sprintf(`DELETE FROM logs WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, q, delArgs...); err != nil {
		return fmt.Errorf("statedb: prune partition: delete: %w", err)
	}
	return nil
}

func partitionWhere(p partitionKey) (string, []any) {
	if p.threadID != nil {
		return "thread_id = ?", []any{*p.threadID}
	}
	if p.processUUID != nil {
		return "thread_id IS NULL AND process_uuid = ?", []any{*p.processUUID}
	}
	return "thread_id IS NULL AND process_uuid IS NULL", nil
}

// LogFilter narrows a QueryLogs call. Zero values mean "no constraint".
type LogFilter struct {
	Level              string
	Since, Until       time.Time
	ModuleContains     string
	FileContains       string
	ThreadIDs          []string
	IncludeThreadless  bool
	AfterID            int64
	MessageContains    string
	Limit              int
}

// QueryLogs returns log rows matching filter, ordered by id ascending.
func (db *DB) QueryLogs(ctx context.Context, filter LogFilter) ([]LogEntry, error) {
	var conds []string
	var args []any

	if filter.Level != "" {
		conds = append(conds, "level = ?")
		args = append(args, filter.Level)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	if filter.ModuleContains != "" {
		conds = append(conds, "module_path LIKE ?")
		args = append(args, "%"+filter.ModuleContains+"%")
	}
	if filter.FileContains != "" {
		conds = append(conds, "file LIKE ?")
		args = append(args, "%"+filter.FileContains+"%")
	}
	if filter.MessageContains != "" {
		conds = append(conds, "message LIKE ?")
		args = append(args, "%"+filter.MessageContains+"%")
	}
	if filter.AfterID > 0 {
		conds = append(conds, "id > ?")
		args = append(args, filter.AfterID)
	}
	if len(filter.ThreadIDs) > 0 {
		placeholders := make([]string, len(filter.ThreadIDs))
		for i, t := range filter.ThreadIDs {
			placeholders[i] = "?"
			args = append(args, t)
		}
		threadCond := "thread_id IN (" + strings.Join(placeholders, ",") + ")"
		if filter.IncludeThreadless {
			threadCond = "(" + threadCond + " OR thread_id IS NULL)"
		}
		conds = append(conds, threadCond)
	}

	query := "SELECT id, ts, ts_nanos, level, target, message, thread_id, process_uuid, module_path, file, line, estimated_bytes FROM logs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: query logs: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var ts string
		var threadID, processUUID, modulePath, file sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&e.ID, &ts, &e.TsNanos, &e.Level, &e.Target, &e.Message, &threadID, &processUUID, &modulePath, &file, &line, &e.EstimatedBytes); err != nil {
			return nil, fmt.Errorf("statedb: query logs: scan: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Ts = parsed
		}
		e.ThreadID = fromNullString(threadID)
		e.ProcessUUID = fromNullString(processUUID)
		e.ModulePath = fromNullString(modulePath)
		e.File = fromNullString(file)
		if line.Valid {
			v := int(line.Int64)
			e.Line = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func fromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

package statedb

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndQueryLogs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	thread := "thread-1"
	err := db.InsertLogs(ctx, []LogEntry{
		{Ts: time.Now(), Level: "info", Target: "agent", Message: "hello", ThreadID: &thread, EstimatedBytes: 10},
		{Ts: time.Now(), Level: "error", Target: "agent", Message: "boom", ThreadID: &thread, EstimatedBytes: 10},
	})
	if err != nil {
		t.Fatalf("InsertLogs: %v", err)
	}

	rows, err := db.QueryLogs(ctx, LogFilter{ThreadIDs: []string{thread}})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	errRows, err := db.QueryLogs(ctx, LogFilter{Level: "error"})
	if err != nil {
		t.Fatalf("QueryLogs error filter: %v", err)
	}
	if len(errRows) != 1 || errRows[0].Message != "boom" {
		t.Fatalf("unexpected error rows: %+v", errRows)
	}
}

func TestInsertLogsPartitionRetention(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	thread := "thread-big"

	var entries []LogEntry
	for i := 0; i < 2000; i++ {
		entries = append(entries, LogEntry{
			Ts: time.Now(), Level: "info", Target: "agent", Message: "x",
			ThreadID: &thread, EstimatedBytes: 10_000, // 2000 * 10KB = ~20MB > 10MB budget
		})
	}
	if err := db.InsertLogs(ctx, entries); err != nil {
		t.Fatalf("InsertLogs: %v", err)
	}

	rows, err := db.QueryLogs(ctx, LogFilter{ThreadIDs: []string{thread}})
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	var total int64
	for _, r := range rows {
		total += r.EstimatedBytes
	}
	if total > partitionBudgetBytes {
		t.Fatalf("partition bytes after insert = %d, want <= %d", total, partitionBudgetBytes)
	}
}

func TestTryClaimPhase1JobIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res1, err := db.TryClaimPhase1Job(ctx, "thread-1", "cwd", "/repo", "owner-a", time.Now(), 60)
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}

	res2, err := db.TryClaimPhase1Job(ctx, "thread-1", "cwd", "/repo", "owner-a", time.Now(), 60)
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	if res1.Token != res2.Token {
		t.Fatalf("re-claim by same owner before expiry should return same lease: %q vs %q", res1.Token, res2.Token)
	}

	_, err = db.TryClaimPhase1Job(ctx, "thread-1", "cwd", "/repo", "owner-b", time.Now(), 60)
	if err != ErrAlreadyHeld {
		t.Fatalf("expected ErrAlreadyHeld for a different owner, got %v", err)
	}
}

func TestMemoryConsolidationLockRelease(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.TryAcquireMemoryConsolidationLock(ctx, "user", "u1", "owner-a", 60)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := db.ReleaseMemoryConsolidationLock(ctx, "user", "u1", res.Token); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := db.TryAcquireMemoryConsolidationLock(ctx, "user", "u1", "owner-b", 60); err != nil {
		t.Fatalf("acquire after release should succeed: %v", err)
	}
}

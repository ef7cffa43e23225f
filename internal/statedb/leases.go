package statedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyHeld is returned by TryClaimPhase1Job / TryAcquireMemoryLock
// when a non-stale lease is already held by a different token holder.
var ErrAlreadyHeld = errors.New("statedb: lease already held")

// ClaimResult is returned on a successful claim/acquire.
type ClaimResult struct {
	Token string
}

// TryClaimPhase1Job attempts an atomic lease claim for (thread_id,
// scope_kind, scope_key), per spec.md §4.E. A caller holding the returned
// token may perform the phase-1 extraction upsert; a write presenting a
// stale or wrong token is rejected by VerifyPhase1Token.
func (db *DB) TryClaimPhase1Job(ctx context.Context, threadID, scopeKind, scopeKey, owner string, sourceTs time.Time, leaseSecs int) (ClaimResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("statedb: claim phase1 job: begin: %w", err)
	}
	defer tx.Rollback()

	var existingOwner, existingToken, leasedAt string
	var existingLeaseSecs int
	row := tx.QueryRowContext(ctx, `SELECT owner, token, leased_at, lease_secs FROM phase1_jobs WHERE thread_id = ? AND scope_kind = ? AND scope_key = ?`, threadID, scopeKind, scopeKey)
	err = row.Scan(&existingOwner, &existingToken, &leasedAt, &existingLeaseSecs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No existing lease: claim fresh.
	case err != nil:
		return ClaimResult{}, fmt.Errorf("statedb: claim phase1 job: query: %w", err)
	default:
		leasedAtTime, _ := time.Parse(time.RFC3339Nano, leasedAt)
		stale := time.Since(leasedAtTime) > time.Duration(existingLeaseSecs)*time.Second
		if !stale {
			if existingOwner == owner {
				// Idempotent re-claim by the same owner before expiry
				// returns the same lease (spec.md §8 Idempotence).
				if err := tx.Commit(); err != nil {
					return ClaimResult{}, err
				}
				return ClaimResult{Token: existingToken}, nil
			}
			return ClaimResult{}, ErrAlreadyHeld
		}
	}

	token := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO phase1_jobs (thread_id, scope_kind, scope_key, owner, token, source_ts, leased_at, lease_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, scope_kind, scope_key) DO UPDATE SET
			owner = excluded.owner, token = excluded.token, source_ts = excluded.source_ts,
			leased_at = excluded.leased_at, lease_secs = excluded.lease_secs
	`, threadID, scopeKind, scopeKey, owner, token, sourceTs.UTC().Format(time.RFC3339Nano), now, leaseSecs); err != nil {
		return ClaimResult{}, fmt.Errorf("statedb: claim phase1 job: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ClaimResult{}, fmt.Errorf("statedb: claim phase1 job: commit: %w", err)
	}
	return ClaimResult{Token: token}, nil
}

// VerifyPhase1Token rejects an upsert whose token no longer matches the
// live lease for (threadID, scopeKind, scopeKey) — used by callers before
// writing the phase-1 extraction result.
func (db *DB) VerifyPhase1Token(ctx context.Context, threadID, scopeKind, scopeKey, token string) (bool, error) {
	var current string
	err := db.conn.QueryRowContext(ctx, `SELECT token FROM phase1_jobs WHERE thread_id = ? AND scope_kind = ? AND scope_key = ?`, threadID, scopeKind, scopeKey).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("statedb: verify phase1 token: %w", err)
	}
	return current == token, nil
}

// TryAcquireMemoryConsolidationLock is an owner-scoped mutex per (scope_kind,
// scope_key) with a lease, per spec.md §4.E.
func (db *DB) TryAcquireMemoryConsolidationLock(ctx context.Context, scopeKind, scopeKey, owner string, leaseSecs int) (ClaimResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("statedb: acquire memory lock: begin: %w", err)
	}
	defer tx.Rollback()

	var existingOwner, existingToken, acquiredAt string
	var existingLeaseSecs int
	row := tx.QueryRowContext(ctx, `SELECT owner, token, acquired_at, lease_secs FROM memory_locks WHERE scope_kind = ? AND scope_key = ?`, scopeKind, scopeKey)
	err = row.Scan(&existingOwner, &existingToken, &acquiredAt, &existingLeaseSecs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return ClaimResult{}, fmt.Errorf("statedb: acquire memory lock: query: %w", err)
	default:
		acquiredAtTime, _ := time.Parse(time.RFC3339Nano, acquiredAt)
		stale := time.Since(acquiredAtTime) > time.Duration(existingLeaseSecs)*time.Second
		if !stale {
			if existingOwner == owner {
				if err := tx.Commit(); err != nil {
					return ClaimResult{}, err
				}
				return ClaimResult{Token: existingToken}, nil
			}
			return ClaimResult{}, ErrAlreadyHeld
		}
	}

	token := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memory_locks (scope_kind, scope_key, owner, token, acquired_at, lease_secs)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope_kind, scope_key) DO UPDATE SET
			owner = excluded.owner, token = excluded.token, acquired_at = excluded.acquired_at, lease_secs = excluded.lease_secs
	`, scopeKind, scopeKey, owner, token, now, leaseSecs); err != nil {
		return ClaimResult{}, fmt.Errorf("statedb: acquire memory lock: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ClaimResult{}, fmt.Errorf("statedb: acquire memory lock: commit: %w", err)
	}
	return ClaimResult{Token: token}, nil
}

// ReleaseMemoryConsolidationLock releases the lock held under token, if it
// is still the current lease holder.
func (db *DB) ReleaseMemoryConsolidationLock(ctx context.Context, scopeKind, scopeKey, token string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM memory_locks WHERE scope_kind = ? AND scope_key = ? AND token = ?`, scopeKind, scopeKey, token)
	if err != nil {
		return fmt.Errorf("statedb: release memory lock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyHeld
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncState is the resumable cursor for one mailbox's live incremental sync.
// LastUID is monotonically non-decreasing; the next fetch window starts at
// LastUID+1. FailedUID/FailedAttempts track the current poison-message
// candidate (consecutive parse failures on the same UID).
type SyncState struct {
	Mailbox        string `json:"mailbox"`
	LastUID        uint32 `json:"last_uid"`
	FailedUID      uint32 `json:"failed_uid"`
	FailedAttempts int    `json:"failed_attempts"`
	UpdatedAt      string `json:"updated_at"`
}

// GetSyncState returns the cursor row, or a zero-valued state when the
// mailbox has never been synced.
func GetSyncState(ctx context.Context, db *sql.DB, mailbox string) (SyncState, error) {
	st := SyncState{Mailbox: mailbox}
	err := db.QueryRowContext(ctx, `
SELECT last_uid, failed_uid, failed_attempts, updated_at
FROM email_sync_state WHERE mailbox = ?;`, mailbox).
		Scan(&st.LastUID, &st.FailedUID, &st.FailedAttempts, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get sync state %q: %w", mailbox, err)
	}
	return st, nil
}

// AdvanceLastUID persists a new cursor position. The MAX() guard keeps the
// cursor monotonic even if callers race or replay.
func AdvanceLastUID(ctx context.Context, db *sql.DB, mailbox string, uid uint32) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
INSERT INTO email_sync_state (mailbox, last_uid, updated_at)
VALUES (?,?,?)
ON CONFLICT(mailbox) DO UPDATE SET
  last_uid   = MAX(email_sync_state.last_uid, excluded.last_uid),
  updated_at = excluded.updated_at;`,
		mailbox, uid, now,
	)
	if err != nil {
		return fmt.Errorf("advance last_uid %q -> %d: %w", mailbox, uid, err)
	}
	return nil
}

// RecordParseFailure bumps the consecutive-failure counter for uid, or
// resets it to 1 when the failing UID changed. Returns the new attempt
// count so the caller can decide when to dead-letter.
func RecordParseFailure(ctx context.Context, db *sql.DB, mailbox string, uid uint32) (int, error) {
	st, err := GetSyncState(ctx, db, mailbox)
	if err != nil {
		return 0, err
	}
	attempts := 1
	if st.FailedUID == uid {
		attempts = st.FailedAttempts + 1
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `
INSERT INTO email_sync_state (mailbox, last_uid, failed_uid, failed_attempts, updated_at)
VALUES (?,0,?,?,?)
ON CONFLICT(mailbox) DO UPDATE SET
  failed_uid      = excluded.failed_uid,
  failed_attempts = excluded.failed_attempts,
  updated_at      = excluded.updated_at;`,
		mailbox, uid, attempts, now,
	)
	if err != nil {
		return 0, fmt.Errorf("record parse failure %q uid=%d: %w", mailbox, uid, err)
	}
	return attempts, nil
}

// ClearParseFailure resets the poison-message tracking after a successful
// parse or a dead-letter advance.
func ClearParseFailure(ctx context.Context, db *sql.DB, mailbox string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
UPDATE email_sync_state SET failed_uid = 0, failed_attempts = 0, updated_at = ?
WHERE mailbox = ?;`, now, mailbox)
	if err != nil {
		return fmt.Errorf("clear parse failure %q: %w", mailbox, err)
	}
	return nil
}

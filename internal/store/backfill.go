package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BackfillState tracks the descending historical header crawl for one
// mailbox. HighestUIDSeen is captured once at initialization and never
// changes; LowestUIDProcessed descends toward 1 as slices complete; the
// crawl is terminal once Active is false.
type BackfillState struct {
	Mailbox            string        `json:"mailbox"`
	HighestUIDSeen     sql.NullInt64 `json:"-"`
	LowestUIDProcessed uint32        `json:"lowest_uid_processed"`
	Active             bool          `json:"active"`
	StartedAt          string        `json:"started_at,omitempty"`
	UpdatedAt          string        `json:"updated_at,omitempty"`
	ModelVersion       string        `json:"model_version"`
}

// Initialized reports whether the UID ceiling has been captured yet.
func (s BackfillState) Initialized() bool { return s.HighestUIDSeen.Valid }

// Ceiling returns the captured UID ceiling (0 when uninitialized).
func (s BackfillState) Ceiling() uint32 {
	if !s.HighestUIDSeen.Valid {
		return 0
	}
	return uint32(s.HighestUIDSeen.Int64)
}

// GetBackfillState returns the crawl row, or an uninitialized active state
// when the mailbox has never been backfilled.
func GetBackfillState(ctx context.Context, db *sql.DB, mailbox string) (BackfillState, error) {
	st := BackfillState{Mailbox: mailbox, Active: true}
	var active int
	var started, updated sql.NullString
	err := db.QueryRowContext(ctx, `
SELECT highest_uid_seen, lowest_uid_processed, active, started_at, updated_at, model_version
FROM email_backfill_state WHERE mailbox = ?;`, mailbox).
		Scan(&st.HighestUIDSeen, &st.LowestUIDProcessed, &active, &started, &updated, &st.ModelVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("get backfill state %q: %w", mailbox, err)
	}
	st.Active = active != 0
	st.StartedAt = started.String
	st.UpdatedAt = updated.String
	return st, nil
}

// InitBackfill captures the UID ceiling for a mailbox. ceiling 0 (empty
// mailbox) records a terminal, inactive crawl; any non-empty mailbox starts
// active so even a lone UID 1 gets crawled.
func InitBackfill(ctx context.Context, db *sql.DB, mailbox string, ceiling uint32, modelVersion string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	active := 1
	if ceiling == 0 {
		active = 0
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO email_backfill_state
  (mailbox, highest_uid_seen, lowest_uid_processed, active, started_at, updated_at, model_version)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(mailbox) DO UPDATE SET
  highest_uid_seen     = COALESCE(email_backfill_state.highest_uid_seen, excluded.highest_uid_seen),
  lowest_uid_processed = excluded.lowest_uid_processed,
  active               = excluded.active,
  updated_at           = excluded.updated_at,
  model_version        = excluded.model_version;`,
		mailbox, ceiling, ceiling, active, now, now, modelVersion,
	)
	if err != nil {
		return fmt.Errorf("init backfill %q: %w", mailbox, err)
	}
	return nil
}

// AdvanceBackfill moves the low-water mark down after a completed slice and
// flips the crawl inactive once it reaches the bottom.
func AdvanceBackfill(ctx context.Context, db *sql.DB, mailbox string, newLowest uint32, active bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	a := 0
	if active {
		a = 1
	}
	_, err := db.ExecContext(ctx, `
UPDATE email_backfill_state
SET lowest_uid_processed = ?, active = ?, updated_at = ?
WHERE mailbox = ?;`, newLowest, a, now, mailbox)
	if err != nil {
		return fmt.Errorf("advance backfill %q -> %d: %w", mailbox, newLowest, err)
	}
	return nil
}

// HeaderCacheEntry is one triaged historical message.
type HeaderCacheEntry struct {
	UID          uint32    `json:"uid"`
	Subject      string    `json:"subject"`
	FromEmail    string    `json:"from_email"`
	Date         time.Time `json:"date"`
	Size         int64     `json:"size"`
	Decision     string    `json:"decision"`
	Score        int       `json:"score"`
	Reason       string    `json:"reason"`
	ModelVersion string    `json:"model_version"`
}

// InsertHeaderCache inserts one entry, skipping UIDs already cached.
// Returns whether a new row was written.
func InsertHeaderCache(ctx context.Context, db *sql.DB, e HeaderCacheEntry) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	var date any
	if !e.Date.IsZero() {
		date = e.Date.UTC().Format(time.RFC3339)
	}
	res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO email_header_cache
  (uid, subject, from_email, date, size, decision, score, reason, model_version, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?);`,
		e.UID, e.Subject, e.FromEmail, date, e.Size,
		e.Decision, e.Score, e.Reason, e.ModelVersion, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert header cache uid=%d: %w", e.UID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkHeaderPromoted flags a cached header whose message was later hydrated
// into a full stored email.
func MarkHeaderPromoted(ctx context.Context, db *sql.DB, uid uint32) error {
	_, err := db.ExecContext(ctx, `
UPDATE email_header_cache SET promoted = 1 WHERE uid = ?;`, uid)
	if err != nil {
		return fmt.Errorf("mark header promoted uid=%d: %w", uid, err)
	}
	return nil
}

// CountHeaderCache is a test/status helper.
func CountHeaderCache(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_header_cache;`).Scan(&n)
	return n, err
}

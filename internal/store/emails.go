package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Parse status lifecycle for the enrichment step.
const (
	ParseStatusPending = "pending"
	ParseStatusParsed  = "parsed"
	ParseStatusError   = "error"
)

type Email struct {
	ID                       int64   `json:"id"`
	MessageID                string  `json:"message_id"`
	Date                     string  `json:"date"`
	Subject                  string  `json:"subject"`
	FromEmail                string  `json:"from_email"`
	ToEmail                  string  `json:"to_email"`
	Vendor                   string  `json:"vendor"`
	Class                    string  `json:"class"`
	Body                     string  `json:"body"`
	ParseStatus              string  `json:"parse_status"`
	ParsedJSON               string  `json:"parsed_json,omitempty"`
	UID                      uint32  `json:"uid"`
	Mailbox                  string  `json:"mailbox"`
	ClassificationConfidence float64 `json:"classification_confidence"`
	ClassificationReason     string  `json:"classification_reason"`
	CreatedAt                string  `json:"created_at"`
	UpdatedAt                string  `json:"updated_at"`
}

// EmailUpsert is the write shape for one classified message.
type EmailUpsert struct {
	MessageID  string
	Date       time.Time
	Subject    string
	FromEmail  string
	ToEmail    string
	Vendor     string
	Class      string
	Body       string
	RawHeaders string
	RawHTML    string
	UID        uint32
	Mailbox    string
	Confidence float64
	Reason     string
}

// UpsertEmail inserts a new row or, when message_id already exists, updates
// the content and classification fields in place and bumps updated_at.
// parse_status is only initialized on insert so enrichment state survives a
// re-fetch of the same message.
func UpsertEmail(ctx context.Context, db *sql.DB, e EmailUpsert) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var date any
	if !e.Date.IsZero() {
		date = e.Date.UTC().Format(time.RFC3339)
	}

	_, err := db.ExecContext(ctx, `
INSERT INTO emails (
  message_id, date, subject, from_email, to_email, vendor, class,
  body, raw_headers, raw_html, uid, mailbox,
  classification_confidence, classification_reason, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(message_id) DO UPDATE SET
  date                      = excluded.date,
  subject                   = excluded.subject,
  from_email                = excluded.from_email,
  to_email                  = excluded.to_email,
  vendor                    = excluded.vendor,
  class                     = excluded.class,
  body                      = excluded.body,
  raw_headers               = excluded.raw_headers,
  raw_html                  = excluded.raw_html,
  uid                       = excluded.uid,
  mailbox                   = excluded.mailbox,
  classification_confidence = excluded.classification_confidence,
  classification_reason     = excluded.classification_reason,
  updated_at                = excluded.updated_at;`,
		e.MessageID, date, e.Subject, e.FromEmail, e.ToEmail, e.Vendor, e.Class,
		e.Body, e.RawHeaders, e.RawHTML, e.UID, e.Mailbox,
		e.Confidence, e.Reason, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert email %s: %w", e.MessageID, err)
	}
	return nil
}

type ListEmailsOpts struct {
	Class string
	Limit int
}

// ListEmails returns stored messages, newest first.
func ListEmails(ctx context.Context, db *sql.DB, opts ListEmailsOpts) ([]Email, error) {
	if opts.Limit <= 0 || opts.Limit > 1000 {
		opts.Limit = 100
	}

	query := `
SELECT id, message_id, COALESCE(date,''), subject, from_email, to_email, vendor, class,
       body, parse_status, COALESCE(parsed_json,''), uid, mailbox,
       classification_confidence, classification_reason, created_at, updated_at
FROM emails`
	args := []any{}
	if opts.Class != "" {
		query += ` WHERE class = ?`
		args = append(args, opts.Class)
	}
	query += ` ORDER BY COALESCE(date, created_at) DESC LIMIT ?;`
	args = append(args, opts.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Email
	for rows.Next() {
		var e Email
		if err := rows.Scan(
			&e.ID, &e.MessageID, &e.Date, &e.Subject, &e.FromEmail, &e.ToEmail,
			&e.Vendor, &e.Class, &e.Body, &e.ParseStatus, &e.ParsedJSON,
			&e.UID, &e.Mailbox, &e.ClassificationConfidence, &e.ClassificationReason,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PendingEmails selects up to limit rows awaiting enrichment, most recent
// first.
func PendingEmails(ctx context.Context, db *sql.DB, limit int) ([]Email, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, `
SELECT id, message_id, COALESCE(date,''), subject, from_email, to_email, vendor, class,
       body, parse_status, COALESCE(parsed_json,''), uid, mailbox,
       classification_confidence, classification_reason, created_at, updated_at
FROM emails
WHERE parse_status = ?
ORDER BY COALESCE(date, created_at) DESC
LIMIT ?;`, ParseStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Email
	for rows.Next() {
		var e Email
		if err := rows.Scan(
			&e.ID, &e.MessageID, &e.Date, &e.Subject, &e.FromEmail, &e.ToEmail,
			&e.Vendor, &e.Class, &e.Body, &e.ParseStatus, &e.ParsedJSON,
			&e.UID, &e.Mailbox, &e.ClassificationConfidence, &e.ClassificationReason,
			&e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EnrichmentResult records a successful LLM parse against one email row.
type EnrichmentResult struct {
	ParsedJSON       string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

func MarkParsed(ctx context.Context, db *sql.DB, emailID int64, r EnrichmentResult) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
UPDATE emails SET
  parse_status = ?, parsed_json = ?, parsed_at = ?, openai_model = ?,
  openai_prompt_tokens = ?, openai_completion_tokens = ?, openai_total_tokens = ?,
  openai_cost_usd = ?, updated_at = ?
WHERE id = ?;`,
		ParseStatusParsed, r.ParsedJSON, now, r.Model,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens,
		r.CostUSD, now, emailID,
	)
	if err != nil {
		return fmt.Errorf("mark parsed email %d: %w", emailID, err)
	}
	return nil
}

func MarkParseError(ctx context.Context, db *sql.DB, emailID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
UPDATE emails SET parse_status = ?, updated_at = ? WHERE id = ?;`,
		ParseStatusError, now, emailID,
	)
	if err != nil {
		return fmt.Errorf("mark parse error email %d: %w", emailID, err)
	}
	return nil
}

// CountEmails is a test/status helper.
func CountEmails(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emails;`).Scan(&n)
	return n, err
}

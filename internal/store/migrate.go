package store

import (
	"database/sql"
	"fmt"
)

// migration is one ordered schema step. Safe to call Migrate every cycle:
// applied versions are skipped via schema_version.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS email_sync_state (
  mailbox    TEXT PRIMARY KEY,
  last_uid   INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS email_backfill_state (
  mailbox              TEXT PRIMARY KEY,
  highest_uid_seen     INTEGER,
  lowest_uid_processed INTEGER NOT NULL DEFAULT 0,
  active               INTEGER NOT NULL DEFAULT 1,
  started_at           TEXT,
  updated_at           TEXT NOT NULL,
  model_version        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS email_header_cache (
  uid           INTEGER PRIMARY KEY,
  subject       TEXT NOT NULL DEFAULT '',
  from_email    TEXT NOT NULL DEFAULT '',
  date          TEXT,
  size          INTEGER NOT NULL DEFAULT 0,
  decision      TEXT NOT NULL,
  score         INTEGER NOT NULL DEFAULT 0,
  reason        TEXT NOT NULL DEFAULT '',
  model_version TEXT NOT NULL DEFAULT '',
  promoted      INTEGER NOT NULL DEFAULT 0,
  created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
  id                        INTEGER PRIMARY KEY AUTOINCREMENT,
  message_id                TEXT NOT NULL UNIQUE,
  date                      TEXT,
  subject                   TEXT NOT NULL DEFAULT '',
  from_email                TEXT NOT NULL DEFAULT '',
  to_email                  TEXT NOT NULL DEFAULT '',
  vendor                    TEXT NOT NULL DEFAULT '',
  class                     TEXT NOT NULL DEFAULT '',
  body                      TEXT NOT NULL DEFAULT '',
  raw_headers               TEXT NOT NULL DEFAULT '',
  raw_html                  TEXT NOT NULL DEFAULT '',
  parsed_json               TEXT,
  parse_status              TEXT NOT NULL DEFAULT 'pending',
  parsed_at                 TEXT,
  openai_model              TEXT NOT NULL DEFAULT '',
  uid                       INTEGER NOT NULL DEFAULT 0,
  mailbox                   TEXT NOT NULL DEFAULT '',
  classification_confidence REAL NOT NULL DEFAULT 0,
  classification_reason     TEXT NOT NULL DEFAULT '',
  openai_prompt_tokens      INTEGER NOT NULL DEFAULT 0,
  openai_completion_tokens  INTEGER NOT NULL DEFAULT 0,
  openai_total_tokens       INTEGER NOT NULL DEFAULT 0,
  openai_cost_usd           REAL NOT NULL DEFAULT 0,
  created_at                TEXT NOT NULL,
  updated_at                TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_emails_class ON emails(class);
CREATE INDEX IF NOT EXISTS idx_emails_parse_status ON emails(parse_status);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);

CREATE TABLE IF NOT EXISTS ingestion_log (
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at TEXT NOT NULL,
  phase      TEXT NOT NULL,
  status     TEXT NOT NULL,
  uid        INTEGER NOT NULL DEFAULT 0,
  message_id TEXT NOT NULL DEFAULT '',
  subject    TEXT NOT NULL DEFAULT '',
  class      TEXT NOT NULL DEFAULT '',
  vendor     TEXT NOT NULL DEFAULT '',
  detail     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_ingestion_log_phase ON ingestion_log(phase);
CREATE INDEX IF NOT EXISTS idx_ingestion_log_created ON ingestion_log(created_at);

CREATE TABLE IF NOT EXISTS openai_call_log (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  email_id          INTEGER NOT NULL,
  model             TEXT NOT NULL DEFAULT '',
  prompt_tokens     INTEGER NOT NULL DEFAULT 0,
  completion_tokens INTEGER NOT NULL DEFAULT 0,
  total_tokens      INTEGER NOT NULL DEFAULT 0,
  cost_usd          REAL NOT NULL DEFAULT 0,
  request_json      TEXT NOT NULL DEFAULT '',
  response_json     TEXT NOT NULL DEFAULT '',
  created_at        TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE email_sync_state ADD COLUMN failed_uid INTEGER NOT NULL DEFAULT 0;
ALTER TABLE email_sync_state ADD COLUMN failed_attempts INTEGER NOT NULL DEFAULT 0;

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}

// Migrate applies outstanding migrations in order. Idempotent.
func Migrate(db *sql.DB) error {
	currentVersion := 0

	var tableCount int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version';`,
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version;`).Scan(&currentVersion)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

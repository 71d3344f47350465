package store

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"
)

// Ingestion log phases.
const (
	PhaseRun      = "run"
	PhaseIMAP     = "imap"
	PhaseIMAPDbg  = "imap_dbg"
	PhaseSearch   = "search"
	PhaseFetch    = "fetch"
	PhaseParse    = "parse"
	PhaseBackfill = "backfill"
	PhaseSchema   = "schema"
)

// LogEntry is one append-only ingestion_log row.
type LogEntry struct {
	ID        int64  `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Phase     string `json:"phase"`
	Status    string `json:"status"`
	UID       uint32 `json:"uid,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Class     string `json:"class,omitempty"`
	Vendor    string `json:"vendor,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// IngestionLogger is a best-effort observability sink: log-write failures
// never fail ingestion, but the first few are surfaced to the console so a
// broken log table doesn't fail silently. Verbose protocol-debug entries
// (phase imap_dbg) are volume-capped per run.
type IngestionLogger struct {
	db       *sql.DB
	debugCap int

	mu       sync.Mutex
	surfaced int
	dbgCount int
}

const maxSurfacedLogErrors = 3

func NewIngestionLogger(db *sql.DB, debugCap int) *IngestionLogger {
	return &IngestionLogger{db: db, debugCap: debugCap}
}

// Log appends one entry. Fire-and-forget by contract.
func (l *IngestionLogger) Log(e LogEntry) {
	if l == nil || l.db == nil {
		return
	}

	if e.Phase == PhaseIMAPDbg {
		l.mu.Lock()
		l.dbgCount++
		over := l.debugCap > 0 && l.dbgCount > l.debugCap
		l.mu.Unlock()
		if over {
			return
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := l.db.Exec(`
INSERT INTO ingestion_log (created_at, phase, status, uid, message_id, subject, class, vendor, detail)
VALUES (?,?,?,?,?,?,?,?,?);`,
		now, e.Phase, e.Status, e.UID, e.MessageID, e.Subject, e.Class, e.Vendor, e.Detail,
	)
	if err != nil {
		l.mu.Lock()
		l.surfaced++
		n := l.surfaced
		l.mu.Unlock()
		if n <= maxSurfacedLogErrors {
			log.Printf("[ingest] log write failed (%d/%d surfaced): %v", n, maxSurfacedLogErrors, err)
		}
	}
}

// TailLog reads the most recent entries, optionally filtered by phase.
func TailLog(ctx context.Context, db *sql.DB, phase string, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `
SELECT id, created_at, phase, status, uid, message_id, subject, class, vendor, detail
FROM ingestion_log`
	args := []any{}
	if phase != "" {
		query += ` WHERE phase = ?`
		args = append(args, phase)
	}
	query += ` ORDER BY id DESC LIMIT ?;`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(
			&e.ID, &e.CreatedAt, &e.Phase, &e.Status, &e.UID,
			&e.MessageID, &e.Subject, &e.Class, &e.Vendor, &e.Detail,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

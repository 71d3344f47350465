package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"sync/atomic"
	"time"

	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/events"
	"jobtrail-engine/internal/ingest"
	"jobtrail-engine/internal/store"
)

type IngestHandler struct {
	DB           *sql.DB
	CfgVal       *atomic.Value // config.Config
	IngestStatus *atomic.Value // httpapi.IngestStatus
	Gate         *ingest.Gate
	Hub          *events.Hub
	RunIngest    func(ctx context.Context, cfg config.Config) (ingest.CycleStats, error)
}

func (h IngestHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.IngestStatus.Load().(IngestStatus)
	// The gate also covers scheduler-initiated cycles the handler never saw.
	st.Running = h.Gate.Running()
	state, err := store.GetSyncState(r.Context(), h.DB, h.CfgVal.Load().(config.Config).Email.Mailbox)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, map[string]any{
		"status":     st,
		"sync_state": state,
	})
}

func (h IngestHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.Gate.TryAcquire() {
		writeJSON(w, map[string]any{"ok": false, "msg": "already running"})
		return
	}

	st := h.IngestStatus.Load().(IngestStatus)
	h.IngestStatus.Store(IngestStatus{
		LastRunAt: time.Now().Format(time.RFC3339),
		Running:   true,
		LastOkAt:  st.LastOkAt,
	})

	go func() {
		cfg := h.CfgVal.Load().(config.Config)
		stats, err := h.RunIngest(context.Background(), cfg)

		now := time.Now().Format(time.RFC3339)
		next := h.IngestStatus.Load().(IngestStatus)
		next.Running = false
		next.LastRunAt = now
		next.LastRunID = stats.RunID
		next.LastFetched = stats.Fetched
		next.LastStored = stats.Stored
		next.LastSkipped = stats.Skipped
		if err != nil {
			next.LastError = err.Error()
		} else {
			next.LastError = ""
			next.LastOkAt = now
		}
		h.IngestStatus.Store(next)
		h.Gate.Release()
	}()

	writeJSON(w, map[string]any{"ok": true})
}

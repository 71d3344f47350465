package httpapi

import (
	"database/sql"
	"net/http"
	"sync/atomic"

	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/store"
)

type BackfillHandler struct {
	DB     *sql.DB
	CfgVal *atomic.Value // config.Config
}

func (h BackfillHandler) Status(w http.ResponseWriter, r *http.Request) {
	cfg := h.CfgVal.Load().(config.Config)
	state, err := store.GetBackfillState(r.Context(), h.DB, cfg.Email.Mailbox)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	cached, err := store.CountHeaderCache(r.Context(), h.DB)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}

	out := map[string]any{
		"mailbox":              state.Mailbox,
		"initialized":          state.Initialized(),
		"active":               state.Active,
		"lowest_uid_processed": state.LowestUIDProcessed,
		"started_at":           state.StartedAt,
		"updated_at":           state.UpdatedAt,
		"model_version":        state.ModelVersion,
		"cached_headers":       cached,
	}
	if state.Initialized() {
		out["highest_uid_seen"] = state.Ceiling()
	}
	writeJSON(w, out)
}

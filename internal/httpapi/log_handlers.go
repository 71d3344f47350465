package httpapi

import (
	"database/sql"
	"net/http"

	"jobtrail-engine/internal/store"
)

type LogHandler struct {
	DB *sql.DB
}

func (h LogHandler) Tail(w http.ResponseWriter, r *http.Request) {
	entries, err := store.TailLog(r.Context(), h.DB, r.URL.Query().Get("phase"), queryInt(r, "limit", 100))
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if entries == nil {
		entries = []store.LogEntry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

package httpapi

import (
	"database/sql"
	"net/http"

	"jobtrail-engine/internal/store"
)

type EmailsHandler struct {
	DB *sql.DB
}

func (h EmailsHandler) List(w http.ResponseWriter, r *http.Request) {
	emails, err := store.ListEmails(r.Context(), h.DB, store.ListEmailsOpts{
		Class: r.URL.Query().Get("class"),
		Limit: queryInt(r, "limit", 100),
	})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	if emails == nil {
		emails = []store.Email{}
	}
	writeJSON(w, map[string]any{"emails": emails})
}

package httpapi

import "net/http"

// NewMux returns the raw mux so main() can wrap it with middleware.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Health
	hh := HealthHandler{}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	// Ingestion
	ih := IngestHandler{
		DB:           d.DB,
		CfgVal:       d.CfgVal,
		IngestStatus: d.IngestStatus,
		Gate:         d.Gate,
		Hub:          d.Hub,
		RunIngest:    d.RunIngest,
	}
	mux.HandleFunc("/ingest/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: ih.Run,
	}))
	mux.HandleFunc("/ingest/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ih.Status,
	}))

	// Stored emails
	emh := EmailsHandler{DB: d.DB}
	mux.HandleFunc("/emails", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: emh.List,
	}))

	// Backfill crawl
	bh := BackfillHandler{DB: d.DB, CfgVal: d.CfgVal}
	mux.HandleFunc("/backfill/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: bh.Status,
	}))

	// Ingestion log
	lh := LogHandler{DB: d.DB}
	mux.HandleFunc("/log", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: lh.Tail,
	}))

	// Config
	ch := ConfigHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
	}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{CfgVal: d.CfgVal}
	mux.HandleFunc("/api/secrets/imap", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetIMAPPassword,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}

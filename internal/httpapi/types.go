package httpapi

type IngestStatus struct {
	LastRunAt   string `json:"last_run_at"`
	LastOkAt    string `json:"last_ok_at"`
	LastError   string `json:"last_error"`
	LastRunID   string `json:"last_run_id"`
	LastFetched int    `json:"last_fetched"`
	LastStored  int    `json:"last_stored"`
	LastSkipped int    `json:"last_skipped"`
	Running     bool   `json:"running"`
}

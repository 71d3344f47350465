package httpapi

import (
	"context"
	"database/sql"
	"sync/atomic"

	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/events"
	"jobtrail-engine/internal/ingest"
)

type Deps struct {
	DB *sql.DB

	Hub *events.Hub

	// Atomic stores
	CfgVal       *atomic.Value // stores config.Config
	IngestStatus *atomic.Value // stores httpapi.IngestStatus

	// Gate shared with the scheduler: one ingestion cycle per process.
	Gate *ingest.Gate

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Ingestion entrypoint (inject for testability)
	RunIngest func(ctx context.Context, cfg config.Config) (ingest.CycleStats, error)
}

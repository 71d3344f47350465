package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"jobtrail-engine/internal/classify"
	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/enrich"
	"jobtrail-engine/internal/events"
	"jobtrail-engine/internal/httpapi"
	"jobtrail-engine/internal/ingest"
	"jobtrail-engine/internal/scheduler"
	"jobtrail-engine/internal/secrets"
	"jobtrail-engine/internal/store"
)

func main() {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	dataDir := os.Getenv("JOBTRAIL_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// One engine per data dir. A second instance would race the sync
	// cursor and the sqlite file.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("engine lock: %v", err)
	}
	if !locked {
		log.Fatalf("another engine is already running in %s", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	// Load config and keep it reloadable.
	loadCfg := func() (config.Config, error) {
		cfg, err := config.Load(userCfgPath)
		if err != nil {
			return cfg, err
		}
		// Env wins; the keyring is the fallback for desktop installs.
		if cfg.Email.AppPassword == "" {
			if pw, kerr := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg)); kerr == nil {
				cfg.Email.AppPassword = pw
			}
		}
		return cfg, nil
	}

	var cfgVal atomic.Value // stores config.Config
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "jobtrail.db")
	sdb, err := store.Open(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer sdb.Close()
	db := sdb.Pool

	if err := store.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hub := events.NewHub()

	// Shared between the scheduler and the HTTP trigger so at most one
	// ingestion cycle runs at a time.
	gate := new(ingest.Gate)

	var ingestStatus atomic.Value
	ingestStatus.Store(httpapi.IngestStatus{})

	runIngest := func(ctx context.Context, cfg config.Config) (ingest.CycleStats, error) {
		var completer enrich.Completer
		if cfg.OpenAI.APIKey != "" {
			completer = enrich.NewOpenAIClient(cfg.OpenAI.APIKey)
		}
		r := ingest.Runner{
			DB:         db,
			Cfg:        cfg,
			Hub:        hub,
			Dial:       ingest.DialIMAP,
			Classifier: classify.New(cfg.Scoring.ExtraRules),
			Completer:  completer,
			Limiter:    rate.NewLimiter(rate.Limit(2), 2),
		}
		return r.RunOnce(ctx)
	}

	mux := httpapi.NewMux(httpapi.Deps{
		DB:           db,
		Hub:          hub,
		CfgVal:       &cfgVal,
		IngestStatus: &ingestStatus,
		Gate:         gate,
		UserCfgPath:  userCfgPath,
		LoadCfg:      loadCfg,
		RunIngest:    runIngest,
	})

	handler := httpapi.Chain(mux,
		httpapi.Recover,
		httpapi.RequestID,
		httpapi.AccessLog,
		httpapi.Cors,
	)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("[engine] listening on http://%s (db=%s, config=%s)", addr, dbPath, userCfgPath)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		interval := time.Duration(cfg.Polling.IngestSeconds) * time.Second
		scheduler.Every(ctx, interval, "ingest", func(ctx context.Context) error {
			if !gate.TryAcquire() {
				log.Print("[ingest] skipping tick: a run is already in progress")
				return nil
			}
			defer gate.Release()
			cur := cfgVal.Load().(config.Config)
			stats, err := runIngest(ctx, cur)
			if err != nil {
				return err
			}
			log.Printf("[ingest] cycle done run_id=%s fetched=%d stored=%d skipped=%d",
				stats.RunID, stats.Fetched, stats.Stored, stats.Skipped)
			return nil
		})
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("[engine] exit: %v", err)
	}
	log.Print("[engine] stopped")
}

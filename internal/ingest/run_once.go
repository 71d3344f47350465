// engine/internal/ingest/run_once.go
package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"jobtrail-engine/internal/classify"
	"jobtrail-engine/internal/config"
	"jobtrail-engine/internal/enrich"
	"jobtrail-engine/internal/events"
	"jobtrail-engine/internal/mailparse"
	"jobtrail-engine/internal/store"
)

// deadLetterAfter is the number of consecutive parse failures on the same
// UID before the cursor is advanced past it.
const deadLetterAfter = 3

// CycleStats summarizes one ingestion cycle.
type CycleStats struct {
	RunID          string       `json:"run_id"`
	HighestUID     uint32       `json:"highest_uid"`
	Fetched        int          `json:"fetched"`
	Stored         int          `json:"stored"`
	Skipped        int          `json:"skipped"`
	Errors         int          `json:"errors"`
	Enriched       enrich.Stats `json:"enriched"`
	BackfillCached int          `json:"backfill_cached"`
}

// Runner owns one mailbox's ingestion pipeline: incremental sync, rule
// classification, idempotent persistence, enrichment, then one backfill
// slice. Everything it needs is injected so tests can run it against a
// fake mailbox and an in-memory database.
type Runner struct {
	DB         *sql.DB
	Cfg        config.Config
	Hub        *events.Hub
	Dial       DialFunc
	Classifier *classify.Classifier
	Completer  enrich.Completer
	Limiter    *rate.Limiter
}

// RunOnce executes a single full cycle. It returns an error only for
// failures that abort the cycle (bad config, connect/select/fetch); the
// enrichment and backfill steps log their own failures and never fail
// the run.
func (r *Runner) RunOnce(ctx context.Context) (stats CycleStats, err error) {
	logger := store.NewIngestionLogger(r.DB, r.Cfg.Email.DebugCap)
	stats.RunID = uuid.NewString()

	start := time.Now()
	logger.Log(store.LogEntry{Phase: store.PhaseRun, Status: "start", Detail: "run_id=" + stats.RunID})

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("ingest panic: %v", rec)
			logger.Log(store.LogEntry{Phase: store.PhaseRun, Status: "fatal", Detail: err.Error()})
		}
	}()

	// Idempotent; covers data dirs created after startup.
	if merr := store.Migrate(r.DB); merr != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseSchema, Status: "error", Detail: merr.Error()})
		return stats, fmt.Errorf("migrate: %w", merr)
	}

	if cerr := config.RequireIngest(r.Cfg); cerr != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseRun, Status: "config_error", Detail: cerr.Error()})
		return stats, cerr
	}

	mailbox := r.Cfg.Email.Mailbox
	debug := func(status, detail string) {
		logger.Log(store.LogEntry{Phase: store.PhaseIMAPDbg, Status: status, Detail: detail})
	}

	mb, derr := r.Dial(ctx, r.Cfg, debug)
	if derr != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseIMAP, Status: "error", Detail: derr.Error()})
		return stats, fmt.Errorf("imap connect: %w", derr)
	}
	defer mb.LogoutAndClose()
	logger.Log(store.LogEntry{Phase: store.PhaseIMAP, Status: "connected", Detail: r.Cfg.Email.IMAPHost})

	highest, serr := mb.Select(mailbox)
	if serr != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseIMAP, Status: "error", Detail: serr.Error()})
		return stats, fmt.Errorf("imap select: %w", serr)
	}
	stats.HighestUID = highest

	state, gerr := store.GetSyncState(ctx, r.DB, mailbox)
	if gerr != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseRun, Status: "error", Detail: gerr.Error()})
		return stats, gerr
	}

	if highest == 0 || state.LastUID >= highest {
		logger.Log(store.LogEntry{
			Phase: store.PhaseSearch, Status: "up_to_date",
			Detail: fmt.Sprintf("last_uid=%d highest=%d", state.LastUID, highest),
		})
	} else {
		if err := r.syncWindow(ctx, mb, logger, state, highest, &stats); err != nil {
			return stats, err
		}
	}

	// Enrichment and backfill are best-effort: each logs its own failures.
	er := enrich.Runner{DB: r.DB, Logger: logger, Completer: r.Completer, Limiter: r.Limiter, Cfg: r.Cfg}
	stats.Enriched = er.Run(ctx)

	cached, berr := r.RunBackfillSlice(ctx, logger)
	if berr != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseBackfill, Status: "error", Detail: berr.Error()})
	}
	stats.BackfillCached = cached

	logger.Log(store.LogEntry{
		Phase: store.PhaseRun, Status: "end",
		Detail: fmt.Sprintf("run_id=%s fetched=%d stored=%d skipped=%d errors=%d enriched=%d backfill_cached=%d elapsed=%s",
			stats.RunID, stats.Fetched, stats.Stored, stats.Skipped, stats.Errors,
			stats.Enriched.Parsed, stats.BackfillCached, time.Since(start).Round(time.Millisecond)),
	})
	r.publish("cycle_done")
	return stats, nil
}

// syncWindow fetches and processes the incremental window. The cursor only
// advances past a UID once every earlier UID in the window has been
// handled; a parse failure blocks advancement so the message is retried
// next cycle, until it dead-letters.
func (r *Runner) syncWindow(ctx context.Context, mb Mailbox, logger *store.IngestionLogger, state store.SyncState, highest uint32, stats *CycleStats) error {
	mailbox := r.Cfg.Email.Mailbox
	from, limit := fetchWindow(state.LastUID, highest, r.Cfg.Email.BatchLimit, r.Cfg.Email.MaxInitialSync)

	logger.Log(store.LogEntry{
		Phase: store.PhaseSearch, Status: "window",
		Detail: fmt.Sprintf("from=%d highest=%d limit=%d last_uid=%d", from, highest, limit, state.LastUID),
	})

	msgs, err := mb.FetchFull(ctx, from, 0)
	if err != nil {
		logger.Log(store.LogEntry{Phase: store.PhaseFetch, Status: "error", Detail: err.Error()})
		return fmt.Errorf("imap fetch: %w", err)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	stats.Fetched = len(msgs)

	cursorBlocked := false
	advance := func(uid uint32) {
		if cursorBlocked {
			return
		}
		if err := store.AdvanceLastUID(ctx, r.DB, mailbox, uid); err != nil {
			logger.Log(store.LogEntry{Phase: store.PhaseRun, Status: "error", UID: uid, Detail: err.Error()})
			cursorBlocked = true
		}
	}

	for _, m := range msgs {
		parsed, perr := mailparse.Parse(m.Raw)
		if perr != nil {
			stats.Errors++
			attempts, ferr := store.RecordParseFailure(ctx, r.DB, mailbox, m.UID)
			if ferr != nil {
				logger.Log(store.LogEntry{Phase: store.PhaseParse, Status: "error", UID: m.UID, Detail: ferr.Error()})
				cursorBlocked = true
				continue
			}
			if attempts >= deadLetterAfter {
				logger.Log(store.LogEntry{
					Phase: store.PhaseParse, Status: "dead_letter", UID: m.UID, Subject: m.Subject,
					Detail: fmt.Sprintf("giving up after %d attempts: %v", attempts, perr),
				})
				advance(m.UID)
				if cerr := store.ClearParseFailure(ctx, r.DB, mailbox); cerr != nil {
					logger.Log(store.LogEntry{Phase: store.PhaseParse, Status: "error", UID: m.UID, Detail: cerr.Error()})
				}
				continue
			}
			logger.Log(store.LogEntry{
				Phase: store.PhaseParse, Status: "error", UID: m.UID, Subject: m.Subject,
				Detail: fmt.Sprintf("attempt %d/%d: %v", attempts, deadLetterAfter, perr),
			})
			cursorBlocked = true
			continue
		}

		if state.FailedUID == m.UID && state.FailedAttempts > 0 {
			if cerr := store.ClearParseFailure(ctx, r.DB, mailbox); cerr != nil {
				logger.Log(store.LogEntry{Phase: store.PhaseParse, Status: "error", UID: m.UID, Detail: cerr.Error()})
			}
		}

		// Envelope data beats whatever the fallback parser scraped together.
		if parsed.Subject == "" {
			parsed.Subject = m.Subject
		}
		if parsed.From == "" {
			parsed.From = m.From
		}
		if parsed.To == "" {
			parsed.To = m.To
		}
		if parsed.Date.IsZero() {
			parsed.Date = m.Date
		}
		if parsed.MessageID == "" {
			parsed.MessageID = fmt.Sprintf("uid:%d@%s", m.UID, mailbox)
		}

		body := parsed.Body()
		res := r.Classifier.Classify(parsed.Subject, body)

		if !classify.Relevant(res, parsed.Subject, body, r.Cfg.Email.IncludeAlerts) {
			stats.Skipped++
			logger.Log(store.LogEntry{
				Phase: store.PhaseFetch, Status: "skip_non_relevant", UID: m.UID,
				MessageID: parsed.MessageID, Subject: parsed.Subject, Class: res.Class,
				Detail: res.Reason,
			})
			advance(m.UID)
			continue
		}

		vendor := classify.DetectVendor(parsed.From, parsed.Subject)
		if uerr := store.UpsertEmail(ctx, r.DB, store.EmailUpsert{
			MessageID:  parsed.MessageID,
			Date:       parsed.Date,
			Subject:    parsed.Subject,
			FromEmail:  parsed.From,
			ToEmail:    parsed.To,
			Vendor:     vendor,
			Class:      res.Class,
			Body:       body,
			RawHeaders: parsed.HeaderLines,
			RawHTML:    parsed.HTML,
			UID:        m.UID,
			Mailbox:    mailbox,
			Confidence: res.Confidence,
			Reason:     res.Reason,
		}); uerr != nil {
			stats.Errors++
			logger.Log(store.LogEntry{
				Phase: store.PhaseFetch, Status: "error", UID: m.UID,
				MessageID: parsed.MessageID, Detail: uerr.Error(),
			})
			cursorBlocked = true
			continue
		}

		// Best-effort: the header cache may not have this UID at all.
		if merr := store.MarkHeaderPromoted(ctx, r.DB, m.UID); merr != nil {
			log.Printf("[ingest] mark promoted uid=%d: %v", m.UID, merr)
		}

		stats.Stored++
		logger.Log(store.LogEntry{
			Phase: store.PhaseFetch, Status: "stored", UID: m.UID,
			MessageID: parsed.MessageID, Subject: parsed.Subject,
			Class: res.Class, Vendor: vendor,
			Detail: fmt.Sprintf("confidence=%.2f", res.Confidence),
		})
		r.publish("email_stored")
		advance(m.UID)
	}

	return nil
}

func (r *Runner) publish(typ string) {
	if r.Hub != nil {
		r.Hub.Publish(events.MakeEvent("", typ, 1, nil))
	}
}

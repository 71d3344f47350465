// engine/internal/ingest/backfill.go
package ingest

import (
	"context"
	"fmt"

	"jobtrail-engine/internal/store"
)

// RunBackfillSlice processes at most one descending slice of the historical
// header crawl. The ceiling is captured once on first run and never moves;
// each slice works down from just below the previous low-water mark, and
// the crawl flips inactive once UID 1 has been covered. A completed crawl
// is a cheap no-op, so calling this every cycle is fine.
//
// Returns the number of header-cache rows added by this slice.
func (r *Runner) RunBackfillSlice(ctx context.Context, logger *store.IngestionLogger) (int, error) {
	mailbox := r.Cfg.Email.Mailbox

	state, err := store.GetBackfillState(ctx, r.DB, mailbox)
	if err != nil {
		return 0, err
	}
	if state.Initialized() && !state.Active {
		return 0, nil
	}

	// The crawl gets its own session so a long header fetch can't hold the
	// live-sync connection hostage.
	debug := func(status, detail string) {
		logger.Log(store.LogEntry{Phase: store.PhaseIMAPDbg, Status: status, Detail: detail})
	}
	mb, err := r.Dial(ctx, r.Cfg, debug)
	if err != nil {
		return 0, fmt.Errorf("backfill connect: %w", err)
	}
	defer mb.LogoutAndClose()

	highest, err := mb.Select(mailbox)
	if err != nil {
		return 0, fmt.Errorf("backfill select: %w", err)
	}

	if !state.Initialized() {
		if err := store.InitBackfill(ctx, r.DB, mailbox, highest, r.Cfg.Backfill.ModelVersion); err != nil {
			return 0, err
		}
		state, err = store.GetBackfillState(ctx, r.DB, mailbox)
		if err != nil {
			return 0, err
		}
		logger.Log(store.LogEntry{
			Phase: store.PhaseBackfill, Status: "init",
			Detail: fmt.Sprintf("ceiling=%d active=%t", state.Ceiling(), state.Active),
		})
		if !state.Active {
			logger.Log(store.LogEntry{Phase: store.PhaseBackfill, Status: "complete", Detail: "nothing to crawl"})
			return 0, nil
		}
	}

	// First slice includes the low-water mark itself (it equals the ceiling
	// and hasn't been crawled yet); later slices start just below it.
	hi := state.LowestUIDProcessed
	if hi != state.Ceiling() {
		hi--
	}
	if hi < 1 {
		if err := store.AdvanceBackfill(ctx, r.DB, mailbox, 1, false); err != nil {
			return 0, err
		}
		logger.Log(store.LogEntry{Phase: store.PhaseBackfill, Status: "complete", Detail: "reached uid 1"})
		return 0, nil
	}

	batch := r.Cfg.Backfill.BatchSize
	if batch < 1 {
		batch = 1
	}
	lo := uint32(1)
	if hi > uint32(batch) {
		lo = hi - uint32(batch) + 1
	}

	headers, err := mb.FetchHeaders(ctx, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("backfill fetch headers %d:%d: %w", lo, hi, err)
	}

	added := 0
	for _, h := range headers {
		res := r.Classifier.ClassifyHeader(h.Subject, h.From)
		fresh, ierr := store.InsertHeaderCache(ctx, r.DB, store.HeaderCacheEntry{
			UID:          h.UID,
			Subject:      h.Subject,
			FromEmail:    h.From,
			Date:         h.Date,
			Size:         h.Size,
			Decision:     res.Decision,
			Score:        res.Score,
			Reason:       res.Reason,
			ModelVersion: r.Cfg.Backfill.ModelVersion,
		})
		if ierr != nil {
			logger.Log(store.LogEntry{Phase: store.PhaseBackfill, Status: "error", UID: h.UID, Detail: ierr.Error()})
			continue
		}
		if fresh {
			added++
		}
	}

	stillActive := lo > 1
	if err := store.AdvanceBackfill(ctx, r.DB, mailbox, lo, stillActive); err != nil {
		return added, err
	}

	logger.Log(store.LogEntry{
		Phase: store.PhaseBackfill, Status: "slice",
		Detail: fmt.Sprintf("range=%d:%d headers=%d cached=%d lowest=%d active=%t", lo, hi, len(headers), added, lo, stillActive),
	})
	if !stillActive {
		logger.Log(store.LogEntry{Phase: store.PhaseBackfill, Status: "complete", Detail: "reached uid 1"})
		r.publish("backfill_done")
	}
	return added, nil
}

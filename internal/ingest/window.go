// engine/internal/ingest/window.go
package ingest

// fetchWindow computes where the next incremental fetch starts and how many
// messages this cycle may process. On the very first run the start is pulled
// up so the initial sync never downloads the whole mailbox; afterwards the
// window is the open-ended range (last_uid+1):*.
func fetchWindow(lastUID, highestUID uint32, batchLimit, maxInitialSync int) (start uint32, limit int) {
	limit = batchLimit
	if maxInitialSync < limit {
		limit = maxInitialSync
	}
	if limit < 1 {
		limit = 1
	}

	if lastUID == 0 {
		start = 1
		if highestUID > uint32(limit) {
			start = highestUID - uint32(limit) + 1
		}
		return start, limit
	}
	return lastUID + 1, limit
}

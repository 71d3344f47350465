// engine/internal/ingest/gate.go
package ingest

import "sync/atomic"

// Gate admits at most one ingestion cycle per process. The scheduler tick
// and the HTTP trigger share one gate, so whichever fires second is a no-op
// instead of a second concurrent IMAP session.
type Gate struct {
	running atomic.Bool
}

// TryAcquire reports whether the caller may start a cycle. A successful
// acquire must be paired with Release.
func (g *Gate) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release reopens the gate.
func (g *Gate) Release() {
	g.running.Store(false)
}

// Running reports whether a cycle is in flight.
func (g *Gate) Running() bool {
	return g.running.Load()
}

package dispatch

import (
	"sync/atomic"
	"time"
)

// idleThreshold defines when a worker is considered idle. At the lowest
// expected inference rate (one detect per second per worker) this gives
// a worker many full cycles before it is flagged.
const idleThreshold = 30 * time.Second

// Stats is a snapshot of dispatcher operational state.
type Stats struct {
	// Drops counts frames overwritten before any worker picked them up.
	// Sustained growth means the pool is saturated; a burst after a
	// stall is normal.
	Drops     uint64
	Offered   uint64
	Delivered uint64
	// LastOfferSeq is the sequence number of the most recently offered frame
	LastOfferSeq uint64
	// Workers maps workerID to per-worker statistics
	Workers map[string]WorkerStats
}

// WorkerStats tracks a single consumer.
type WorkerStats struct {
	WorkerID        string
	LastConsumedAt  time.Time
	LastConsumedSeq uint64
	Consumed        uint64
	// IsIdle indicates the worker hasn't consumed a frame in >30s
	IsIdle bool
}

// Stats returns a non-blocking snapshot of dispatcher state. Safe for
// concurrent use with Offer/Subscribe; values may be slightly stale.
func (d *Dispatcher) Stats() Stats {
	st := Stats{
		Drops:        atomic.LoadUint64(&d.drops),
		Offered:      atomic.LoadUint64(&d.offered),
		Delivered:    atomic.LoadUint64(&d.delivered),
		LastOfferSeq: atomic.LoadUint64(&d.lastOfferSeq),
		Workers:      make(map[string]WorkerStats),
	}

	d.consumers.Range(func(key, value interface{}) bool {
		workerID := key.(string)
		cs := value.(*consumerStats)

		cs.mu.Lock()
		ws := WorkerStats{
			WorkerID:        workerID,
			LastConsumedAt:  cs.lastConsumedAt,
			LastConsumedSeq: cs.lastConsumedSeq,
			Consumed:        cs.consumed,
			IsIdle:          time.Since(cs.lastConsumedAt) > idleThreshold,
		}
		cs.mu.Unlock()

		st.Workers[workerID] = ws
		return true
	})

	return st
}

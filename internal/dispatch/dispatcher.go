// Package dispatch hands frames from the intake loop to the inference
// worker pool through a single-slot mailbox.
//
// Policy: freshness over completeness. A frame that cannot be picked up
// before the next one arrives is overwritten, never queued. Pose metrics
// driving a live agent are only useful if recent; queuing stale frames
// adds latency without adding correctness.
package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// Dispatcher is a bounded hand-off between one producer and a pool of
// interchangeable consumers. The mailbox holds exactly one frame; Offer
// overwrites an unconsumed frame and counts the drop. Workers compete
// for frames, so each frame is processed by at most one worker.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *types.Frame // nil = consumed
	closed bool

	drops        uint64 // atomic, frames overwritten before pickup
	offered      uint64 // atomic
	delivered    uint64 // atomic
	lastOfferSeq uint64 // atomic

	// workerID → *consumerStats, registered by Subscribe
	consumers sync.Map
}

type consumerStats struct {
	mu              sync.Mutex
	lastConsumedAt  time.Time
	lastConsumedSeq uint64
	consumed        uint64
	unsubscribed    bool
}

// New creates a Dispatcher ready for use.
func New() *Dispatcher {
	d := &Dispatcher{}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Offer hands a frame to the pool without blocking. If the previously
// offered frame has not been picked up it is discarded and counted.
// After Close, Offer is a no-op. The frame must not be modified after
// Offer returns.
func (d *Dispatcher) Offer(frame *types.Frame) {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return
	}

	if d.frame != nil {
		atomic.AddUint64(&d.drops, 1)
	}
	d.frame = frame
	atomic.AddUint64(&d.offered, 1)
	atomic.StoreUint64(&d.lastOfferSeq, frame.Seq)

	// One frame, one consumer: wake a single waiter
	d.cond.Signal()
	d.mu.Unlock()
}

// Subscribe registers a worker and returns its blocking read function.
// The returned func blocks until a frame is available and returns nil on
// Close or Unsubscribe. It must be called from a single goroutine.
func (d *Dispatcher) Subscribe(workerID string) func() *types.Frame {
	stats := &consumerStats{lastConsumedAt: time.Now()}
	d.consumers.Store(workerID, stats)

	return func() *types.Frame {
		d.mu.Lock()

		for d.frame == nil && !d.closed && !stats.isUnsubscribed() {
			d.cond.Wait()
		}

		if d.closed || stats.isUnsubscribed() {
			d.mu.Unlock()
			return nil
		}

		frame := d.frame
		d.frame = nil
		d.mu.Unlock()

		atomic.AddUint64(&d.delivered, 1)

		stats.mu.Lock()
		stats.lastConsumedAt = time.Now()
		stats.lastConsumedSeq = frame.Seq
		stats.consumed++
		stats.mu.Unlock()

		return frame
	}
}

// Unsubscribe removes a worker and wakes it if blocked. Idempotent.
func (d *Dispatcher) Unsubscribe(workerID string) {
	val, ok := d.consumers.Load(workerID)
	if !ok {
		return
	}

	stats := val.(*consumerStats)
	stats.mu.Lock()
	stats.unsubscribed = true
	stats.mu.Unlock()

	d.consumers.Delete(workerID)

	// The slot is shared, so wake everyone; unaffected workers go back to Wait
	d.mu.Lock()
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Close drops any pending frame and signals all blocked workers to
// return nil. Subsequent Offer calls are no-ops. Idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.frame = nil
	d.cond.Broadcast()
	d.mu.Unlock()
}

func (s *consumerStats) isUnsubscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

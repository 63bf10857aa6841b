// Package state holds the body metrics shared between the vision
// pipeline and its readers (the conversational agent, the broadcaster).
//
// Single writer, many readers. The writer swaps a complete immutable
// snapshot; readers never observe a partially updated one, and no lock
// is held across any computation, only across the pointer swap.
package state

import (
	"sync/atomic"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

type entry struct {
	snap    types.BodyMetricsSnapshot
	version uint64
}

// Store is the shared snapshot whiteboard for one room/session.
// The zero value is empty and open.
type Store struct {
	cur    atomic.Pointer[entry]
	closed atomic.Bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Publish atomically replaces the current snapshot and increments the
// version counter. Writer-only: the merge loop is the single caller.
func (s *Store) Publish(snap types.BodyMetricsSnapshot) uint64 {
	var version uint64 = 1
	if prev := s.cur.Load(); prev != nil {
		version = prev.version + 1
	}
	s.cur.Store(&entry{snap: snap, version: version})
	return version
}

// Current returns the latest snapshot and its version. ok is false when
// no inference has completed since the pipeline started. Never blocks;
// safe for any number of concurrent readers, including after Close.
func (s *Store) Current() (snap types.BodyMetricsSnapshot, version uint64, ok bool) {
	e := s.cur.Load()
	if e == nil {
		return types.BodyMetricsSnapshot{}, 0, false
	}
	return e.snap, e.version, true
}

// Close marks the store closed. The last snapshot remains readable.
// Idempotent.
func (s *Store) Close() {
	s.closed.Store(true)
}

// Closed reports whether the owning pipeline has shut down.
func (s *Store) Closed() bool {
	return s.closed.Load()
}

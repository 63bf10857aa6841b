package core

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/broadcast"
	"github.com/VictorWong123/FlexFlow/internal/metrics"
	"github.com/VictorWong123/FlexFlow/internal/smoothing"
	"github.com/VictorWong123/FlexFlow/internal/state"
	"github.com/VictorWong123/FlexFlow/internal/types"
)

// merger is the single consumer of inference results. It owns the
// smoothing state and is the only writer of the snapshot store, so
// no metric computation ever needs a lock.
//
// Workers complete out of order under load. A result is applied only
// when its frame sequence is strictly greater than the last applied
// one; late results are counted and discarded so published snapshots
// never move backwards in time.
type merger struct {
	cfg   metrics.Config
	store *state.Store
	// broadcaster is optional; nil means snapshots are store-only
	broadcaster *broadcast.Broadcaster

	neck     *smoothing.Channel
	leftArm  *smoothing.Channel
	rightArm *smoothing.Channel
	bodyMode *smoothing.BoolChannel

	lastSeq       uint64
	applied       uint64 // atomic
	staleDiscards uint64 // atomic
	noPoseFrames  uint64 // atomic
}

func newMerger(cfg metrics.Config, window, maxMiss int, store *state.Store, bc *broadcast.Broadcaster) *merger {
	return &merger{
		cfg:         cfg,
		store:       store,
		broadcaster: bc,
		neck:        smoothing.NewChannel(window, maxMiss),
		leftArm:     smoothing.NewChannel(window, maxMiss),
		rightArm:    smoothing.NewChannel(window, maxMiss),
		bodyMode:    smoothing.NewBoolChannel(window, maxMiss),
	}
}

// run consumes results until the channel is closed. Called from exactly
// one goroutine.
func (m *merger) run(results <-chan types.InferenceResult) {
	for result := range results {
		m.apply(result)
	}
	slog.Debug("merge loop exiting, results channel closed")
}

func (m *merger) apply(result types.InferenceResult) {
	if result.FrameSeq <= m.lastSeq {
		atomic.AddUint64(&m.staleDiscards, 1)
		slog.Debug("discarding stale inference result",
			"frame_seq", result.FrameSeq,
			"last_applied_seq", m.lastSeq,
			"trace_id", result.TraceID,
		)
		return
	}
	m.lastSeq = result.FrameSeq

	if !result.PoseFound {
		// Nobody in frame. The previous snapshot stays readable, but
		// the smoothing channels age so a long absence clears them.
		atomic.AddUint64(&m.noPoseFrames, 1)
		m.neck.Miss()
		m.leftArm.Miss()
		m.rightArm.Miss()
		m.bodyMode.Miss()
		return
	}

	raw := metrics.Compute(result.Landmarks, m.cfg)

	snap := types.BodyMetricsSnapshot{
		CameraCovered:  raw.CameraCovered,
		SourceFrameSeq: result.FrameSeq,
		GeneratedAt:    time.Now(),
	}

	if raw.CameraCovered {
		// No geometry is trustworthy while the lens is blocked
		snap.UpperBodyOnly = true
		m.neck.Miss()
		m.leftArm.Miss()
		m.rightArm.Miss()
		m.bodyMode.Miss()
	} else {
		snap.NeckAngle = m.smooth(m.neck, raw.NeckAngle)
		snap.LeftArmFlexion = m.smooth(m.leftArm, raw.LeftArmFlexion)
		snap.RightArmFlexion = m.smooth(m.rightArm, raw.RightArmFlexion)
		snap.UpperBodyOnly = m.bodyMode.Push(raw.UpperBodyOnly)
		snap.PointedBodyPart = raw.PointedBodyPart
	}

	version := m.store.Publish(snap)
	atomic.AddUint64(&m.applied, 1)

	slog.Debug("snapshot published",
		"version", version,
		"frame_seq", snap.SourceFrameSeq,
		"trace_id", result.TraceID,
		"detect_ms", result.DetectMS,
	)

	if m.broadcaster != nil {
		if err := m.broadcaster.PublishSnapshot(snap); err != nil {
			slog.Debug("snapshot broadcast skipped", "error", err)
		}
	}
}

// smooth feeds a raw angle through its channel. An invalid angle counts
// as a miss and stays invalid in the snapshot rather than replaying a
// stale mean.
func (m *merger) smooth(ch *smoothing.Channel, raw types.Angle) types.Angle {
	if !raw.Valid {
		ch.Miss()
		return types.Angle{}
	}
	return types.Angle{Degrees: ch.Push(raw.Degrees), Valid: true}
}

// mergeStats is a point-in-time view for health reporting
type mergeStats struct {
	Applied       uint64
	StaleDiscards uint64
	NoPoseFrames  uint64
}

func (m *merger) stats() mergeStats {
	return mergeStats{
		Applied:       atomic.LoadUint64(&m.applied),
		StaleDiscards: atomic.LoadUint64(&m.staleDiscards),
		NoPoseFrames:  atomic.LoadUint64(&m.noPoseFrames),
	}
}

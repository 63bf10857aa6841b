// Package detector defines the pose landmarker boundary. The detector
// is an external capability: given one image it returns a fixed-length
// landmark sequence or an explicit "no pose found" result. Failures are
// per-frame soft failures, never fatal to the pipeline.
package detector

import (
	"context"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// Detector runs pose inference on single frames. Detect is a blocking,
// CPU-bound call taking tens of milliseconds; callers must keep it off
// any latency-sensitive path. Implementations need not support
// concurrent Detect calls — the worker pool creates one instance per
// worker.
type Detector interface {
	// Detect returns the landmarks for the single most prominent pose.
	// found is false when the detector saw no pose; that is a valid
	// result, not an error.
	Detect(ctx context.Context, frame *types.Frame) (lm types.Landmarks, found bool, err error)

	// Close releases the detector's resources. Idempotent.
	Close() error
}

// Factory creates one detector instance per pool worker.
type Factory func(workerID string) (Detector, error)

// Func adapts a function to the Detector interface. Used by tests.
type Func func(ctx context.Context, frame *types.Frame) (types.Landmarks, bool, error)

// Detect implements Detector
func (f Func) Detect(ctx context.Context, frame *types.Frame) (types.Landmarks, bool, error) {
	return f(ctx, frame)
}

// Close implements Detector
func (f Func) Close() error { return nil }

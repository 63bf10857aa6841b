package detector

import (
	"context"
	"math"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// Synthetic produces a deterministic standing pose with a slow
// sinusoidal neck sway, keyed off the frame sequence number. Lets the
// daemon run end to end without a Python worker, the same way the mock
// stream stands in for a camera.
type Synthetic struct {
	// Latency simulates the blocking detector call (0 = instant)
	Latency time.Duration
}

// Detect implements Detector
func (s *Synthetic) Detect(ctx context.Context, frame *types.Frame) (types.Landmarks, bool, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return types.Landmarks{}, false, ctx.Err()
		}
	}

	var lm types.Landmarks
	for i := range lm {
		lm[i] = types.Landmark{X: 0.5, Y: 0.5, Visibility: 0.9}
	}

	// ~0.1 normalized sway over a 100-frame period
	sway := 0.1 * math.Sin(float64(frame.Seq)*2*math.Pi/100)

	lm[types.Nose] = types.Landmark{X: 0.5 + sway, Y: 0.1, Visibility: 0.95}
	lm[types.LeftShoulder] = types.Landmark{X: 0.4, Y: 0.3, Visibility: 0.95}
	lm[types.RightShoulder] = types.Landmark{X: 0.6, Y: 0.3, Visibility: 0.95}
	lm[types.LeftElbow] = types.Landmark{X: 0.35, Y: 0.45, Visibility: 0.9}
	lm[types.RightElbow] = types.Landmark{X: 0.65, Y: 0.45, Visibility: 0.9}
	lm[types.LeftWrist] = types.Landmark{X: 0.33, Y: 0.6, Visibility: 0.9}
	lm[types.RightWrist] = types.Landmark{X: 0.67, Y: 0.6, Visibility: 0.9}
	lm[types.LeftIndex] = types.Landmark{X: 0.32, Y: 0.63, Visibility: 0.9}
	lm[types.RightIndex] = types.Landmark{X: 0.68, Y: 0.63, Visibility: 0.9}

	lm[types.LeftHip] = types.Landmark{X: 0.45, Y: 0.6, Visibility: 0.9}
	lm[types.RightHip] = types.Landmark{X: 0.55, Y: 0.6, Visibility: 0.9}
	lm[types.LeftKnee] = types.Landmark{X: 0.45, Y: 0.78, Visibility: 0.9}
	lm[types.RightKnee] = types.Landmark{X: 0.55, Y: 0.78, Visibility: 0.9}
	lm[types.LeftAnkle] = types.Landmark{X: 0.45, Y: 0.95, Visibility: 0.85}
	lm[types.RightAnkle] = types.Landmark{X: 0.55, Y: 0.95, Visibility: 0.85}

	return lm, true, nil
}

// Close implements Detector
func (s *Synthetic) Close() error { return nil }

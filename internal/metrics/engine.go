// Package metrics derives geometric body-state metrics from a single
// pose result. All computations are pure and deterministic; temporal
// behavior (smoothing, staleness) lives elsewhere.
package metrics

import (
	"math"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// coveredVisibility is the ceiling below which every landmark must fall
// for the frame to count as a covered camera.
const coveredVisibility = 0.1

// distEpsilon separates a real distance win from float noise. Distances
// within it count as a tie and leave the earlier candidate in place.
const distEpsilon = 1e-9

// Config contains the geometric thresholds, all in the detector's
// normalized coordinate space.
type Config struct {
	// PointingThreshold is the max fingertip-to-joint distance for a point
	PointingThreshold float64
	// LowerBodyVisibility is the per-landmark floor for body-mode classification
	LowerBodyVisibility float64
	// MinVisibility is the floor below which a landmark is absent for a metric
	MinVisibility float64
}

// Result holds the raw (unsmoothed) per-frame metrics. An invalid Angle
// means a required landmark was absent; the other metrics are unaffected.
type Result struct {
	NeckAngle       types.Angle
	LeftArmFlexion  types.Angle
	RightArmFlexion types.Angle
	UpperBodyOnly   bool
	PointedBodyPart string
	CameraCovered   bool
}

// pointingTargets in fixed anatomical priority order. On a distance tie
// the earlier entry wins, keeping the classifier deterministic.
var pointingTargets = []struct {
	index int
	label string
}{
	{types.LeftShoulder, "Left Shoulder"},
	{types.RightShoulder, "Right Shoulder"},
	{types.LeftElbow, "Left Elbow"},
	{types.RightElbow, "Right Elbow"},
	{types.LeftKnee, "Left Knee"},
	{types.RightKnee, "Right Knee"},
}

// Compute derives all metrics from one pose result.
func Compute(lm types.Landmarks, cfg Config) Result {
	if cameraCovered(lm) {
		// No geometry is trustworthy; degrade to torso-only, no pointing
		return Result{CameraCovered: true, UpperBodyOnly: true}
	}

	return Result{
		NeckAngle:       neckAngle(lm, cfg.MinVisibility),
		LeftArmFlexion:  armFlexion(lm, types.LeftShoulder, types.LeftElbow, types.LeftWrist, cfg.MinVisibility),
		RightArmFlexion: armFlexion(lm, types.RightShoulder, types.RightElbow, types.RightWrist, cfg.MinVisibility),
		UpperBodyOnly:   upperBodyOnly(lm, cfg.LowerBodyVisibility),
		PointedBodyPart: pointedBodyPart(lm, cfg),
	}
}

// cameraCovered reports whether every landmark is near-invisible.
func cameraCovered(lm types.Landmarks) bool {
	for i := range lm {
		if lm[i].Visibility >= coveredVisibility {
			return false
		}
	}
	return true
}

// upperBodyOnly classifies the camera framing: when the majority of
// lower-body landmarks fall below the visibility floor, only the torso
// is in frame and downstream consumers should skip leg metrics.
func upperBodyOnly(lm types.Landmarks, floor float64) bool {
	below := 0
	for _, idx := range types.LowerBody {
		if lm[idx].Visibility < floor {
			below++
		}
	}
	return below > len(types.LowerBody)/2
}

// pointedBodyPart classifies which joint, if any, the user is pointing
// at with an index fingertip. Left fingertip is checked first; within a
// fingertip, targets are scanned in priority order and only a clearly
// smaller distance displaces an earlier candidate, so near-equal
// distances resolve to the higher-priority joint.
func pointedBodyPart(lm types.Landmarks, cfg Config) string {
	for _, finger := range [...]int{types.LeftIndex, types.RightIndex} {
		if lm[finger].Visibility < cfg.MinVisibility {
			continue
		}

		best := ""
		bestDist := math.Inf(1)
		for _, target := range pointingTargets {
			if lm[target.index].Visibility < cfg.MinVisibility {
				continue
			}
			dx := lm[finger].X - lm[target.index].X
			dy := lm[finger].Y - lm[target.index].Y
			dist := math.Hypot(dx, dy)
			if dist < cfg.PointingThreshold && dist < bestDist-distEpsilon {
				bestDist = dist
				best = target.label
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

// neckAngle is the signed tilt of the nose relative to the shoulder
// midpoint, in degrees. Zero means the nose sits directly above the
// midpoint; positive leans toward image +x.
func neckAngle(lm types.Landmarks, floor float64) types.Angle {
	nose := lm[types.Nose]
	ls := lm[types.LeftShoulder]
	rs := lm[types.RightShoulder]

	if nose.Visibility < floor || ls.Visibility < floor || rs.Visibility < floor {
		return types.Angle{}
	}

	midX := (ls.X + rs.X) / 2
	midY := (ls.Y + rs.Y) / 2

	// Image y grows downward, so "up" is -y
	dx := nose.X - midX
	dy := nose.Y - midY

	return types.Angle{
		Degrees: math.Atan2(dx, -dy) * 180 / math.Pi,
		Valid:   true,
	}
}

// armFlexion is the 3D angle at the elbow between the elbow→shoulder
// and elbow→wrist vectors, in degrees [0,180].
func armFlexion(lm types.Landmarks, shoulder, elbow, wrist int, floor float64) types.Angle {
	s, e, w := lm[shoulder], lm[elbow], lm[wrist]

	if s.Visibility < floor || e.Visibility < floor || w.Visibility < floor {
		return types.Angle{}
	}

	v1x, v1y, v1z := s.X-e.X, s.Y-e.Y, s.Z-e.Z
	v2x, v2y, v2z := w.X-e.X, w.Y-e.Y, w.Z-e.Z

	mag1 := math.Sqrt(v1x*v1x + v1y*v1y + v1z*v1z)
	mag2 := math.Sqrt(v2x*v2x + v2y*v2y + v2z*v2z)
	if mag1 < 1e-6 || mag2 < 1e-6 {
		return types.Angle{Valid: true}
	}

	cos := (v1x*v2x + v1y*v2y + v1z*v2z) / (mag1 * mag2)
	cos = math.Max(-1, math.Min(1, cos))

	return types.Angle{
		Degrees: math.Acos(cos) * 180 / math.Pi,
		Valid:   true,
	}
}

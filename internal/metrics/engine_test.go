package metrics

import (
	"math"
	"testing"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

func testConfig() Config {
	return Config{
		PointingThreshold:   0.1,
		LowerBodyVisibility: 0.5,
		MinVisibility:       0.6,
	}
}

// visiblePose returns a plausible standing pose with every landmark visible.
func visiblePose() types.Landmarks {
	var lm types.Landmarks
	for i := range lm {
		lm[i] = types.Landmark{X: 0.5, Y: 0.5, Visibility: 0.9}
	}
	lm[types.Nose] = types.Landmark{X: 0.5, Y: 0.1, Visibility: 0.95}
	lm[types.LeftShoulder] = types.Landmark{X: 0.4, Y: 0.3, Visibility: 0.95}
	lm[types.RightShoulder] = types.Landmark{X: 0.6, Y: 0.3, Visibility: 0.95}
	lm[types.LeftElbow] = types.Landmark{X: 0.35, Y: 0.45, Visibility: 0.9}
	lm[types.RightElbow] = types.Landmark{X: 0.65, Y: 0.45, Visibility: 0.9}
	lm[types.LeftWrist] = types.Landmark{X: 0.33, Y: 0.6, Visibility: 0.9}
	lm[types.RightWrist] = types.Landmark{X: 0.67, Y: 0.6, Visibility: 0.9}
	lm[types.LeftIndex] = types.Landmark{X: 0.3, Y: 0.65, Visibility: 0.9}
	lm[types.RightIndex] = types.Landmark{X: 0.7, Y: 0.65, Visibility: 0.9}
	for _, idx := range types.LowerBody {
		lm[idx] = types.Landmark{X: 0.5, Y: 0.8, Visibility: 0.9}
	}
	return lm
}

func TestNeckAngleVerticalAlignment(t *testing.T) {
	lm := visiblePose()
	lm[types.Nose] = types.Landmark{X: 0.5, Y: 0.0, Visibility: 0.95}
	lm[types.LeftShoulder] = types.Landmark{X: 0.4, Y: 0.3, Visibility: 0.95}
	lm[types.RightShoulder] = types.Landmark{X: 0.6, Y: 0.3, Visibility: 0.95}

	r := Compute(lm, testConfig())
	if !r.NeckAngle.Valid {
		t.Fatal("neck angle should be valid")
	}
	if math.Abs(r.NeckAngle.Degrees) > 1e-9 {
		t.Errorf("nose above shoulder midpoint: want 0 deg, got %v", r.NeckAngle.Degrees)
	}
}

func TestNeckAngleTilt(t *testing.T) {
	lm := visiblePose()
	// Nose offset 0.3 right, 0.3 above midpoint (0.5,0.3): 45 deg lean
	lm[types.Nose] = types.Landmark{X: 0.8, Y: 0.0, Visibility: 0.95}

	r := Compute(lm, testConfig())
	if !r.NeckAngle.Valid {
		t.Fatal("neck angle should be valid")
	}
	if math.Abs(r.NeckAngle.Degrees-45) > 1e-9 {
		t.Errorf("want 45 deg, got %v", r.NeckAngle.Degrees)
	}

	// Mirror to the other side flips the sign
	lm[types.Nose].X = 0.2
	r = Compute(lm, testConfig())
	if math.Abs(r.NeckAngle.Degrees+45) > 1e-9 {
		t.Errorf("want -45 deg, got %v", r.NeckAngle.Degrees)
	}
}

func TestNeckAngleRequiresVisibleLandmarks(t *testing.T) {
	lm := visiblePose()
	lm[types.Nose].Visibility = 0.2

	r := Compute(lm, testConfig())
	if r.NeckAngle.Valid {
		t.Error("neck angle should be unavailable with an invisible nose")
	}
	// Other metrics are unaffected by the missing landmark
	if !r.LeftArmFlexion.Valid || !r.RightArmFlexion.Valid {
		t.Error("arm flexion should remain available")
	}
}

func TestArmFlexionStraightAndBent(t *testing.T) {
	lm := visiblePose()
	// Straight left arm along one line: 180 deg at the elbow
	lm[types.LeftShoulder] = types.Landmark{X: 0.4, Y: 0.3, Visibility: 0.9}
	lm[types.LeftElbow] = types.Landmark{X: 0.4, Y: 0.45, Visibility: 0.9}
	lm[types.LeftWrist] = types.Landmark{X: 0.4, Y: 0.6, Visibility: 0.9}
	// Right arm bent at a right angle
	lm[types.RightShoulder] = types.Landmark{X: 0.6, Y: 0.3, Visibility: 0.9}
	lm[types.RightElbow] = types.Landmark{X: 0.6, Y: 0.45, Visibility: 0.9}
	lm[types.RightWrist] = types.Landmark{X: 0.75, Y: 0.45, Visibility: 0.9}

	r := Compute(lm, testConfig())
	if math.Abs(r.LeftArmFlexion.Degrees-180) > 1e-6 {
		t.Errorf("straight arm: want 180 deg, got %v", r.LeftArmFlexion.Degrees)
	}
	if math.Abs(r.RightArmFlexion.Degrees-90) > 1e-6 {
		t.Errorf("bent arm: want 90 deg, got %v", r.RightArmFlexion.Degrees)
	}
}

func TestBodyModeThreshold(t *testing.T) {
	lm := visiblePose()

	for _, idx := range types.LowerBody {
		lm[idx].Visibility = 0.3
	}
	if r := Compute(lm, testConfig()); !r.UpperBodyOnly {
		t.Error("all lower-body landmarks at 0.3: want upper-body-only")
	}

	for _, idx := range types.LowerBody {
		lm[idx].Visibility = 0.8
	}
	if r := Compute(lm, testConfig()); r.UpperBodyOnly {
		t.Error("all lower-body landmarks at 0.8: want full body")
	}
}

func TestBodyModeMajority(t *testing.T) {
	lm := visiblePose()
	// 4 of 6 below the floor is a majority
	for i, idx := range types.LowerBody {
		if i < 4 {
			lm[idx].Visibility = 0.2
		} else {
			lm[idx].Visibility = 0.9
		}
	}
	if r := Compute(lm, testConfig()); !r.UpperBodyOnly {
		t.Error("majority of lower body invisible: want upper-body-only")
	}

	// Exactly half is not a majority
	for i, idx := range types.LowerBody {
		if i < 3 {
			lm[idx].Visibility = 0.2
		} else {
			lm[idx].Visibility = 0.9
		}
	}
	if r := Compute(lm, testConfig()); r.UpperBodyOnly {
		t.Error("half of lower body invisible: want full body")
	}
}

func TestPointingNearestJoint(t *testing.T) {
	lm := visiblePose()
	// Right fingertip 0.05 from the right shoulder, far from everything else
	lm[types.LeftIndex].Visibility = 0.1 // left hand out of frame
	lm[types.RightShoulder] = types.Landmark{X: 0.6, Y: 0.3, Visibility: 0.9}
	lm[types.RightIndex] = types.Landmark{X: 0.65, Y: 0.3, Visibility: 0.9}
	lm[types.LeftShoulder] = types.Landmark{X: 0.2, Y: 0.3, Visibility: 0.9}
	lm[types.LeftElbow] = types.Landmark{X: 0.2, Y: 0.5, Visibility: 0.9}
	lm[types.RightElbow] = types.Landmark{X: 0.95, Y: 0.5, Visibility: 0.9}
	lm[types.LeftKnee] = types.Landmark{X: 0.2, Y: 0.9, Visibility: 0.9}
	lm[types.RightKnee] = types.Landmark{X: 0.9, Y: 0.9, Visibility: 0.9}

	r := Compute(lm, testConfig())
	if r.PointedBodyPart != "Right Shoulder" {
		t.Errorf("want %q, got %q", "Right Shoulder", r.PointedBodyPart)
	}
}

func TestPointingTieBreaksByPriority(t *testing.T) {
	lm := visiblePose()
	lm[types.LeftIndex].Visibility = 0.1
	// Fingertip equidistant (0.05) from right shoulder and right elbow
	lm[types.RightIndex] = types.Landmark{X: 0.6, Y: 0.4, Visibility: 0.9}
	lm[types.RightShoulder] = types.Landmark{X: 0.6, Y: 0.35, Visibility: 0.9}
	lm[types.RightElbow] = types.Landmark{X: 0.6, Y: 0.45, Visibility: 0.9}
	// Push the remaining targets out of range
	lm[types.LeftShoulder] = types.Landmark{X: 0.1, Y: 0.3, Visibility: 0.9}
	lm[types.LeftElbow] = types.Landmark{X: 0.1, Y: 0.5, Visibility: 0.9}
	lm[types.LeftKnee] = types.Landmark{X: 0.1, Y: 0.9, Visibility: 0.9}
	lm[types.RightKnee] = types.Landmark{X: 0.9, Y: 0.9, Visibility: 0.9}

	r := Compute(lm, testConfig())
	if r.PointedBodyPart != "Right Shoulder" {
		t.Errorf("tie should resolve to the shoulder, got %q", r.PointedBodyPart)
	}
}

func TestPointingOutOfRange(t *testing.T) {
	lm := visiblePose()
	// Fingertips far from every target
	lm[types.LeftIndex] = types.Landmark{X: 0.05, Y: 0.05, Visibility: 0.9}
	lm[types.RightIndex] = types.Landmark{X: 0.95, Y: 0.05, Visibility: 0.9}
	lm[types.LeftElbow] = types.Landmark{X: 0.35, Y: 0.45, Visibility: 0.9}
	lm[types.RightElbow] = types.Landmark{X: 0.65, Y: 0.45, Visibility: 0.9}

	r := Compute(lm, testConfig())
	if r.PointedBodyPart != "" {
		t.Errorf("nothing within threshold: want empty, got %q", r.PointedBodyPart)
	}
}

func TestCameraCovered(t *testing.T) {
	var lm types.Landmarks
	for i := range lm {
		lm[i] = types.Landmark{X: 0.5, Y: 0.5, Visibility: 0.05}
	}

	r := Compute(lm, testConfig())
	if !r.CameraCovered {
		t.Fatal("all landmarks near-invisible: want camera covered")
	}
	if !r.UpperBodyOnly {
		t.Error("covered camera should degrade to upper-body-only")
	}
	if r.NeckAngle.Valid || r.LeftArmFlexion.Valid || r.RightArmFlexion.Valid {
		t.Error("covered camera should produce no angles")
	}
	if r.PointedBodyPart != "" {
		t.Error("covered camera should clear pointing")
	}
}

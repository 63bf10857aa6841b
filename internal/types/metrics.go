package types

import (
	"encoding/json"
	"math"
	"time"
)

// Angle is a scalar metric in degrees that may be unavailable for a
// frame (required landmark missing or below the visibility floor).
// Marshals to JSON null when not valid, rounded to one decimal when it is.
type Angle struct {
	Degrees float64
	Valid   bool
}

// MarshalJSON implements json.Marshaler
func (a Angle) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(math.Round(a.Degrees*10) / 10)
}

// UnmarshalJSON implements json.Unmarshaler
func (a *Angle) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Angle{}
		return nil
	}
	if err := json.Unmarshal(data, &a.Degrees); err != nil {
		return err
	}
	a.Valid = true
	return nil
}

// BodyMetricsSnapshot is one immutable, internally consistent set of
// derived body metrics. All fields derive from a single inference
// result plus the prior smoothing state; a snapshot is never mutated
// after construction.
type BodyMetricsSnapshot struct {
	// NeckAngle is the signed tilt of the nose relative to the shoulder
	// midpoint's vertical, in degrees. Positive leans toward image +x.
	NeckAngle Angle `json:"neck_angle"`
	// LeftArmFlexion / RightArmFlexion are the elbow angles in degrees [0,180]
	LeftArmFlexion  Angle `json:"left_arm_flexion"`
	RightArmFlexion Angle `json:"right_arm_flexion"`
	// UpperBodyOnly is true when the camera frames only the torso
	UpperBodyOnly bool `json:"is_upper_body_only"`
	// PointedBodyPart is the joint the user is pointing at, empty when none
	PointedBodyPart string `json:"pointed_body_part"`
	// CameraCovered is true when every landmark is near-invisible
	CameraCovered bool `json:"camera_covered"`
	// SourceFrameSeq is the sequence number of the frame this snapshot
	// derives from. Monotonically non-decreasing across published snapshots.
	SourceFrameSeq uint64 `json:"source_frame_seq"`
	// GeneratedAt is when the snapshot was constructed
	GeneratedAt time.Time `json:"generated_at"`
}

package types

import "time"

// Pose landmark indices (MediaPipe Pose topology, 33 points).
// Only the indices the metrics engine reads are named; the array still
// carries all 33 slots so the broadcaster can select arbitrary subsets.
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftElbow     = 13
	RightElbow    = 14
	LeftWrist     = 15
	RightWrist    = 16
	LeftIndex     = 19
	RightIndex    = 20
	LeftHip       = 23
	RightHip      = 24
	LeftKnee      = 25
	RightKnee     = 26
	LeftAnkle     = 27
	RightAnkle    = 28

	// LandmarkCount is the fixed length of a pose result
	LandmarkCount = 33
)

// LowerBody lists the landmark indices used for body-mode classification
// (hips, knees and ankles, both sides).
var LowerBody = [...]int{LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle}

// Landmark is a single body keypoint in normalized frame coordinates.
type Landmark struct {
	// X and Y are normalized to [0,1] relative to frame width/height
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// Z is depth relative to the hip midpoint, same scale as X
	Z float64 `json:"z"`
	// Visibility is the detector's confidence that the point is visible [0,1]
	Visibility float64 `json:"v"`
}

// Landmarks is an ordered, fixed-length pose result. One slot per
// anatomical index; a slot for an undetected point carries zero
// visibility rather than being absent.
type Landmarks [LandmarkCount]Landmark

// InferenceResult is the output of one detector invocation on one frame.
// Produced by a pool worker, consumed exactly once by the merge loop.
type InferenceResult struct {
	// FrameSeq is the sequence number of the source frame
	FrameSeq uint64
	// TraceID carries the source frame's trace id
	TraceID string
	// PoseFound is false when the detector returned "no pose" for the frame
	PoseFound bool
	// Landmarks is only meaningful when PoseFound is true
	Landmarks Landmarks
	// CompletedAt is when the detector call returned
	CompletedAt time.Time
	// DetectMS is the detector's reported processing time
	DetectMS float64
}

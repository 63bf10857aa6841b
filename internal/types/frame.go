package types

import "time"

// Frame represents a single decoded video frame.
//
// A frame is owned by the stream provider until it is handed to the
// dispatcher; after inference completes it is never retained or copied.
// Data must not be modified after the frame leaves the provider.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the intake loop
	Seq uint64
	// Timestamp is when the frame was captured/decoded
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the frame data (RGB24 by default)
	Data []byte
	// TraceID is a unique identifier for tracing a frame across the pipeline
	TraceID string
}

// StreamStats contains stream statistics
type StreamStats struct {
	FrameCount  uint64
	FPSTarget   int
	FPSReal     float64
	LatencyMS   int64
	Resolution  string
	Reconnects  uint32
	IsConnected bool
	Errors      uint64
}

// WorkerMetrics contains health metrics for an inference worker
type WorkerMetrics struct {
	FramesProcessed uint64    `json:"frames_processed"`
	FramesDropped   uint64    `json:"frames_dropped"`
	ResultsEmitted  uint64    `json:"results_emitted"`
	DetectFailures  uint64    `json:"detect_failures"`
	AvgLatencyMS    float64   `json:"avg_latency_ms"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

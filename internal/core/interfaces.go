package core

import (
	"context"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// StreamProvider abstracts the video frame source (RTSP camera or mock)
type StreamProvider interface {
	// Start begins frame production
	Start(ctx context.Context) error
	// Frames returns the channel of decoded frames
	Frames() <-chan types.Frame
	// Stop stops frame production and closes the frames channel
	Stop() error
	// Stats returns current stream statistics
	Stats() types.StreamStats
}

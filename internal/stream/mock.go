package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// MockStream generates synthetic RGB frames at a fixed rate. Used for
// development without a camera and in pipeline tests, typically paired
// with the synthetic pose detector.
type MockStream struct {
	width  int
	height int
	fps    int

	framesCh chan types.Frame
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu            sync.RWMutex
	framesEmitted uint64
	isRunning     bool
	startTime     time.Time
}

// NewMockStream creates a new mock stream provider
func NewMockStream(width, height, fps int) *MockStream {
	return &MockStream{
		width:    width,
		height:   height,
		fps:      fps,
		framesCh: make(chan types.Frame, 4),
		stopCh:   make(chan struct{}),
	}
}

// Start begins generating frames
func (m *MockStream) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("stream already running")
	}
	m.isRunning = true
	m.startTime = time.Now()
	m.mu.Unlock()

	slog.Info("mock stream starting",
		"width", m.width,
		"height", m.height,
		"fps", m.fps,
	)

	m.wg.Add(1)
	go m.generateFrames(ctx)

	return nil
}

// Frames returns the frames channel
func (m *MockStream) Frames() <-chan types.Frame {
	return m.framesCh
}

// Stop stops the stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	close(m.framesCh)

	slog.Info("mock stream stopped",
		"frames_emitted", m.framesEmitted,
		"duration", time.Since(m.startTime),
	)

	return nil
}

// Stats returns stream statistics
func (m *MockStream) Stats() types.StreamStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fpsReal float64
	if m.isRunning && m.framesEmitted > 0 {
		elapsed := time.Since(m.startTime).Seconds()
		if elapsed > 0 {
			fpsReal = float64(m.framesEmitted) / elapsed
		}
	}

	return types.StreamStats{
		FrameCount:  m.framesEmitted,
		FPSTarget:   m.fps,
		FPSReal:     fpsReal,
		Resolution:  fmt.Sprintf("%dx%d", m.width, m.height),
		IsConnected: m.isRunning,
	}
}

func (m *MockStream) generateFrames(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(m.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			frame := m.createFrame()
			select {
			case m.framesCh <- frame:
				m.mu.Lock()
				m.framesEmitted++
				m.mu.Unlock()
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			}
		}
	}
}

// createFrame allocates a black RGB24 frame. The synthetic detector
// does not read pixel data, so content does not matter.
func (m *MockStream) createFrame() types.Frame {
	return types.Frame{
		Timestamp: time.Now(),
		Width:     m.width,
		Height:    m.height,
		Data:      make([]byte, m.width*m.height*3),
	}
}

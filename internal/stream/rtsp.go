// Package stream provides video frame sources for the pose pipeline.
// The RTSP provider decodes a live camera feed through GStreamer; the
// mock provider generates synthetic frames for development and tests.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// RTSPStream decodes an RTSP camera feed into raw RGB frames using a
// GStreamer pipeline. Frames carry pixel data and capture time only;
// sequence numbers and trace IDs are assigned downstream at intake.
type RTSPStream struct {
	rtspURL   string
	width     int
	height    int
	targetFPS int

	pipeline *gst.Pipeline
	appsink  *app.Sink

	frames chan types.Frame
	mu     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frameCount  uint64
	bytesRead   uint64
	errorCount  uint64
	reconnects  uint32
	started     time.Time
	lastFrameAt atomic.Value

	maxRetries     int
	retryDelay     time.Duration
	maxRetryDelay  time.Duration
	currentRetries int
}

// RTSPConfig contains RTSP stream configuration
type RTSPConfig struct {
	RTSPURL string
	Width   int
	Height  int
	FPS     int
}

// NewRTSPStream creates a new RTSP stream provider
func NewRTSPStream(cfg RTSPConfig) (*RTSPStream, error) {
	if cfg.RTSPURL == "" {
		return nil, fmt.Errorf("rtsp_url is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution: %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 || cfg.FPS > 60 {
		return nil, fmt.Errorf("invalid fps: %d", cfg.FPS)
	}

	return &RTSPStream{
		rtspURL:       cfg.RTSPURL,
		width:         cfg.Width,
		height:        cfg.Height,
		targetFPS:     cfg.FPS,
		frames:        make(chan types.Frame, 4),
		maxRetries:    5,
		retryDelay:    1 * time.Second,
		maxRetryDelay: 30 * time.Second,
	}, nil
}

// Start initializes GStreamer and runs the pipeline with reconnection.
func (s *RTSPStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("stream already started")
	}

	gst.Init(nil)

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	s.wg.Add(1)
	go s.runPipeline()

	slog.Info("rtsp stream starting",
		"url", s.rtspURL,
		"resolution", fmt.Sprintf("%dx%d", s.width, s.height),
		"target_fps", s.targetFPS,
	)

	return nil
}

// runPipeline drives the GStreamer pipeline, reconnecting with
// exponential backoff on failure.
func (s *RTSPStream) runPipeline() {
	defer s.wg.Done()
	defer close(s.frames)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connectAndStream(); err != nil {
			atomic.AddUint64(&s.errorCount, 1)
			slog.Error("rtsp pipeline error", "error", err)
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.currentRetries++
		atomic.AddUint32(&s.reconnects, 1)

		if s.currentRetries > s.maxRetries {
			slog.Error("max retries exceeded, stopping stream",
				"retries", s.currentRetries,
			)
			return
		}

		delay := s.retryDelay * time.Duration(1<<uint(s.currentRetries-1))
		if delay > s.maxRetryDelay {
			delay = s.maxRetryDelay
		}

		slog.Warn("reconnecting to rtsp stream",
			"retry", s.currentRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return
		}
	}
}

// connectAndStream builds the decode pipeline and pumps frames until
// EOS, error, or shutdown.
func (s *RTSPStream) connectAndStream() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	s.pipeline = pipeline

	// TCP transport; UDP loses too many packets on the edge boxes
	rtspsrc, err := gst.NewElement("rtspsrc")
	if err != nil {
		return fmt.Errorf("failed to create rtspsrc: %w", err)
	}
	rtspsrc.SetProperty("location", s.rtspURL)
	rtspsrc.SetProperty("protocols", 4)
	rtspsrc.SetProperty("latency", 200)

	rtph264depay, _ := gst.NewElement("rtph264depay")
	avdecH264, _ := gst.NewElement("avdec_h264")
	videoconvert, _ := gst.NewElement("videoconvert")
	videoscale, _ := gst.NewElement("videoscale")

	videorate, _ := gst.NewElement("videorate")
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, _ := gst.NewElement("capsfilter")
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1",
		s.width, s.height, s.targetFPS,
	))
	capsfilter.SetProperty("caps", caps)

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	s.appsink = appsink

	// Keep at most one buffer; stale frames are useless for pose
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(sink)
		},
	})

	pipeline.AddMany(rtspsrc, rtph264depay, avdecH264, videoconvert, videoscale, videorate, capsfilter, appsink.Element)
	gst.ElementLinkMany(rtph264depay, avdecH264, videoconvert, videoscale, videorate, capsfilter, appsink.Element)

	rtspsrc.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		sinkPad := rtph264depay.GetStaticPad("sink")
		if sinkPad != nil {
			srcPad.Link(sinkPad)
		}
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to playing: %w", err)
	}

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-s.ctx.Done():
			pipeline.SetState(gst.StateNull)
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("end of stream")
			return nil

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
			)
			return fmt.Errorf("pipeline error: %w", gerr)

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				_, newState := msg.ParseStateChanged()
				if newState == gst.StatePlaying {
					s.currentRetries = 0
					slog.Info("rtsp stream connected")
				}
			}
		}
	}
}

// onNewSample copies the decoded buffer out of GStreamer memory and
// hands it to the frames channel without blocking the streaming thread.
func (s *RTSPStream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowEOS
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(data) == 0 {
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)

	frame := types.Frame{
		Data:      frameData,
		Width:     s.width,
		Height:    s.height,
		Timestamp: time.Now(),
	}

	atomic.AddUint64(&s.frameCount, 1)
	atomic.AddUint64(&s.bytesRead, uint64(len(data)))
	s.lastFrameAt.Store(time.Now())

	select {
	case s.frames <- frame:
	default:
		slog.Debug("dropping frame at source, channel full")
	}

	return gst.FlowOK
}

// Frames returns the channel of decoded frames
func (s *RTSPStream) Frames() <-chan types.Frame {
	return s.frames
}

// Stop signals the pipeline to shut down and waits bounded for it.
func (s *RTSPStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return fmt.Errorf("stream not started")
	}

	slog.Info("stopping rtsp stream")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("rtsp stream stopped",
			"frames_received", atomic.LoadUint64(&s.frameCount),
			"reconnects", atomic.LoadUint32(&s.reconnects),
			"uptime", time.Since(s.started),
		)
	case <-time.After(3 * time.Second):
		slog.Warn("rtsp stream stop timeout, pipeline may still be running")
	}

	s.cancel = nil
	s.ctx = nil
	s.pipeline = nil
	s.appsink = nil

	return nil
}

// Stats returns current stream statistics
func (s *RTSPStream) Stats() types.StreamStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	frameCount := atomic.LoadUint64(&s.frameCount)
	uptime := time.Since(s.started).Seconds()

	var fpsReal float64
	if uptime > 0 {
		fpsReal = float64(frameCount) / uptime
	}

	var latencyMS int64
	connected := false
	if last, ok := s.lastFrameAt.Load().(time.Time); ok && !last.IsZero() {
		latencyMS = time.Since(last).Milliseconds()
		connected = time.Since(last) < 5*time.Second
	}

	return types.StreamStats{
		FrameCount:  frameCount,
		FPSTarget:   s.targetFPS,
		FPSReal:     fpsReal,
		LatencyMS:   latencyMS,
		Resolution:  fmt.Sprintf("%dx%d", s.width, s.height),
		Reconnects:  atomic.LoadUint32(&s.reconnects),
		IsConnected: connected,
		Errors:      atomic.LoadUint64(&s.errorCount),
	}
}

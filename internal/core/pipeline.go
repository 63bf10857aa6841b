// Package core wires the pose pipeline together: stream intake, frame
// dispatch, the inference pool, metric merging, the shared snapshot
// store, and the MQTT/HTTP surfaces around them.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/VictorWong123/FlexFlow/internal/broadcast"
	"github.com/VictorWong123/FlexFlow/internal/config"
	"github.com/VictorWong123/FlexFlow/internal/control"
	"github.com/VictorWong123/FlexFlow/internal/detector"
	"github.com/VictorWong123/FlexFlow/internal/dispatch"
	"github.com/VictorWong123/FlexFlow/internal/metrics"
	"github.com/VictorWong123/FlexFlow/internal/state"
	"github.com/VictorWong123/FlexFlow/internal/stream"
	"github.com/VictorWong123/FlexFlow/internal/worker"
)

// Pipeline is the main service orchestrator
type Pipeline struct {
	cfg *config.Config

	stream         StreamProvider
	disp           *dispatch.Dispatcher
	pool           *worker.Pool
	merge          *merger
	store          *state.Store
	broadcaster    *broadcast.Broadcaster
	controlHandler *control.Handler
	healthServer   *http.Server

	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	isPaused  atomic.Bool
	cancelCtx context.CancelFunc

	framesIn     uint64 // atomic
	framesPaused uint64 // atomic
}

// New creates a pipeline from a configuration file
func New(configPath string) (*Pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"room_id", cfg.RoomID,
		"pool_size", cfg.Vision.PoolSize,
	)

	return NewWithConfig(cfg)
}

// NewWithConfig creates a pipeline from an already validated config
func NewWithConfig(cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{
		cfg:         cfg,
		disp:        dispatch.New(),
		store:       state.New(),
		broadcaster: broadcast.NewBroadcaster(cfg),
	}

	p.pool = worker.NewPool(cfg.Vision.PoolSize, p.detectorFactory(), p.disp)

	p.merge = newMerger(
		metrics.Config{
			PointingThreshold:   cfg.Vision.PointingThreshold,
			LowerBodyVisibility: cfg.Vision.LowerBodyVisibility,
			MinVisibility:       cfg.Vision.MinVisibility,
		},
		cfg.Vision.SmoothingWindow,
		cfg.Vision.StalenessFrames,
		p.store,
		p.broadcaster,
	)

	return p, nil
}

// detectorFactory returns the per-worker detector constructor. With a
// detector command configured each worker gets its own landmarker
// subprocess; otherwise the synthetic detector runs the pipeline
// end to end without a model.
func (p *Pipeline) detectorFactory() detector.Factory {
	if p.cfg.Vision.DetectorCommand != "" {
		return func(workerID string) (detector.Detector, error) {
			return detector.NewPythonLandmarker(detector.PythonConfig{
				WorkerID:  workerID,
				Command:   p.cfg.Vision.DetectorCommand,
				ModelPath: p.cfg.Vision.ModelPath,
			})
		}
	}

	slog.Warn("no detector_command configured, using synthetic pose detector")
	return func(workerID string) (detector.Detector, error) {
		return &detector.Synthetic{Latency: 5 * time.Millisecond}, nil
	}
}

// Store exposes the snapshot store for in-process readers (the agent).
func (p *Pipeline) Store() *state.Store {
	return p.store
}

// Run starts the pipeline and blocks until the context is cancelled
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("pipeline is already running")
	}
	p.isRunning = true
	p.started = time.Now()
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.cancelCtx = cancel
	p.mu.Unlock()

	slog.Info("pipeline starting", "instance_id", p.cfg.InstanceID)

	// Frame source: RTSP camera, or mock when none is configured
	width, height := p.cfg.Stream.Dimensions()
	if p.cfg.Camera.RTSPURL != "" {
		rtspStream, err := stream.NewRTSPStream(stream.RTSPConfig{
			RTSPURL: p.cfg.Camera.RTSPURL,
			Width:   width,
			Height:  height,
			FPS:     p.cfg.Stream.FPS,
		})
		if err != nil {
			return fmt.Errorf("failed to create rtsp stream: %w", err)
		}
		p.stream = rtspStream
		slog.Info("using rtsp stream", "url", p.cfg.Camera.RTSPURL)
	} else {
		p.stream = stream.NewMockStream(width, height, p.cfg.Stream.FPS)
		slog.Info("using mock stream (no rtsp_url configured)")
	}

	if err := p.stream.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	if err := p.broadcaster.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	p.controlHandler = control.NewHandler(p.cfg, p.broadcaster.Client, control.CommandCallbacks{
		OnGetStatus: p.getStatus,
		OnPause:     p.pauseInference,
		OnResume:    p.resumeInference,
		OnShutdown:  p.shutdownViaControl,
	})
	if err := p.controlHandler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	if err := p.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start inference pool: %w", err)
	}

	p.wg.Add(1)
	go p.intakeLoop(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.merge.run(p.pool.Results())
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.statsLogger(ctx, 30*time.Second)
	}()

	if err := p.startHealthServer(p.cfg.HTTP.Port); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}

	slog.Info("pipeline running",
		"workers", p.cfg.Vision.PoolSize,
		"http_port", p.cfg.HTTP.Port,
	)

	<-ctx.Done()

	slog.Info("pipeline run loop exiting")
	return nil
}

// intakeLoop stamps each decoded frame with a monotonic sequence number
// and trace ID, then offers it to the dispatcher. Offer never blocks;
// when all workers are busy the oldest pending frame is replaced.
func (p *Pipeline) intakeLoop(ctx context.Context) {
	defer p.wg.Done()

	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-p.stream.Frames():
			if !ok {
				slog.Debug("intake loop exiting, frames channel closed")
				return
			}

			if p.isPaused.Load() {
				atomic.AddUint64(&p.framesPaused, 1)
				continue
			}

			seq++
			frame.Seq = seq
			frame.TraceID = uuid.New().String()
			atomic.AddUint64(&p.framesIn, 1)

			p.disp.Offer(&frame)
		}
	}
}

// statsLogger periodically logs pipeline throughput and drop counters
func (p *Pipeline) statsLogger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispStats := p.disp.Stats()
			poolMetrics := p.pool.Metrics()
			mergeStats := p.merge.stats()
			streamStats := p.stream.Stats()

			slog.Info("pipeline stats",
				"frames_in", atomic.LoadUint64(&p.framesIn),
				"stream_fps", fmt.Sprintf("%.1f", streamStats.FPSReal),
				"dispatch_drops", dispStats.Drops,
				"frames_processed", poolMetrics.FramesProcessed,
				"avg_detect_ms", fmt.Sprintf("%.1f", poolMetrics.AvgLatencyMS),
				"snapshots_applied", mergeStats.Applied,
				"stale_discards", mergeStats.StaleDiscards,
				"no_pose_frames", mergeStats.NoPoseFrames,
			)

			if !p.isPaused.Load() {
				for id, ws := range dispStats.Workers {
					if ws.IsIdle {
						slog.Warn("worker has not consumed frames recently",
							"worker_id", id,
							"last_consumed_seq", ws.LastConsumedSeq,
							"last_consumed_at", ws.LastConsumedAt,
						)
					}
				}
			}
		}
	}
}

// Shutdown performs ordered graceful shutdown. Safe to call after Run
// returns; idempotent.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	slog.Info("shutting down pipeline")

	// 1. Stop the frame source so nothing new enters
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			slog.Error("failed to stop stream", "error", err)
		}
	}

	// 2. Close the dispatcher; blocked workers wake with nil
	p.disp.Close()

	// 3. Stop the pool; closing its results channel ends the merge loop
	if err := p.pool.Stop(p.ShutdownTimeout()); err != nil {
		slog.Error("failed to stop inference pool", "error", err)
	}

	// 4. Stop the control plane before dropping the MQTT connection
	if p.controlHandler != nil {
		if err := p.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 5. Wait for intake, merge, and stats goroutines
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown wait expired, goroutines abandoned")
	}

	// 6. Outer surfaces last
	if p.broadcaster != nil {
		if err := p.broadcaster.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}
	if p.healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.healthServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to stop health server", "error", err)
		}
	}

	// The last snapshot stays readable for late agent reads
	p.store.Close()

	slog.Info("pipeline shutdown complete", "uptime", time.Since(p.started))
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (p *Pipeline) ShutdownTimeout() time.Duration {
	return time.Duration(p.cfg.ShutdownTimeoutS) * time.Second
}

func (p *Pipeline) pauseInference() error {
	p.isPaused.Store(true)
	slog.Info("inference paused")
	return nil
}

func (p *Pipeline) resumeInference() error {
	p.isPaused.Store(false)
	slog.Info("inference resumed")
	return nil
}

func (p *Pipeline) shutdownViaControl() error {
	p.mu.RLock()
	cancel := p.cancelCtx
	p.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("pipeline not running")
	}
	cancel()
	return nil
}

func (p *Pipeline) getStatus() map[string]interface{} {
	p.mu.RLock()
	started := p.started
	running := p.isRunning
	p.mu.RUnlock()

	poolMetrics := p.pool.Metrics()
	mergeStats := p.merge.stats()

	status := map[string]interface{}{
		"instance_id":       p.cfg.InstanceID,
		"room_id":           p.cfg.RoomID,
		"uptime_s":          time.Since(started).Seconds(),
		"running":           running,
		"paused":            p.isPaused.Load(),
		"frames_in":         atomic.LoadUint64(&p.framesIn),
		"frames_processed":  poolMetrics.FramesProcessed,
		"detect_failures":   poolMetrics.DetectFailures,
		"snapshots_applied": mergeStats.Applied,
		"stale_discards":    mergeStats.StaleDiscards,
	}

	if _, version, ok := p.store.Current(); ok {
		status["snapshot_version"] = version
	}

	return status
}

// Package worker runs the blocking pose detector off the latency-
// sensitive path. A fixed-size pool of interchangeable workers pulls
// frames from the dispatcher, invokes the detector synchronously and
// emits inference results to a single consumer.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/detector"
	"github.com/VictorWong123/FlexFlow/internal/dispatch"
	"github.com/VictorWong123/FlexFlow/internal/types"
)

const resultsBuffer = 8

// Pool owns its worker goroutines and one detector instance per worker.
// Detector calls may complete out of submission order; ordering is the
// merge consumer's concern, not the pool's.
type Pool struct {
	size    int
	factory detector.Factory
	disp    *dispatch.Dispatcher

	results  chan types.InferenceResult
	stopping chan struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	isActive atomic.Bool

	framesProcessed uint64 // atomic
	resultsEmitted  uint64 // atomic
	resultsDropped  uint64 // atomic
	detectFailures  uint64 // atomic
	totalLatencyMS  uint64 // atomic
	lastSeenAt      atomic.Value
}

// NewPool creates a pool of the given size. The factory is invoked once
// per worker at Start.
func NewPool(size int, factory detector.Factory, disp *dispatch.Dispatcher) *Pool {
	return &Pool{
		size:     size,
		factory:  factory,
		disp:     disp,
		results:  make(chan types.InferenceResult, resultsBuffer),
		stopping: make(chan struct{}),
	}
}

// Start creates the detectors and spawns the workers.
func (p *Pool) Start(ctx context.Context) error {
	if p.isActive.Load() {
		return fmt.Errorf("pool already started")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.lastSeenAt.Store(time.Now())

	for i := 0; i < p.size; i++ {
		workerID := fmt.Sprintf("pose-worker-%d", i)

		det, err := p.factory(workerID)
		if err != nil {
			p.cancel()
			for j := 0; j < i; j++ {
				p.disp.Unsubscribe(fmt.Sprintf("pose-worker-%d", j))
			}
			p.wg.Wait()
			return fmt.Errorf("failed to create detector for %s: %w", workerID, err)
		}

		read := p.disp.Subscribe(workerID)

		p.wg.Add(1)
		go p.run(ctx, workerID, det, read)
	}

	p.isActive.Store(true)
	slog.Info("inference pool started", "workers", p.size)
	return nil
}

// Results returns the channel of inference results. Closed by Stop.
func (p *Pool) Results() <-chan types.InferenceResult {
	return p.results
}

// run is one worker: blocking read, blocking detect, non-blocking emit.
func (p *Pool) run(ctx context.Context, workerID string, det detector.Detector, read func() *types.Frame) {
	defer p.wg.Done()
	defer det.Close()

	for {
		frame := read()
		if frame == nil {
			// Dispatcher closed or worker unsubscribed
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		atomic.AddUint64(&p.framesProcessed, 1)

		start := time.Now()
		lm, found, err := det.Detect(ctx, frame)
		elapsed := time.Since(start)

		if err != nil {
			// Per-frame soft failure: skip the frame, keep the worker
			atomic.AddUint64(&p.detectFailures, 1)
			if ctx.Err() == nil {
				slog.Warn("detector call failed",
					"worker_id", workerID,
					"frame_seq", frame.Seq,
					"trace_id", frame.TraceID,
					"error", err,
				)
			}
			continue
		}

		result := types.InferenceResult{
			FrameSeq:    frame.Seq,
			TraceID:     frame.TraceID,
			PoseFound:   found,
			Landmarks:   lm,
			CompletedAt: time.Now(),
			DetectMS:    float64(elapsed.Microseconds()) / 1000,
		}

		select {
		case <-p.stopping:
			// Detector outlived Stop; the result is late, shed it
			atomic.AddUint64(&p.resultsDropped, 1)
			slog.Debug("dropping inference result, pool stopping",
				"worker_id", workerID,
				"frame_seq", frame.Seq,
			)
			return
		default:
		}

		select {
		case p.results <- result:
			atomic.AddUint64(&p.resultsEmitted, 1)
			atomic.AddUint64(&p.totalLatencyMS, uint64(elapsed.Milliseconds()))
			p.lastSeenAt.Store(time.Now())
		default:
			// Merge consumer behind: shed the result, never block the worker
			atomic.AddUint64(&p.resultsDropped, 1)
			slog.Debug("dropping inference result, consumer busy",
				"worker_id", workerID,
				"frame_seq", frame.Seq,
			)
		}
	}
}

// Stop cancels in-flight detector calls and waits for the workers
// within the given timeout. A detector call still running past the
// timeout has its eventual result discarded. The results channel
// closes once the last worker has returned, never before, so an
// abandoned worker can never send on a closed channel. Idempotent.
func (p *Pool) Stop(timeout time.Duration) error {
	if !p.isActive.Swap(false) {
		return nil
	}

	close(p.stopping)
	p.cancel()

	// Wake workers blocked on the dispatcher
	for i := 0; i < p.size; i++ {
		p.disp.Unsubscribe(fmt.Sprintf("pose-worker-%d", i))
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(p.results)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("inference pool stop timeout, abandoning in-flight work",
			"timeout", timeout,
		)
	}

	slog.Info("inference pool stopped",
		"frames_processed", atomic.LoadUint64(&p.framesProcessed),
		"results_emitted", atomic.LoadUint64(&p.resultsEmitted),
		"detect_failures", atomic.LoadUint64(&p.detectFailures),
	)
	return nil
}

// Metrics returns aggregated pool health metrics.
func (p *Pool) Metrics() types.WorkerMetrics {
	emitted := atomic.LoadUint64(&p.resultsEmitted)

	var avgLatency float64
	if emitted > 0 {
		avgLatency = float64(atomic.LoadUint64(&p.totalLatencyMS)) / float64(emitted)
	}

	lastSeen, _ := p.lastSeenAt.Load().(time.Time)

	return types.WorkerMetrics{
		FramesProcessed: atomic.LoadUint64(&p.framesProcessed),
		FramesDropped:   atomic.LoadUint64(&p.resultsDropped),
		ResultsEmitted:  emitted,
		DetectFailures:  atomic.LoadUint64(&p.detectFailures),
		AvgLatencyMS:    avgLatency,
		LastSeenAt:      lastSeen,
	}
}

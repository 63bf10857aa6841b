package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

const (
	writeTimeout = 2 * time.Second
	stopTimeout  = 2 * time.Second
)

// PythonLandmarker bridges to a Python pose landmarker subprocess.
//
// Protocol: strictly alternating request/response over stdin/stdout,
// each message msgpack-encoded with a 4-byte big-endian length prefix.
// MsgPack carries the frame bytes natively, no base64 overhead. The
// subprocess's stderr is relayed into slog.
type PythonLandmarker struct {
	workerID string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.ReadCloser

	mu     sync.Mutex // serializes Detect (one in-flight request)
	broken atomic.Bool
	closed atomic.Bool
	wg     sync.WaitGroup

	detectCount uint64
}

// PythonConfig configures the subprocess launch.
type PythonConfig struct {
	// WorkerID tags log lines from this instance
	WorkerID string
	// Command is the launcher (wrapper script that activates the venv)
	Command string
	// ModelPath is the landmarker model passed to the worker
	ModelPath string
}

// detectRequest is the wire format sent to the Python worker.
type detectRequest struct {
	FrameData []byte            `msgpack:"frame_data"`
	Width     int               `msgpack:"width"`
	Height    int               `msgpack:"height"`
	Meta      map[string]string `msgpack:"meta"`
}

// detectResponse is the wire format read back.
type detectResponse struct {
	PoseFound bool         `msgpack:"pose_found"`
	Landmarks [][4]float64 `msgpack:"landmarks"`
	Timing    struct {
		TotalMS float64 `msgpack:"total_ms"`
	} `msgpack:"timing"`
	Error string `msgpack:"error"`
}

// NewPythonLandmarker spawns the subprocess and starts its log relay.
func NewPythonLandmarker(cfg PythonConfig) (*PythonLandmarker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("detector command is required")
	}

	d := &PythonLandmarker{workerID: cfg.WorkerID}

	args := []string{}
	if cfg.ModelPath != "" {
		args = append(args, "--model", cfg.ModelPath)
	}
	d.cmd = exec.Command(cfg.Command, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	d.stdin = stdin

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	d.stdout = bufio.NewReader(stdout)

	stderr, err := d.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	d.stderr = stderr

	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start landmarker process: %w", err)
	}

	slog.Info("pose landmarker process spawned",
		"worker_id", cfg.WorkerID,
		"pid", d.cmd.Process.Pid,
		"model", cfg.ModelPath,
	)

	d.wg.Add(2)
	go d.logStderr()
	go d.waitProcess()

	return d, nil
}

// Detect implements Detector. Not safe for concurrent calls from
// multiple goroutines on the same instance beyond the internal
// serialization; the pool gives each worker its own instance.
func (d *PythonLandmarker) Detect(ctx context.Context, frame *types.Frame) (types.Landmarks, bool, error) {
	var lm types.Landmarks

	if d.closed.Load() || d.broken.Load() {
		return lm, false, fmt.Errorf("landmarker unavailable")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	req := detectRequest{
		FrameData: frame.Data,
		Width:     frame.Width,
		Height:    frame.Height,
		Meta: map[string]string{
			"seq":       fmt.Sprintf("%d", frame.Seq),
			"trace_id":  frame.TraceID,
			"timestamp": frame.Timestamp.Format(time.RFC3339Nano),
		},
	}

	payload, err := msgpack.Marshal(req)
	if err != nil {
		return lm, false, fmt.Errorf("failed to marshal detect request: %w", err)
	}

	if err := d.writeFrame(ctx, payload); err != nil {
		return lm, false, err
	}

	resp, err := d.readResponse(ctx)
	if err != nil {
		return lm, false, err
	}
	if resp.Error != "" {
		return lm, false, fmt.Errorf("landmarker error: %s", resp.Error)
	}
	if !resp.PoseFound {
		return lm, false, nil
	}
	if len(resp.Landmarks) != types.LandmarkCount {
		return lm, false, fmt.Errorf("landmarker returned %d landmarks, want %d",
			len(resp.Landmarks), types.LandmarkCount)
	}

	for i, p := range resp.Landmarks {
		lm[i] = types.Landmark{X: p[0], Y: p[1], Z: p[2], Visibility: p[3]}
	}

	atomic.AddUint64(&d.detectCount, 1)
	return lm, true, nil
}

// writeFrame writes a length-prefixed message with a bounded timeout so
// a hung subprocess cannot stall its worker forever.
func (d *PythonLandmarker) writeFrame(ctx context.Context, payload []byte) error {
	writeErr := make(chan error, 1)
	go func() {
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, uint32(len(payload)))

		if _, err := d.stdin.Write(prefix); err != nil {
			writeErr <- fmt.Errorf("failed to write length prefix: %w", err)
			return
		}
		if _, err := d.stdin.Write(payload); err != nil {
			writeErr <- fmt.Errorf("failed to write request: %w", err)
			return
		}
		writeErr <- nil
	}()

	select {
	case err := <-writeErr:
		return err
	case <-time.After(writeTimeout):
		d.broken.Store(true)
		return fmt.Errorf("stdin write timeout (landmarker may be hung)")
	case <-ctx.Done():
		d.broken.Store(true)
		return ctx.Err()
	}
}

// readResponse reads one length-prefixed message. If the caller's
// context is cancelled mid-read the instance is marked broken rather
// than risking a desynchronized stream: the late result is discarded
// and the process is torn down by Close.
func (d *PythonLandmarker) readResponse(ctx context.Context) (*detectResponse, error) {
	type readResult struct {
		resp *detectResponse
		err  error
	}

	resultCh := make(chan readResult, 1)
	go func() {
		prefix := make([]byte, 4)
		if _, err := io.ReadFull(d.stdout, prefix); err != nil {
			resultCh <- readResult{err: fmt.Errorf("failed to read length prefix: %w", err)}
			return
		}

		msg := make([]byte, binary.BigEndian.Uint32(prefix))
		if _, err := io.ReadFull(d.stdout, msg); err != nil {
			resultCh <- readResult{err: fmt.Errorf("failed to read response: %w", err)}
			return
		}

		var resp detectResponse
		if err := msgpack.Unmarshal(msg, &resp); err != nil {
			resultCh <- readResult{err: fmt.Errorf("failed to unmarshal response: %w", err)}
			return
		}
		resultCh <- readResult{resp: &resp}
	}()

	select {
	case r := <-resultCh:
		return r.resp, r.err
	case <-ctx.Done():
		d.broken.Store(true)
		return nil, ctx.Err()
	}
}

// Close shuts the subprocess down: stdin close signals a graceful exit,
// a bounded wait, then force kill. Idempotent.
func (d *PythonLandmarker) Close() error {
	if d.closed.Swap(true) {
		return nil
	}

	_ = d.stdin.Close()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopTimeout):
		slog.Warn("landmarker did not exit, killing",
			"worker_id", d.workerID,
			"pid", d.cmd.Process.Pid,
		)
		_ = d.cmd.Process.Kill()
		<-done
	}

	slog.Info("pose landmarker closed",
		"worker_id", d.workerID,
		"detects", atomic.LoadUint64(&d.detectCount),
	)
	return nil
}

// logStderr relays the subprocess's stderr into slog, mapping the
// Python log level onto ours.
func (d *PythonLandmarker) logStderr() {
	defer d.wg.Done()

	scanner := bufio.NewScanner(d.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]") || strings.Contains(line, "[CRITICAL]"):
			slog.Error("landmarker stderr", "worker_id", d.workerID, "line", line)
		case strings.Contains(line, "[WARNING]") || strings.Contains(line, "[WARN]"):
			slog.Warn("landmarker stderr", "worker_id", d.workerID, "line", line)
		default:
			slog.Debug("landmarker stderr", "worker_id", d.workerID, "line", line)
		}
	}
}

// waitProcess reaps the subprocess so it never becomes a zombie.
func (d *PythonLandmarker) waitProcess() {
	defer d.wg.Done()

	err := d.cmd.Wait()
	if err != nil && !d.closed.Load() {
		d.broken.Store(true)
		slog.Error("landmarker process exited unexpectedly",
			"worker_id", d.workerID,
			"error", err,
		)
		return
	}
	slog.Debug("landmarker process exited", "worker_id", d.workerID)
}

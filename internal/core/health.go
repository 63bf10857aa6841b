package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/VictorWong123/FlexFlow/internal/types"
)

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status          string              `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds   int64               `json:"uptime_seconds"`
	StreamConnected bool                `json:"stream_connected"`
	MQTTConnected   bool                `json:"mqtt_connected"`
	Paused          bool                `json:"paused"`
	Pool            types.WorkerMetrics `json:"pool"`
	SnapshotsOut    uint64              `json:"snapshots_applied"`
	StaleDiscards   uint64              `json:"stale_discards"`
	DispatchDrops   uint64              `json:"dispatch_drops"`
}

// HealthCheck returns the current health status of the service
func (p *Pipeline) HealthCheck() HealthStatus {
	p.mu.RLock()
	started := p.started
	running := p.isRunning
	p.mu.RUnlock()

	mergeStats := p.merge.stats()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(started).Seconds()),
		Paused:        p.isPaused.Load(),
		Pool:          p.pool.Metrics(),
		SnapshotsOut:  mergeStats.Applied,
		StaleDiscards: mergeStats.StaleDiscards,
		DispatchDrops: p.disp.Stats().Drops,
	}

	if p.stream != nil {
		status.StreamConnected = p.stream.Stats().IsConnected
	}
	if p.broadcaster != nil {
		status.MQTTConnected = p.broadcaster.Stats().Connected
	}

	if !running {
		status.Status = "unhealthy"
	} else if !status.StreamConnected || !status.MQTTConnected {
		status.Status = "degraded"
	}

	return status
}

// livenessHandler handles /health (simple liveness check)
func (p *Pipeline) livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(started).Seconds()),
	})
}

// readinessHandler handles /readiness (detailed readiness check)
func (p *Pipeline) readinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := p.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// bodyMetricsHandler handles /v1/body-metrics: the agent-facing read of
// the current snapshot. 204 means no inference has completed yet.
func (p *Pipeline) bodyMetricsHandler(w http.ResponseWriter, r *http.Request) {
	snap, version, ok := p.store.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Snapshot-Version", strconv.FormatUint(version, 10))
	if p.store.Closed() {
		// Pipeline is down; the snapshot is the last one it produced
		w.Header().Set("X-Pipeline-Closed", "true")
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snap)
}

// startHealthServer starts the HTTP server on the given port
func (p *Pipeline) startHealthServer(port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", p.livenessHandler)
	mux.HandleFunc("/readiness", p.readinessHandler)
	mux.HandleFunc("/v1/body-metrics", p.bodyMetricsHandler)

	p.healthServer = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health server",
		"port", port,
		"endpoints", []string{"/health", "/readiness", "/v1/body-metrics"},
	)

	go func() {
		if err := p.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()

	return nil
}

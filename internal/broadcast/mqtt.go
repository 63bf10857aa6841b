// Package broadcast pushes body-metrics snapshots to downstream agents
// over MQTT. Delivery is best effort: a slow or absent broker never
// backpressures the pipeline, and publishes are throttled so the wire
// rate stays bounded regardless of inference throughput.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/VictorWong123/FlexFlow/internal/config"
	"github.com/VictorWong123/FlexFlow/internal/types"
)

// Broadcaster publishes snapshots and health reports to an MQTT broker
type Broadcaster struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane subscription

	interval time.Duration

	mu            sync.RWMutex
	connected     bool
	published     uint64
	throttled     uint64
	errors        uint64
	lastPublished time.Time
}

// NewBroadcaster creates a broadcaster with the configured throttle
// interval between snapshot publishes.
func NewBroadcaster(cfg *config.Config) *Broadcaster {
	return &Broadcaster{
		cfg:      cfg,
		interval: time.Duration(cfg.Vision.BroadcastIntervalMS) * time.Millisecond,
	}
}

// Connect establishes connection to the MQTT broker
func (b *Broadcaster) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", b.cfg.MQTT.Broker))
	opts.SetClientID(b.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		b.mu.Lock()
		b.connected = true
		b.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", b.cfg.MQTT.Broker,
			"client_id", b.cfg.InstanceID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		b.mu.Lock()
		b.connected = false
		b.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", b.cfg.MQTT.Broker,
		)
	}

	b.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", b.cfg.MQTT.Broker)

	token := b.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	return nil
}

// PublishSnapshot publishes a body-metrics snapshot to the landmarks
// topic. Snapshots arriving faster than the throttle interval are
// silently skipped; callers should treat a skip as success. The call
// returns as soon as the publish is handed to the client: the caller
// sits on the merge path and must not wait out a sick broker, so
// delivery outcome is tracked asynchronously in Stats.
func (b *Broadcaster) PublishSnapshot(snap types.BodyMetricsSnapshot) error {
	b.mu.Lock()
	if !b.connected {
		b.errors++
		b.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}
	if time.Since(b.lastPublished) < b.interval {
		b.throttled++
		b.mu.Unlock()
		return nil
	}
	b.lastPublished = time.Now()
	b.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		b.mu.Lock()
		b.errors++
		b.mu.Unlock()
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	topic := b.cfg.MQTT.Topics.Landmarks
	qos := b.getQoS("landmarks")

	token := b.Client.Publish(topic, qos, false, payload)
	go func() {
		if !token.WaitTimeout(2 * time.Second) {
			b.mu.Lock()
			b.errors++
			b.mu.Unlock()
			slog.Debug("snapshot publish timeout", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			b.mu.Lock()
			b.errors++
			b.mu.Unlock()
			slog.Debug("snapshot publish failed", "topic", topic, "error", err)
			return
		}

		b.mu.Lock()
		b.published++
		b.mu.Unlock()

		slog.Debug("snapshot published",
			"topic", topic,
			"frame_seq", snap.SourceFrameSeq,
			"size", len(payload),
		)
	}()

	return nil
}

// PublishHealth publishes a health report payload
func (b *Broadcaster) PublishHealth(payload []byte) error {
	b.mu.RLock()
	connected := b.connected
	b.mu.RUnlock()
	if !connected {
		return fmt.Errorf("mqtt not connected")
	}

	topic := b.cfg.MQTT.Topics.Health
	qos := b.getQoS("health")

	token := b.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}

	return token.Error()
}

// Disconnect closes the MQTT connection
func (b *Broadcaster) Disconnect() error {
	if b.Client != nil && b.Client.IsConnected() {
		b.Client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}

	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	return nil
}

// Stats contains broadcaster statistics
type Stats struct {
	Connected bool
	Published uint64
	Throttled uint64
	Errors    uint64
}

// Stats returns broadcaster statistics
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		Connected: b.connected,
		Published: b.published,
		Throttled: b.throttled,
		Errors:    b.errors,
	}
}

func (b *Broadcaster) getQoS(kind string) byte {
	if qos, ok := b.cfg.MQTT.QoS[kind]; ok {
		return qos
	}
	return 0
}

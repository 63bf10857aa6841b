package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Vision defaults. The pointing threshold and smoothing window carry no
// documented derivation upstream; treat them as starting points to tune.
const (
	defaultPoolSize            = 2
	defaultPointingThreshold   = 0.1
	defaultLowerBodyVisibility = 0.5
	defaultMinVisibility       = 0.6
	defaultSmoothingWindow     = 5
	defaultStalenessFrames     = 15
	defaultBroadcastIntervalMS = 100
)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Validate room_id
	if cfg.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}

	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}

	// Validate stream config
	if cfg.Stream.Resolution == "" {
		cfg.Stream.Resolution = "480p"
	}
	if _, ok := resolutions[cfg.Stream.Resolution]; !ok {
		return fmt.Errorf("stream.resolution must be one of 480p, 512p, 720p, 1080p, got %q", cfg.Stream.Resolution)
	}
	if cfg.Stream.FPS <= 0 {
		return fmt.Errorf("stream.fps must be > 0")
	}

	if err := validateVision(&cfg.Vision); err != nil {
		return fmt.Errorf("vision validation failed: %w", err)
	}

	// Validate MQTT broker
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	// Set default topics if not provided
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("flexflow/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Landmarks == "" {
		cfg.MQTT.Topics.Landmarks = fmt.Sprintf("flexflow/landmarks/%s", cfg.RoomID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("flexflow/health/%s", cfg.InstanceID)
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control":   1,
			"landmarks": 0,
			"health":    0,
		}
	}

	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}

	return nil
}

// validateVision validates pipeline settings and fills in defaults
func validateVision(v *VisionConfig) error {
	if v.PoolSize == 0 {
		v.PoolSize = defaultPoolSize
	}
	if v.PoolSize < 0 || v.PoolSize > 16 {
		return fmt.Errorf("pool_size must be between 1 and 16, got %d", v.PoolSize)
	}

	if v.PointingThreshold == 0 {
		v.PointingThreshold = defaultPointingThreshold
	}
	if v.PointingThreshold < 0 || v.PointingThreshold > 1 {
		return fmt.Errorf("pointing_threshold must be within (0,1], got %v", v.PointingThreshold)
	}

	if v.LowerBodyVisibility == 0 {
		v.LowerBodyVisibility = defaultLowerBodyVisibility
	}
	if v.LowerBodyVisibility < 0 || v.LowerBodyVisibility > 1 {
		return fmt.Errorf("lower_body_visibility must be within (0,1], got %v", v.LowerBodyVisibility)
	}

	if v.MinVisibility == 0 {
		v.MinVisibility = defaultMinVisibility
	}
	if v.MinVisibility < 0 || v.MinVisibility > 1 {
		return fmt.Errorf("min_visibility must be within (0,1], got %v", v.MinVisibility)
	}

	if v.SmoothingWindow == 0 {
		v.SmoothingWindow = defaultSmoothingWindow
	}
	if v.SmoothingWindow < 1 {
		return fmt.Errorf("smoothing_window must be >= 1, got %d", v.SmoothingWindow)
	}

	if v.StalenessFrames == 0 {
		v.StalenessFrames = defaultStalenessFrames
	}
	if v.StalenessFrames < 1 {
		return fmt.Errorf("staleness_frames must be >= 1, got %d", v.StalenessFrames)
	}

	if v.BroadcastIntervalMS == 0 {
		v.BroadcastIntervalMS = defaultBroadcastIntervalMS
	}
	if v.BroadcastIntervalMS < 0 {
		return fmt.Errorf("broadcast_interval_ms must be >= 0, got %d", v.BroadcastIntervalMS)
	}

	return nil
}

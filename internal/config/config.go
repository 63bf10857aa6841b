package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete flexvisiond configuration
type Config struct {
	InstanceID       string       `yaml:"instance_id"`
	RoomID           string       `yaml:"room_id"`
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig `yaml:"camera"`
	Stream           StreamConfig `yaml:"stream"`
	Vision           VisionConfig `yaml:"vision"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	HTTP             HTTPConfig   `yaml:"http"`
}

// CameraConfig contains camera settings
type CameraConfig struct {
	// RTSPURL is the camera source; empty falls back to the mock stream
	RTSPURL string `yaml:"rtsp_url"`
}

// StreamConfig contains stream processing settings
type StreamConfig struct {
	Resolution string `yaml:"resolution"` // 480p, 512p, 720p, 1080p
	FPS        int    `yaml:"fps"`        // target fps
}

var resolutions = map[string][2]int{
	"480p":  {640, 480},
	"512p":  {512, 512},
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
}

// Dimensions returns the pixel width and height for the configured
// resolution preset.
func (s StreamConfig) Dimensions() (int, int) {
	d := resolutions[s.Resolution]
	return d[0], d[1]
}

// VisionConfig contains pose pipeline settings. The geometric thresholds
// live in the detector's normalized coordinate space; all of them are
// tunable configuration rather than load-bearing constants.
type VisionConfig struct {
	// PoolSize is the number of inference workers (one detector process each)
	PoolSize int `yaml:"pool_size"`
	// DetectorCommand launches the pose landmarker subprocess
	DetectorCommand string `yaml:"detector_command"`
	// ModelPath is passed to the detector subprocess
	ModelPath string `yaml:"model_path"`
	// PointingThreshold is the max normalized fingertip-to-joint distance
	PointingThreshold float64 `yaml:"pointing_threshold"`
	// LowerBodyVisibility is the per-landmark floor for body-mode classification
	LowerBodyVisibility float64 `yaml:"lower_body_visibility"`
	// MinVisibility is the floor below which a landmark is absent for metrics
	MinVisibility float64 `yaml:"min_visibility"`
	// SmoothingWindow is the moving-average window per scalar channel
	SmoothingWindow int `yaml:"smoothing_window"`
	// StalenessFrames is how many consecutive invalid frames clear a channel
	StalenessFrames int `yaml:"staleness_frames"`
	// BroadcastIntervalMS throttles the outbound landmark broadcast
	BroadcastIntervalMS int `yaml:"broadcast_interval_ms"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control   string `yaml:"control"`
	Landmarks string `yaml:"landmarks"`
	Health    string `yaml:"health"`
}

// HTTPConfig contains the health/metrics HTTP server settings
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

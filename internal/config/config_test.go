package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flexvision.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
instance_id: flexvision-test
room_id: room-1
stream:
  fps: 15
mqtt:
  broker: localhost:1883
`

func TestLoadMinimalConfigFillsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Vision.PoolSize != defaultPoolSize {
		t.Errorf("PoolSize = %d, want %d", cfg.Vision.PoolSize, defaultPoolSize)
	}
	if cfg.Vision.PointingThreshold != defaultPointingThreshold {
		t.Errorf("PointingThreshold = %v, want %v", cfg.Vision.PointingThreshold, defaultPointingThreshold)
	}
	if cfg.Vision.SmoothingWindow != defaultSmoothingWindow {
		t.Errorf("SmoothingWindow = %d, want %d", cfg.Vision.SmoothingWindow, defaultSmoothingWindow)
	}
	if cfg.Vision.StalenessFrames != defaultStalenessFrames {
		t.Errorf("StalenessFrames = %d, want %d", cfg.Vision.StalenessFrames, defaultStalenessFrames)
	}
	if cfg.Stream.Resolution != "480p" {
		t.Errorf("Resolution = %q, want 480p", cfg.Stream.Resolution)
	}
	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("ShutdownTimeoutS = %d, want 5", cfg.ShutdownTimeoutS)
	}
	if cfg.MQTT.Topics.Control != "flexflow/control/flexvision-test" {
		t.Errorf("control topic = %q", cfg.MQTT.Topics.Control)
	}
	if cfg.MQTT.Topics.Landmarks != "flexflow/landmarks/room-1" {
		t.Errorf("landmarks topic = %q", cfg.MQTT.Topics.Landmarks)
	}
	if cfg.MQTT.QoS["control"] != 1 {
		t.Errorf("control qos = %d, want 1", cfg.MQTT.QoS["control"])
	}
	if cfg.HTTP.Port != "8080" {
		t.Errorf("http port = %q, want 8080", cfg.HTTP.Port)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing instance_id", func(c *Config) { c.InstanceID = "" }},
		{"uppercase instance_id", func(c *Config) { c.InstanceID = "Flex-Vision" }},
		{"missing room_id", func(c *Config) { c.RoomID = "" }},
		{"zero fps", func(c *Config) { c.Stream.FPS = 0 }},
		{"unknown resolution", func(c *Config) { c.Stream.Resolution = "4k" }},
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"oversized pool", func(c *Config) { c.Vision.PoolSize = 64 }},
		{"pointing threshold above 1", func(c *Config) { c.Vision.PointingThreshold = 1.5 }},
		{"negative smoothing window", func(c *Config) { c.Vision.SmoothingWindow = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				InstanceID: "flexvision-test",
				RoomID:     "room-1",
				Stream:     StreamConfig{Resolution: "480p", FPS: 15},
				MQTT:       MQTTConfig{Broker: "localhost:1883"},
			}
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestStreamDimensions(t *testing.T) {
	s := StreamConfig{Resolution: "720p"}
	w, h := s.Dimensions()
	if w != 1280 || h != 720 {
		t.Errorf("Dimensions() = %dx%d, want 1280x720", w, h)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/flexvision.yaml"); err == nil {
		t.Error("Load succeeded on missing file")
	}
}

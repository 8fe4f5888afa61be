package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.Equal(t, "factory/+/+/+", cfg.Topics.TelemetryFilter)
	assert.Equal(t, "control/#", cfg.Topics.ControlFilter)
	assert.Equal(t, "alerts", cfg.Topics.AlertPrefix)
	assert.Equal(t, "audit/actions", cfg.Topics.Audit)

	assert.Equal(t, 120, cfg.Detector.WindowSeconds)
	assert.Equal(t, 10, cfg.Detector.MinSamples)
	assert.Equal(t, 100, cfg.Detector.MaxSamples)
	assert.Equal(t, 4.0, cfg.Detector.MediumThreshold)
	assert.Equal(t, 8.0, cfg.Detector.HighThreshold)
	assert.Equal(t, 30, cfg.Detector.DebounceSeconds)

	assert.Equal(t, 1000, cfg.Policy.AuditCapacity)
	assert.Equal(t, 5*time.Second, cfg.Policy.EnforcementTimeout)

	assert.Equal(t, 120*time.Second, cfg.WindowSpan())
	assert.Equal(t, 30*time.Second, cfg.DebounceInterval())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GHOSTMESH_MQTT_HOST", "broker.factory.local")
	t.Setenv("GHOSTMESH_DETECTOR_WINDOW_SECONDS", "60")
	t.Setenv("GHOSTMESH_TELEMETRY_ENCODING", "msgpack")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "broker.factory.local", cfg.MQTT.Host)
	assert.Equal(t, 60, cfg.Detector.WindowSeconds)
	assert.Equal(t, "msgpack", cfg.Telemetry.Encoding)
	assert.Equal(t, 60*time.Second, cfg.WindowSpan())
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	cfg := base(t)
	cfg.MQTT.Port = 0
	assert.Error(t, validateConfig(cfg))

	cfg = base(t)
	cfg.Telemetry.Encoding = "xml"
	assert.Error(t, validateConfig(cfg))

	cfg = base(t)
	cfg.Detector.MinSamples = 1
	assert.Error(t, validateConfig(cfg))

	cfg = base(t)
	cfg.Detector.MaxSamples = 5
	assert.Error(t, validateConfig(cfg))

	cfg = base(t)
	cfg.Detector.HighThreshold = 2.0
	assert.Error(t, validateConfig(cfg))

	cfg = base(t)
	cfg.Policy.AuditCapacity = 0
	assert.Error(t, validateConfig(cfg))

	cfg = base(t)
	cfg.Policy.CircuitBreaker.MaxFailures = 0
	assert.Error(t, validateConfig(cfg))
}

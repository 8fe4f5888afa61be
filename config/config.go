package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the GhostMesh core. Fixed at process
// start; there is no hot-reload.
type Config struct {
	MQTT struct {
		Host           string        `mapstructure:"host"`
		Port           int           `mapstructure:"port"`
		Username       string        `mapstructure:"username"`
		Password       string        `mapstructure:"password"`
		ClientID       string        `mapstructure:"client_id"`
		QoS            byte          `mapstructure:"qos"`
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
		PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	} `mapstructure:"mqtt"`

	Topics struct {
		// TelemetryFilter matches factory/<line>/<asset>/<signal>.
		TelemetryFilter string `mapstructure:"telemetry_filter"`
		// ControlFilter matches control/<asset>/<action>.
		ControlFilter string `mapstructure:"control_filter"`
		// AlertPrefix is the root of alerts/<asset>/<signal>.
		AlertPrefix string `mapstructure:"alert_prefix"`
		// Audit is the retained audit trail topic.
		Audit string `mapstructure:"audit"`
		// EnforcePrefix is the root of enforce/<asset> intent topics.
		EnforcePrefix string `mapstructure:"enforce_prefix"`
	} `mapstructure:"topics"`

	Telemetry struct {
		// Encoding selects the payload codec: "json" or "msgpack".
		Encoding string `mapstructure:"encoding"`
		// RateLimit is the maximum observations per second accepted from
		// the bus; a flood guard ahead of the per-key window cap.
		RateLimit int `mapstructure:"rate_limit"`
	} `mapstructure:"telemetry"`

	Detector struct {
		WindowSeconds     int     `mapstructure:"window_seconds"`
		MinSamples        int     `mapstructure:"min_samples"`
		MaxSamples        int     `mapstructure:"max_samples"`
		MediumThreshold   float64 `mapstructure:"medium_threshold"`
		HighThreshold     float64 `mapstructure:"high_threshold"`
		DebounceSeconds   int     `mapstructure:"debounce_seconds"`
		DebounceCacheSize int     `mapstructure:"debounce_cache_size"`
		WorkerCount       int     `mapstructure:"worker_count"`
		ShardBufferSize   int     `mapstructure:"shard_buffer_size"`
	} `mapstructure:"detector"`

	Policy struct {
		AuditCapacity      int           `mapstructure:"audit_capacity"`
		EnforcementTimeout time.Duration `mapstructure:"enforcement_timeout"`
		CircuitBreaker     struct {
			MaxFailures         uint32        `mapstructure:"max_failures"`
			Timeout             time.Duration `mapstructure:"timeout"`
			MaxHalfOpenRequests uint32        `mapstructure:"max_half_open_requests"`
		} `mapstructure:"circuit_breaker"`
	} `mapstructure:"policy"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"api"`
}

// setDefaults sets default configuration values. The detector defaults are
// the contract the rest of the system is tuned against: a 120s window, at
// least 10 samples, medium/high z thresholds of 4/8 and a 30s debounce.
func setDefaults() {
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "iot")
	viper.SetDefault("mqtt.password", "iotpass")
	viper.SetDefault("mqtt.client_id", "ghostmesh-core")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.connect_timeout", 10*time.Second)
	viper.SetDefault("mqtt.publish_timeout", 5*time.Second)

	viper.SetDefault("topics.telemetry_filter", "factory/+/+/+")
	viper.SetDefault("topics.control_filter", "control/#")
	viper.SetDefault("topics.alert_prefix", "alerts")
	viper.SetDefault("topics.audit", "audit/actions")
	viper.SetDefault("topics.enforce_prefix", "enforce")

	viper.SetDefault("telemetry.encoding", "json")
	viper.SetDefault("telemetry.rate_limit", 1000)

	viper.SetDefault("detector.window_seconds", 120)
	viper.SetDefault("detector.min_samples", 10)
	viper.SetDefault("detector.max_samples", 100)
	viper.SetDefault("detector.medium_threshold", 4.0)
	viper.SetDefault("detector.high_threshold", 8.0)
	viper.SetDefault("detector.debounce_seconds", 30)
	viper.SetDefault("detector.debounce_cache_size", 4096)
	viper.SetDefault("detector.worker_count", 4)
	viper.SetDefault("detector.shard_buffer_size", 256)

	viper.SetDefault("policy.audit_capacity", 1000)
	viper.SetDefault("policy.enforcement_timeout", 5*time.Second)
	viper.SetDefault("policy.circuit_breaker.max_failures", 5)
	viper.SetDefault("policy.circuit_breaker.timeout", 60*time.Second)
	viper.SetDefault("policy.circuit_breaker.max_half_open_requests", 1)

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8086)
}

// loadFromEnv sets up environment variable loading. Nested keys map with
// underscores, e.g. GHOSTMESH_MQTT_HOST, GHOSTMESH_DETECTOR_WINDOW_SECONDS.
func loadFromEnv() {
	viper.SetEnvPrefix("GHOSTMESH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// WindowSpan returns the detector window as a duration.
func (c *Config) WindowSpan() time.Duration {
	return time.Duration(c.Detector.WindowSeconds) * time.Second
}

// DebounceInterval returns the alert debounce as a duration.
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Detector.DebounceSeconds) * time.Second
}

// validateConfig validates the configuration for correctness.
func validateConfig(config *Config) error {
	if config.MQTT.Host == "" {
		return fmt.Errorf("mqtt.host cannot be empty")
	}
	if config.MQTT.Port < 1 || config.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt port: %d (must be 1-65535)", config.MQTT.Port)
	}
	if config.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d (must be 0-2)", config.MQTT.QoS)
	}
	if config.API.Port < 1 || config.API.Port > 65535 {
		return fmt.Errorf("invalid API port: %d (must be 1-65535)", config.API.Port)
	}

	if enc := config.Telemetry.Encoding; enc != "json" && enc != "msgpack" {
		return fmt.Errorf("invalid telemetry encoding: %q (must be json or msgpack)", enc)
	}
	if config.Telemetry.RateLimit <= 0 {
		return fmt.Errorf("telemetry.rate_limit must be positive, got %d", config.Telemetry.RateLimit)
	}

	d := &config.Detector
	if d.WindowSeconds <= 0 {
		return fmt.Errorf("detector.window_seconds must be positive, got %d", d.WindowSeconds)
	}
	if d.MinSamples < 2 {
		return fmt.Errorf("detector.min_samples must be at least 2, got %d", d.MinSamples)
	}
	if d.MaxSamples < d.MinSamples {
		return fmt.Errorf("detector.max_samples (%d) must be >= min_samples (%d)", d.MaxSamples, d.MinSamples)
	}
	if d.MediumThreshold <= 0 {
		return fmt.Errorf("detector.medium_threshold must be positive, got %v", d.MediumThreshold)
	}
	if d.HighThreshold < d.MediumThreshold {
		return fmt.Errorf("detector.high_threshold (%v) must be >= medium_threshold (%v)", d.HighThreshold, d.MediumThreshold)
	}
	if d.DebounceSeconds < 0 {
		return fmt.Errorf("detector.debounce_seconds cannot be negative, got %d", d.DebounceSeconds)
	}
	if d.DebounceCacheSize <= 0 {
		return fmt.Errorf("detector.debounce_cache_size must be positive, got %d", d.DebounceCacheSize)
	}
	if d.WorkerCount <= 0 {
		return fmt.Errorf("detector.worker_count must be positive, got %d", d.WorkerCount)
	}
	if d.ShardBufferSize <= 0 {
		return fmt.Errorf("detector.shard_buffer_size must be positive, got %d", d.ShardBufferSize)
	}

	p := &config.Policy
	if p.AuditCapacity <= 0 {
		return fmt.Errorf("policy.audit_capacity must be positive, got %d", p.AuditCapacity)
	}
	if p.EnforcementTimeout <= 0 {
		return fmt.Errorf("policy.enforcement_timeout must be positive, got %v", p.EnforcementTimeout)
	}
	if p.CircuitBreaker.MaxFailures == 0 {
		return fmt.Errorf("policy.circuit_breaker.max_failures must be positive")
	}
	if p.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("policy.circuit_breaker.timeout must be positive, got %v", p.CircuitBreaker.Timeout)
	}
	if p.CircuitBreaker.MaxHalfOpenRequests == 0 {
		return fmt.Errorf("policy.circuit_breaker.max_half_open_requests must be positive")
	}

	return nil
}

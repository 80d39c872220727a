package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents the inference service configuration
type Config struct {
	Server   ServerConfig   `envconfig:"SERVER"`
	Artifact ArtifactConfig `envconfig:"ARTIFACT"`
	Metrics  MetricsConfig  `envconfig:"METRICS"`
}

// ServerConfig contains HTTP server configuration.
//
// Port carries no alt name: envconfig falls back to the bare alt variable
// when the prefixed one is absent, and PORT is set on most platforms.
type ServerConfig struct {
	Port            int           `default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       float64       `envconfig:"RATE_LIMIT" default:"100"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST" default:"200"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"65536"`
}

// ArtifactConfig tells the service where to load its one artifact from.
// Path reads a local artifact file; Bucket fetches the latest mirrored
// artifact from Cloud Storage instead. Exactly one must be set. Neither
// field carries an alt name, so the shell's PATH never leaks in.
type ArtifactConfig struct {
	Path   string
	Bucket string
}

// MetricsConfig contains metrics server configuration
type MetricsConfig struct {
	Port int `default:"9090"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("PRICE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Artifact.Path == "" && c.Artifact.Bucket == "" {
		return fmt.Errorf("either artifact path or artifact bucket is required")
	}

	if c.Artifact.Path != "" && c.Artifact.Bucket != "" {
		return fmt.Errorf("artifact path and artifact bucket are mutually exclusive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	if c.Server.Port == c.Metrics.Port {
		return fmt.Errorf("server and metrics ports must differ")
	}

	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	if c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	return nil
}

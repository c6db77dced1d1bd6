// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, rate limit, upstream, etc.)
// - Defaults that work out of the box; forwarding stays off until a key is supplied
// - Validation catches misconfigurations before the listener starts
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultUpstreamHost is the collector used when no host override is set.
const DefaultUpstreamHost = "https://us.i.posthog.com"

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`       // Per-client token bucket
	Upstream      UpstreamConfig      `yaml:"upstream" json:"upstream"`           // Analytics collector
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Prometheus endpoint
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// RateLimitConfig configures the per-client token bucket.
//
// Capacity is the burst size; RefillPerSecond the sustained rate. Buckets idle
// for longer than IdleTTL are swept every CleanupInterval once they have
// refilled to capacity.
type RateLimitConfig struct {
	Capacity        int           `yaml:"capacity" json:"capacity"`
	RefillPerSecond float64       `yaml:"refill_per_second" json:"refill_per_second"`
	IdleTTL         time.Duration `yaml:"idle_ttl" json:"idle_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// UpstreamConfig configures forwarding to the analytics collector. Forwarding
// is enabled only when APIKey is non-empty.
type UpstreamConfig struct {
	APIKey  string        `yaml:"api_key" json:"-"`
	Host    string        `yaml:"host" json:"host"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
}

// Enabled reports whether an API key is configured.
func (uc UpstreamConfig) Enabled() bool {
	return uc.APIKey != ""
}

// BreakerConfig configures the circuit breaker guarding the collector.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout" json:"open_timeout"`
	Interval         time.Duration `yaml:"interval" json:"interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Bucket of 60 tokens refilled at 1/s: bursts of 60, then one event per second
// - Idle buckets kept for 10 minutes, swept every minute
// - Single upstream attempt bounded by a 5-second transport timeout
// - Breaker off, so every accepted event gets its one upstream attempt; when
//   enabled it opens after 5 consecutive failures and probes again after 30s
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 64 << 10,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         86400,
			},
		},
		RateLimit: RateLimitConfig{
			Capacity:        60,
			RefillPerSecond: 1,
			IdleTTL:         10 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Upstream: UpstreamConfig{
			Host:    DefaultUpstreamHost,
			Timeout: 5 * time.Second,
			Breaker: BreakerConfig{
				Enabled:          false,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
				Interval:         time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "analytics",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("invalid upstream config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if rc.Capacity < 1 {
		return errors.New("capacity must be at least 1")
	}
	if rc.RefillPerSecond <= 0 {
		return errors.New("refill per second must be positive")
	}
	if rc.IdleTTL <= 0 {
		return errors.New("idle TTL must be positive")
	}
	if rc.CleanupInterval <= 0 {
		return errors.New("cleanup interval must be positive")
	}
	return nil
}

func (uc *UpstreamConfig) Validate() error {
	if uc.Host == "" {
		return errors.New("upstream host cannot be empty")
	}
	if !strings.HasPrefix(uc.Host, "http://") && !strings.HasPrefix(uc.Host, "https://") {
		return fmt.Errorf("upstream host must be an http(s) URL: %s", uc.Host)
	}
	if uc.Timeout <= 0 {
		return errors.New("upstream timeout must be positive")
	}
	if uc.Breaker.Enabled {
		if uc.Breaker.FailureThreshold == 0 {
			return errors.New("breaker failure threshold must be at least 1")
		}
		if uc.Breaker.OpenTimeout <= 0 {
			return errors.New("breaker open timeout must be positive")
		}
		if uc.Breaker.Interval < 0 {
			return errors.New("breaker interval cannot be negative")
		}
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}

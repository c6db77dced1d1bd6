// Package config loads the service configuration: defaults, then an optional
// YAML file, then environment overrides, then validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"analytics/internal/models"

	"gopkg.in/yaml.v3"
)

// Environment variables naming the collector credential and host. The
// server-only names take precedence over the public ones.
const (
	EnvAPIKey       = "POSTHOG_KEY"
	EnvPublicAPIKey = "NEXT_PUBLIC_POSTHOG_KEY"
	EnvHost         = "POSTHOG_HOST"
	EnvPublicHost   = "NEXT_PUBLIC_POSTHOG_HOST"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// sensitiveConfig mirrors file keys that are accepted but better supplied
// through the environment.
type sensitiveConfig struct {
	Upstream struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"upstream"`
}

// warnSensitiveKeys logs a warning for each secret found in the YAML data.
func warnSensitiveKeys(data []byte) {
	var sc sensitiveConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return
	}
	if sc.Upstream.APIKey != "" {
		slog.Warn("Config file contains a collector API key; prefer the environment.", "config_key", "upstream.api_key", "env", EnvAPIKey)
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnSensitiveKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// Unparsable values are ignored and the previous value kept.
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("ANALYTICS_PORT", &config.Server.Port)
	envString("ANALYTICS_HOST", &config.Server.Host)
	envDuration("ANALYTICS_READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("ANALYTICS_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("ANALYTICS_IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envInt64("ANALYTICS_MAX_BODY_BYTES", &config.Server.MaxBodyBytes)
	envBool("ANALYTICS_TLS_ENABLED", &config.Server.TLSEnabled)
	envString("ANALYTICS_TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("ANALYTICS_TLS_KEY_FILE", &config.Server.TLSKeyFile)
	envBool("ANALYTICS_CORS_ENABLED", &config.Server.CORS.Enabled)
	if origins := os.Getenv("ANALYTICS_CORS_ALLOWED_ORIGINS"); origins != "" {
		config.Server.CORS.AllowedOrigins = splitAndTrim(origins, ",")
	}

	// Rate limit configuration
	envInt("ANALYTICS_RATE_LIMIT_CAPACITY", &config.RateLimit.Capacity)
	envFloat("ANALYTICS_RATE_LIMIT_REFILL_PER_SECOND", &config.RateLimit.RefillPerSecond)
	envDuration("ANALYTICS_RATE_LIMIT_IDLE_TTL", &config.RateLimit.IdleTTL)
	envDuration("ANALYTICS_RATE_LIMIT_CLEANUP_INTERVAL", &config.RateLimit.CleanupInterval)

	// Upstream configuration
	if key := firstEnv(EnvAPIKey, EnvPublicAPIKey); key != "" {
		config.Upstream.APIKey = key
	}
	if host := firstEnv(EnvHost, EnvPublicHost); host != "" {
		config.Upstream.Host = host
	}
	envDuration("ANALYTICS_UPSTREAM_TIMEOUT", &config.Upstream.Timeout)
	envBool("ANALYTICS_BREAKER_ENABLED", &config.Upstream.Breaker.Enabled)
	if threshold := os.Getenv("ANALYTICS_BREAKER_FAILURE_THRESHOLD"); threshold != "" {
		if n, err := strconv.ParseUint(threshold, 10, 32); err == nil {
			config.Upstream.Breaker.FailureThreshold = uint32(n)
		}
	}
	envDuration("ANALYTICS_BREAKER_OPEN_TIMEOUT", &config.Upstream.Breaker.OpenTimeout)

	// Logging configuration
	envString("ANALYTICS_LOG_LEVEL", &config.Logging.Level)
	envString("ANALYTICS_LOG_FORMAT", &config.Logging.Format)
	envString("ANALYTICS_LOG_OUTPUT", &config.Logging.Output)
	envString("ANALYTICS_LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("ANALYTICS_METRICS_ENABLED", &config.Metrics.Enabled)
	envString("ANALYTICS_METRICS_PATH", &config.Metrics.Path)
	envInt("ANALYTICS_METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("ANALYTICS_SERVICE_NAME", &config.Observability.ServiceName)
	envBool("ANALYTICS_TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("ANALYTICS_TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("ANALYTICS_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	envFloat("ANALYTICS_TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// splitAndTrim splits a string by delimiter and trims whitespace
func splitAndTrim(s, delim string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, delim) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// The API key is deliberately absent: it is read from POSTHOG_KEY.
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"
	config.Server.CORS.AllowedOrigins = []string{"https://example.com"}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

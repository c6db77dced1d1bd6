package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"analytics/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearCollectorEnv isolates tests from credentials set in the developer's
// environment.
func clearCollectorEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvAPIKey, EnvPublicAPIKey, EnvHost, EnvPublicHost} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	clearCollectorEnv(t)

	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 10s
  write_timeout: 10s
  idle_timeout: 30s
  max_body_bytes: 4096
  cors:
    enabled: true
    allowed_origins: ["https://site.example"]
    allowed_methods: ["POST", "OPTIONS"]
    allowed_headers: ["Content-Type"]
    max_age: 600

rate_limit:
  capacity: 30
  refill_per_second: 0.5
  idle_ttl: 5m
  cleanup_interval: 30s

upstream:
  host: "https://eu.i.posthog.com"
  timeout: 2s
  breaker:
    enabled: true
    failure_threshold: 3
    open_timeout: 10s
    interval: 0s

logging:
  level: "debug"
  format: "text"
  output: "stderr"

metrics:
  enabled: true
  path: "/metrics"
  port: 9191

observability:
  service_name: "analytics-edge"
  tracing:
    enabled: true
    exporter: "otlp"
    otlp_endpoint: "collector:4317"
    sample_rate: 0.25
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, int64(4096), config.Server.MaxBodyBytes)
	assert.True(t, config.Server.CORS.Enabled)
	assert.Equal(t, []string{"https://site.example"}, config.Server.CORS.AllowedOrigins)

	assert.Equal(t, 30, config.RateLimit.Capacity)
	assert.Equal(t, 0.5, config.RateLimit.RefillPerSecond)
	assert.Equal(t, 5*time.Minute, config.RateLimit.IdleTTL)
	assert.Equal(t, 30*time.Second, config.RateLimit.CleanupInterval)

	assert.Equal(t, "https://eu.i.posthog.com", config.Upstream.Host)
	assert.Equal(t, 2*time.Second, config.Upstream.Timeout)
	assert.Equal(t, uint32(3), config.Upstream.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, config.Upstream.Breaker.OpenTimeout)
	assert.False(t, config.Upstream.Enabled())

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, 9191, config.Metrics.Port)
	assert.Equal(t, "analytics-edge", config.Observability.ServiceName)
	assert.Equal(t, "otlp", config.Observability.Tracing.Exporter)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
}

func TestLoad_WithDefaults(t *testing.T) {
	clearCollectorEnv(t)

	config, err := Load(writeConfig(t, "server:\n  port: 3000\n"))
	require.NoError(t, err)

	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.False(t, config.Server.TLSEnabled)
	assert.False(t, config.Server.CORS.Enabled)

	assert.Equal(t, 60, config.RateLimit.Capacity)
	assert.Equal(t, 1.0, config.RateLimit.RefillPerSecond)

	assert.Equal(t, models.DefaultUpstreamHost, config.Upstream.Host)
	assert.Empty(t, config.Upstream.APIKey)
	assert.False(t, config.Upstream.Breaker.Enabled)

	assert.Equal(t, "info", config.Logging.Level)
	assert.True(t, config.Metrics.Enabled)
	assert.False(t, config.Observability.Tracing.Enabled)
}

func TestLoad_NoFile(t *testing.T) {
	clearCollectorEnv(t)

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, models.NewDefaultConfig(), config)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	clearCollectorEnv(t)
	t.Setenv("ANALYTICS_PORT", "9999")
	t.Setenv("ANALYTICS_HOST", "127.0.0.1")
	t.Setenv("ANALYTICS_MAX_BODY_BYTES", "1024")
	t.Setenv("ANALYTICS_CORS_ENABLED", "true")
	t.Setenv("ANALYTICS_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ANALYTICS_RATE_LIMIT_CAPACITY", "120")
	t.Setenv("ANALYTICS_RATE_LIMIT_REFILL_PER_SECOND", "2")
	t.Setenv("ANALYTICS_RATE_LIMIT_IDLE_TTL", "1h")
	t.Setenv("ANALYTICS_UPSTREAM_TIMEOUT", "750ms")
	t.Setenv("ANALYTICS_BREAKER_ENABLED", "true")
	t.Setenv("ANALYTICS_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("ANALYTICS_LOG_LEVEL", "warn")
	t.Setenv("ANALYTICS_METRICS_PORT", "9300")
	t.Setenv("ANALYTICS_TRACING_ENABLED", "true")
	t.Setenv("ANALYTICS_TRACING_SAMPLE_RATE", "0.1")

	configFile := writeConfig(t, `
server:
  port: 8080
  host: "localhost"
logging:
  level: "info"
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, int64(1024), config.Server.MaxBodyBytes)
	assert.True(t, config.Server.CORS.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.Server.CORS.AllowedOrigins)
	assert.Equal(t, 120, config.RateLimit.Capacity)
	assert.Equal(t, 2.0, config.RateLimit.RefillPerSecond)
	assert.Equal(t, time.Hour, config.RateLimit.IdleTTL)
	assert.Equal(t, 750*time.Millisecond, config.Upstream.Timeout)
	assert.True(t, config.Upstream.Breaker.Enabled)
	assert.Equal(t, uint32(9), config.Upstream.Breaker.FailureThreshold)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, 9300, config.Metrics.Port)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, 0.1, config.Observability.Tracing.SampleRate)
}

func TestLoad_InvalidEnvironmentValuesIgnored(t *testing.T) {
	clearCollectorEnv(t)
	t.Setenv("ANALYTICS_PORT", "not-a-port")
	t.Setenv("ANALYTICS_UPSTREAM_TIMEOUT", "soon")
	t.Setenv("ANALYTICS_BREAKER_FAILURE_THRESHOLD", "-1")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 5*time.Second, config.Upstream.Timeout)
	assert.Equal(t, uint32(5), config.Upstream.Breaker.FailureThreshold)
}

func TestLoad_CollectorCredential(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantKey    string
		wantHost   string
		wantEnable bool
	}{
		{
			name:     "nothing set",
			env:      map[string]string{},
			wantHost: models.DefaultUpstreamHost,
		},
		{
			name:       "private key",
			env:        map[string]string{EnvAPIKey: "phc_private"},
			wantKey:    "phc_private",
			wantHost:   models.DefaultUpstreamHost,
			wantEnable: true,
		},
		{
			name:       "public key fallback",
			env:        map[string]string{EnvPublicAPIKey: "phc_public"},
			wantKey:    "phc_public",
			wantHost:   models.DefaultUpstreamHost,
			wantEnable: true,
		},
		{
			name:       "private key wins",
			env:        map[string]string{EnvAPIKey: "phc_private", EnvPublicAPIKey: "phc_public"},
			wantKey:    "phc_private",
			wantHost:   models.DefaultUpstreamHost,
			wantEnable: true,
		},
		{
			name:     "public host fallback",
			env:      map[string]string{EnvPublicHost: "https://eu.i.posthog.com"},
			wantHost: "https://eu.i.posthog.com",
		},
		{
			name:     "private host wins",
			env:      map[string]string{EnvHost: "https://ph.internal", EnvPublicHost: "https://eu.i.posthog.com"},
			wantHost: "https://ph.internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCollectorEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			config, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, config.Upstream.APIKey)
			assert.Equal(t, tt.wantHost, config.Upstream.Host)
			assert.Equal(t, tt.wantEnable, config.Upstream.Enabled())
		})
	}
}

func TestLoad_EnvironmentKeyOverridesFile(t *testing.T) {
	clearCollectorEnv(t)
	t.Setenv(EnvAPIKey, "phc_env")

	config, err := Load(writeConfig(t, "upstream:\n  api_key: phc_file\n"))
	require.NoError(t, err)
	assert.Equal(t, "phc_env", config.Upstream.APIKey)
}

func TestLoad_KeyFromFile(t *testing.T) {
	clearCollectorEnv(t)

	config, err := Load(writeConfig(t, "upstream:\n  api_key: phc_file\n"))
	require.NoError(t, err)
	assert.Equal(t, "phc_file", config.Upstream.APIKey)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/non/existent/path.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  port: 8080\n  invalid: [unclosed array\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	clearCollectorEnv(t)

	config, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 60, config.RateLimit.Capacity)
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	clearCollectorEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"zero capacity", "rate_limit:\n  capacity: 0\n", "capacity"},
		{"non-http host", "upstream:\n  host: \"ftp://collector\"\n", "http(s) URL"},
		{"tls without certs", "server:\n  tls_enabled: true\n", "TLS cert file"},
		{"bad log level", "logging:\n  level: \"loud\"\n", "invalid log level"},
		{"otlp without endpoint", "observability:\n  tracing:\n    enabled: true\n    exporter: otlp\n", "OTLP endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveExample(t *testing.T) {
	clearCollectorEnv(t)
	examplePath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, SaveExample(examplePath))

	config, err := Load(examplePath)
	require.NoError(t, err)
	assert.Equal(t, "/path/to/cert.pem", config.Server.TLSCertFile)
	assert.Empty(t, config.Upstream.APIKey)
	assert.Equal(t, 60, config.RateLimit.Capacity)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b ", ","))
	assert.Empty(t, splitAndTrim("", ","))
}

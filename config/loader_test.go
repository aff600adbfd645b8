// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Len(t, cfg.LLM.Providers, 2)
	assert.True(t, cfg.Workflow.Builtins)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "stepflow.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

llm:
  probe_interval: 1m
  providers:
    - id: local
      type: openai_compat
      model: llama3
      base_url: http://localhost:11434
      api_key_ref: env:LOCAL_KEY
      timeout: 20s
      rate_limit_rps: 2.5
  task_hints:
    creative: local
    analytical: local
    coding: local
  prices:
    - model: llama3
      input_per_1k: 0.0001
      output_per_1k: 0.0002

metrics:
  retention: 48h
  error_rate_threshold: 0.1
  archive: true

workflow:
  strict_variables: true
  max_concurrency: 4
  template_dir: ./templates

notify:
  default_sink: webhook
  webhook:
    url: https://hooks.example.com/stepflow
    headers:
      Authorization: Bearer abc
  redis:
    enabled: true
    channel: journal

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	require.Len(t, cfg.LLM.Providers, 1)
	p := cfg.LLM.Providers[0]
	assert.Equal(t, "local", p.ID)
	assert.Equal(t, "llama3", p.Model)
	assert.Equal(t, 20*time.Second, p.Timeout)
	assert.InDelta(t, 2.5, p.RateLimitRPS, 1e-9)
	assert.Equal(t, time.Minute, cfg.LLM.ProbeInterval)
	assert.Equal(t, "local", cfg.LLM.TaskHints["creative"])
	require.Len(t, cfg.LLM.Prices, 1)
	assert.InDelta(t, 0.0002, cfg.LLM.Prices[0].OutputPer1K, 1e-12)

	assert.Equal(t, 48*time.Hour, cfg.Metrics.Retention)
	assert.True(t, cfg.Metrics.Archive)
	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, time.Hour, cfg.Metrics.PruneInterval)

	assert.True(t, cfg.Workflow.StrictVariables)
	assert.Equal(t, 4, cfg.Workflow.MaxConcurrency)
	assert.Equal(t, "./templates", cfg.Workflow.TemplateDir)

	assert.Equal(t, "webhook", cfg.Notify.DefaultSink)
	assert.Equal(t, "Bearer abc", cfg.Notify.Webhook.Headers["Authorization"])
	assert.Equal(t, "journal", cfg.Notify.Redis.Channel)
	assert.Equal(t, int64(1000), cfg.Notify.Redis.HistorySize)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "console", cfg.Log.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("STEPFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("STEPFLOW_LLM_PROBE_INTERVAL", "10s")
	t.Setenv("STEPFLOW_METRICS_ERROR_RATE_THRESHOLD", "0.2")
	t.Setenv("STEPFLOW_WORKFLOW_STRICT_VARIABLES", "true")
	t.Setenv("STEPFLOW_WORKFLOW_MAX_CONCURRENCY", "3")
	t.Setenv("STEPFLOW_NOTIFY_REDIS_HISTORY_SIZE", "50")
	t.Setenv("STEPFLOW_NOTIFY_WEBHOOK_URL", "http://hook")
	t.Setenv("STEPFLOW_REDIS_ADDR", "env-redis:6379")
	t.Setenv("STEPFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/stepflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.LLM.ProbeInterval)
	assert.InDelta(t, 0.2, cfg.Metrics.ErrorRateThreshold, 1e-9)
	assert.True(t, cfg.Workflow.StrictVariables)
	assert.Equal(t, 3, cfg.Workflow.MaxConcurrency)
	assert.Equal(t, int64(50), cfg.Notify.Redis.HistorySize)
	assert.Equal(t, "http://hook", cfg.Notify.Webhook.URL)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"stdout", "/var/log/stepflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "stepflow.yaml")
	yamlContent := `
server:
  http_port: 8888
workflow:
  template_dir: /yaml/templates
  max_concurrency: 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	t.Setenv("STEPFLOW_SERVER_HTTP_PORT", "9999")
	t.Setenv("STEPFLOW_WORKFLOW_TEMPLATE_DIR", "/env/templates")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "/env/templates", cfg.Workflow.TemplateDir)
	assert.Equal(t, 2, cfg.Workflow.MaxConcurrency)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("STEPFLOW_METRICS_RETENTION", "a week")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STEPFLOW_METRICS_RETENTION")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("STEPFLOW_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/stepflow.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{
			name:    "invalid HTTP port",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "tls cert without key",
			modify:  func(c *Config) { c.Server.TLSCertFile = "/etc/stepflow/cert.pem" },
			wantErr: "must be set together",
		},
		{
			name:    "provider without id",
			modify:  func(c *Config) { c.LLM.Providers = append(c.LLM.Providers, ProviderConfig{}) },
			wantErr: "id is required",
		},
		{
			name: "duplicate provider",
			modify: func(c *Config) {
				c.LLM.Providers = append(c.LLM.Providers, ProviderConfig{ID: "openai"})
			},
			wantErr: "duplicate id",
		},
		{
			name: "unsupported provider type",
			modify: func(c *Config) {
				c.LLM.Providers[0].Type = "grpc"
			},
			wantErr: "unsupported type",
		},
		{
			name:    "task hint to unknown provider",
			modify:  func(c *Config) { c.LLM.TaskHints["creative"] = "gemini" },
			wantErr: "unknown provider",
		},
		{
			name:    "error rate out of range",
			modify:  func(c *Config) { c.Metrics.ErrorRateThreshold = 1.5 },
			wantErr: "error_rate_threshold",
		},
		{
			name:    "negative concurrency",
			modify:  func(c *Config) { c.Workflow.MaxConcurrency = -1 },
			wantErr: "max_concurrency",
		},
		{
			name:    "negative run timeout",
			modify:  func(c *Config) { c.Workflow.RunTimeout = -time.Second },
			wantErr: "run_timeout",
		},
		{
			name:    "unknown sink",
			modify:  func(c *Config) { c.Notify.DefaultSink = "pager" },
			wantErr: "default_sink",
		},
		{
			name:    "unknown driver",
			modify:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "database.driver",
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Log.Format = "xml"
	cfg.Telemetry.SampleRate = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "sample_rate")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte("server:\n  http_port: 8081\n"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("invalid: [yaml"), 0644))

	assert.NotPanics(t, func() {
		assert.Equal(t, 8081, MustLoad(good).Server.HTTPPort)
	})
	assert.Panics(t, func() { MustLoad(bad) })
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("STEPFLOW_DATABASE_DRIVER", "postgres")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

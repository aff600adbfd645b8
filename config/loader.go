// =============================================================================
// 📦 StepFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("stepflow.yaml").
//	    WithEnvPrefix("STEPFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 StepFlow 的完整配置结构
type Config struct {
	// Server HTTP 服务配置（健康检查、指标）
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// LLM Provider 配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Metrics 调用指标记录配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Workflow 工作流引擎配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Notify 通知渠道配置
	Notify NotifyConfig `yaml:"notify" env:"NOTIFY"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置（指标归档）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// TLS 证书与私钥，需同时设置
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider 列表，顺序即注册顺序（决定默认选择与回退顺序）
	Providers []ProviderConfig `yaml:"providers" env:"-"`
	// 任务类型 → Provider ID
	TaskHints map[string]string `yaml:"task_hints" env:"-"`
	// 模型价格（每 1K tokens）
	Prices []PriceConfig `yaml:"prices" env:"-"`
	// 默认请求超时（Provider 未单独设置时）
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 探活间隔，0 表示不探活
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	// 单次探活超时
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
}

// ProviderConfig 单个 Provider 配置
type ProviderConfig struct {
	// 唯一 ID（如 openai、claude）
	ID string `yaml:"id"`
	// 后端类型，目前支持 openai_compat
	Type string `yaml:"type"`
	// 默认模型
	Model string `yaml:"model"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens"`
	// API Key 引用：env:NAME / file:/path
	APIKeyRef string `yaml:"api_key_ref"`
	// 基础 URL
	BaseURL string `yaml:"base_url"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout"`
	// 每秒请求数上限，0 表示不限
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// PriceConfig 模型价格
type PriceConfig struct {
	Model       string  `yaml:"model"`
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// MetricsConfig 指标记录配置
type MetricsConfig struct {
	// 保留时长
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
	// 裁剪周期
	PruneInterval time.Duration `yaml:"prune_interval" env:"PRUNE_INTERVAL"`
	// 延迟告警阈值
	LatencyThreshold time.Duration `yaml:"latency_threshold" env:"LATENCY_THRESHOLD"`
	// 错误率告警阈值 (0-1)
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" env:"ERROR_RATE_THRESHOLD"`
	// 错误率统计窗口
	ErrorRateWindow time.Duration `yaml:"error_rate_window" env:"ERROR_RATE_WINDOW"`
	// 资源采样间隔
	SampleInterval time.Duration `yaml:"sample_interval" env:"SAMPLE_INTERVAL"`
	// 健康评估使用的最近样本数
	RecentSamples int `yaml:"recent_samples" env:"RECENT_SAMPLES"`
	// 是否将裁剪的指标归档到数据库
	Archive bool `yaml:"archive" env:"ARCHIVE"`
}

// WorkflowConfig 工作流配置
type WorkflowConfig struct {
	// 严格模式：声明的变量未提供时实例化失败
	StrictVariables bool `yaml:"strict_variables" env:"STRICT_VARIABLES"`
	// 单批次最大并发步骤数，0 表示不限
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// 模板目录（YAML/JSON）
	TemplateDir string `yaml:"template_dir" env:"TEMPLATE_DIR"`
	// 是否注册内置模板
	Builtins bool `yaml:"builtins" env:"BUILTINS"`
	// serve 中经 HTTP 触发的单次执行超时，0 表示只受请求上下文约束
	RunTimeout time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	// 默认 Sink：log / webhook / redis
	DefaultSink string `yaml:"default_sink" env:"DEFAULT_SINK"`
	// Webhook Sink
	Webhook WebhookConfig `yaml:"webhook" env:"WEBHOOK"`
	// Redis Sink
	Redis RedisSinkConfig `yaml:"redis" env:"REDIS"`
}

// WebhookConfig Webhook 配置，URL 为空时不启用
type WebhookConfig struct {
	URL     string            `yaml:"url" env:"URL"`
	Headers map[string]string `yaml:"headers" env:"-"`
	Timeout time.Duration     `yaml:"timeout" env:"TIMEOUT"`
}

// RedisSinkConfig Redis 发布配置
type RedisSinkConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Channel     string `yaml:"channel" env:"CHANNEL"`
	HistoryKey  string `yaml:"history_key" env:"HISTORY_KEY"`
	HistorySize int64  `yaml:"history_size" env:"HISTORY_SIZE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STEPFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，汇总所有错误
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	seen := make(map[string]bool, len(c.LLM.Providers))
	for i, p := range c.LLM.Providers {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("llm.providers[%d]: id is required", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("llm.providers[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		if p.Type != "" && p.Type != ProviderTypeOpenAICompat {
			errs = append(errs, fmt.Sprintf("llm.providers[%d]: unsupported type %q", i, p.Type))
		}
		if p.RateLimitRPS < 0 {
			errs = append(errs, fmt.Sprintf("llm.providers[%d]: rate_limit_rps must be >= 0", i))
		}
	}
	if len(c.LLM.Providers) > 0 {
		for hint, id := range c.LLM.TaskHints {
			if !seen[id] {
				errs = append(errs, fmt.Sprintf("llm.task_hints.%s: unknown provider %q", hint, id))
			}
		}
	}

	if c.Metrics.ErrorRateThreshold < 0 || c.Metrics.ErrorRateThreshold > 1 {
		errs = append(errs, "metrics.error_rate_threshold must be between 0 and 1")
	}
	if c.Metrics.Retention < 0 {
		errs = append(errs, "metrics.retention must be >= 0")
	}

	if c.Workflow.MaxConcurrency < 0 {
		errs = append(errs, "workflow.max_concurrency must be >= 0")
	}
	if c.Workflow.RunTimeout < 0 {
		errs = append(errs, "workflow.run_timeout must be >= 0")
	}

	switch c.Notify.DefaultSink {
	case "", "log", "webhook", "redis":
	default:
		errs = append(errs, fmt.Sprintf("notify.default_sink: unknown sink %q", c.Notify.DefaultSink))
	}

	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver: unsupported driver %q", c.Database.Driver))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format: unsupported format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

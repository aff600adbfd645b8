// =============================================================================
// 📦 StepFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// ProviderTypeOpenAICompat 是 OpenAI 兼容 HTTP 后端
const ProviderTypeOpenAICompat = "openai_compat"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Metrics:   DefaultMetricsConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Notify:    DefaultNotifyConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置：openai 在前（分析/编码），claude 在后（创作）
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers: []ProviderConfig{
			{
				ID:        "openai",
				Type:      ProviderTypeOpenAICompat,
				Model:     "gpt-4o-mini",
				MaxTokens: 1024,
				APIKeyRef: "env:OPENAI_API_KEY",
				BaseURL:   "https://api.openai.com",
			},
			{
				ID:        "claude",
				Type:      ProviderTypeOpenAICompat,
				Model:     "claude-3-5-sonnet-20241022",
				MaxTokens: 1024,
				APIKeyRef: "env:ANTHROPIC_API_KEY",
				BaseURL:   "https://api.anthropic.com",
			},
		},
		TaskHints: map[string]string{
			"creative":   "claude",
			"analytical": "openai",
			"coding":     "openai",
		},
		Timeout:       2 * time.Minute,
		ProbeInterval: 30 * time.Second,
		ProbeTimeout:  5 * time.Second,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Retention:          7 * 24 * time.Hour,
		PruneInterval:      time.Hour,
		LatencyThreshold:   10 * time.Second,
		ErrorRateThreshold: 0.05,
		ErrorRateWindow:    5 * time.Minute,
		SampleInterval:     15 * time.Second,
		RecentSamples:      5,
		Archive:            false,
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		StrictVariables: false,
		MaxConcurrency:  0,
		TemplateDir:     "",
		Builtins:        true,
		RunTimeout:      25 * time.Second,
	}
}

// DefaultNotifyConfig 返回默认通知配置
func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{
		DefaultSink: "log",
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Redis: RedisSinkConfig{
			Enabled:     false,
			Channel:     "stepflow:notifications",
			HistoryKey:  "stepflow:notifications:history",
			HistorySize: 1000,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "stepflow",
		Password:        "",
		Name:            "stepflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "stepflow",
		SampleRate:   0.1,
	}
}

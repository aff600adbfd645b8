package llm

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 是发往 Provider 后端的统一请求。
type ChatRequest struct {
	TraceID     string        `json:"trace_id"`
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatResponse struct {
	ID           string    `json:"id,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model"`
	Content      string    `json:"content"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        ChatUsage `json:"usage,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	ErrorRate float64       `json:"error_rate"`
}

// Provider 定义了统一的 LLM 后端接口。
type Provider interface {
	// Completion 发起同步补全请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查（用于探活），返回延迟与可用性信息。
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

// ProviderConfig 描述一个已配置的后端。APIKeyRef 是逻辑引用（env:NAME / file:/path），
// 每次请求时解析，不以明文常驻内存。
type ProviderConfig struct {
	ID           string        `json:"id" yaml:"id"`
	Model        string        `json:"model" yaml:"model"`
	MaxTokens    int           `json:"max_tokens" yaml:"max_tokens"`
	APIKeyRef    string        `json:"api_key_ref" yaml:"api_key_ref"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	RateLimitRPS float64       `json:"rate_limit_rps" yaml:"rate_limit_rps"`
}

// TaskHint 是调用方对任务类型的提示，用于选择默认 Provider。
type TaskHint string

const (
	TaskCreative   TaskHint = "creative"
	TaskAnalytical TaskHint = "analytical"
	TaskCoding     TaskHint = "coding"
)

// DefaultTaskHints 是静态的任务类型到 Provider 的默认映射。
func DefaultTaskHints() map[TaskHint]string {
	return map[TaskHint]string{
		TaskCreative:   "claude",
		TaskAnalytical: "openai",
		TaskCoding:     "openai",
	}
}

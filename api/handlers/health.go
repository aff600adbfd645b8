package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/llm/observability"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	level  func() observability.HealthLevel
	mu     sync.RWMutex
}

// HealthCheck 健康检查接口。Critical 的检查失败使服务不可就绪，
// 其余失败只把状态降为 degraded。
type HealthCheck interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Resources string                 `json:"resources,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器。level 可为 nil。
func NewHealthHandler(level func() observability.HealthLevel, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger.With(zap.String("component", "health_handler")),
		level:  level,
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health：进程存活并附带资源健康等级。
// 资源等级为 critical 时状态为 degraded，仍返回 200。
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}
	if h.level != nil {
		lvl := h.level()
		status.Resources = string(lvl)
		if lvl == observability.HealthCritical {
			status.Status = "degraded"
		}
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleHealthz 处理 /healthz（Kubernetes 存活探针）
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 与 /readyz（就绪检查）
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			if check.Critical() {
				status.Status = "unhealthy"
			} else if status.Status == "healthy" {
				status.Status = "degraded"
			}
			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Bool("critical", check.Critical()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		status.Checks[check.Name()] = result
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// HandleVersion 处理 /version
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// FuncCheck 以函数实现的健康检查（数据库、Redis 等 Ping）
type FuncCheck struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

// NewFuncCheck 创建函数健康检查
func NewFuncCheck(name string, critical bool, fn func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, critical: critical, fn: fn}
}

func (c *FuncCheck) Name() string   { return c.name }
func (c *FuncCheck) Critical() bool { return c.critical }

func (c *FuncCheck) Check(ctx context.Context) error {
	return c.fn(ctx)
}

// ProviderCheck 要求至少一个已注册 Provider 可达
type ProviderCheck struct {
	registry *llm.ProviderRegistry
	monitor  *llm.HealthMonitor
}

// NewProviderCheck 创建 Provider 可达性检查
func NewProviderCheck(registry *llm.ProviderRegistry, monitor *llm.HealthMonitor) *ProviderCheck {
	return &ProviderCheck{registry: registry, monitor: monitor}
}

func (c *ProviderCheck) Name() string   { return "providers" }
func (c *ProviderCheck) Critical() bool { return true }

func (c *ProviderCheck) Check(context.Context) error {
	ids := c.registry.List()
	if len(ids) == 0 {
		return fmt.Errorf("no providers registered")
	}
	for _, id := range ids {
		if c.monitor.IsReachable(id) {
			return nil
		}
	}
	return fmt.Errorf("none of %d providers reachable", len(ids))
}

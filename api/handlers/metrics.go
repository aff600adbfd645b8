package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/stepflow/llm/observability"
	"github.com/BaSui01/stepflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📈 调用指标 Handler
// =============================================================================

const (
	defaultSummaryWindow = time.Hour
	defaultCallsLimit    = 100
	maxCallsLimit        = 1000
)

// MetricsSource 提供调用指标汇总（observability.Recorder 实现）。
type MetricsSource interface {
	Summary(window time.Duration) observability.Summary
	Metrics() []observability.CallMetric
}

// MetricsHandler 暴露调用指标的只读视图
type MetricsHandler struct {
	source MetricsSource
	logger *zap.Logger
}

// SummaryResponse 是 /v1/metrics/summary 的响应体
type SummaryResponse struct {
	Window       string  `json:"window"`
	TotalCalls   int     `json:"total_calls"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
	ErrorRate    float64 `json:"error_rate"`
	Health       string  `json:"health"`
}

// NewMetricsHandler 创建调用指标处理器
func NewMetricsHandler(source MetricsSource, logger *zap.Logger) *MetricsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsHandler{
		source: source,
		logger: logger.With(zap.String("component", "metrics_handler")),
	}
}

// HandleSummary 处理 GET /v1/metrics/summary?window=1h
func (h *MetricsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			WriteError(w, r, types.Errorf(types.ErrInvalidRequest,
				"window must be a positive duration such as 15m or 24h, got %q", raw), h.logger)
			return
		}
		window = d
	}

	s := h.source.Summary(window)
	WriteSuccess(w, r, SummaryResponse{
		Window:       window.String(),
		TotalCalls:   s.TotalCalls,
		AvgLatencyMs: s.AvgLatencyMs,
		TotalTokens:  s.TotalTokens,
		TotalCost:    s.TotalCost,
		ErrorRate:    s.ErrorRate,
		Health:       string(s.Health),
	})
}

// HandleCalls 处理 GET /v1/metrics/calls?limit=N，返回最近的调用记录（新在前）。
func (h *MetricsHandler) HandleCalls(w http.ResponseWriter, r *http.Request) {
	limit := defaultCallsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, r, types.Errorf(types.ErrInvalidRequest, "limit must be a positive integer, got %q", raw), h.logger)
			return
		}
		limit = min(n, maxCallsLimit)
	}

	all := h.source.Metrics()
	n := min(limit, len(all))
	recent := make([]observability.CallMetric, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		recent = append(recent, all[i])
	}
	WriteSuccess(w, r, recent)
}

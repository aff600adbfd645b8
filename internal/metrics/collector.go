// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/BaSui01/stepflow/llm/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 把进程内事件导出为 Prometheus 指标。
// 它的方法签名与 llm.ProbeObserver、observability.CallObserver、
// observability.AlertHandler 以及 workflow.RunObserver 对齐，可直接挂接。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// Provider 探活
	providerUp           *prometheus.GaugeVec
	providerProbeLatency *prometheus.HistogramVec

	// 告警与健康
	alertsTotal    *prometheus.CounterVec
	resourceHealth *prometheus.GaugeVec

	// 工作流指标
	workflowRunsTotal    *prometheus.CounterVec
	workflowRunDuration  *prometheus.HistogramVec
	stepExecutionsTotal  *prometheus.CounterVec
	stepExecutionSeconds *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 在默认 Registry 上创建指标收集器。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith 在指定 Registerer 上注册全部指标。
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model"},
	)

	c.llmCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Estimated provider cost in USD",
		},
		[]string{"provider", "model"},
	)

	// Provider 探活
	c.providerUp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_up",
			Help:      "Whether the last health probe of a provider succeeded",
		},
		[]string{"provider"},
	)

	c.providerProbeLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_probe_duration_seconds",
			Help:      "Provider health probe latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)

	// 告警与健康
	c.alertsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of raised alerts",
		},
		[]string{"type", "provider"},
	)

	c.resourceHealth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_level",
			Help:      "Current health classification, 1 for the active level",
		},
		[]string{"source", "level"},
	)

	// 工作流指标
	c.workflowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow instance executions",
		},
		[]string{"template", "status"},
	)

	c.workflowRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow instance execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"template"},
	)

	c.stepExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of step executions",
		},
		[]string{"kind", "status"},
	)

	c.stepExecutionSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_execution_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 Provider 调用
// =============================================================================

// ObserveCall 记录一次 Provider 调用，签名匹配 observability.CallObserver。
func (c *Collector) ObserveCall(m observability.CallMetric) {
	status := "success"
	if !m.Success {
		status = "error"
	}
	c.llmRequestsTotal.WithLabelValues(m.ProviderID, m.ModelID, status).Inc()
	c.llmRequestDuration.WithLabelValues(m.ProviderID, m.ModelID).
		Observe((time.Duration(m.LatencyMs) * time.Millisecond).Seconds())
	c.llmTokensUsed.WithLabelValues(m.ProviderID, m.ModelID).Add(float64(m.TokensUsed))
	c.llmCost.WithLabelValues(m.ProviderID, m.ModelID).Add(m.CostEstimate)
}

// ObserveProbe 记录一次健康探测，签名匹配 llm.ProbeObserver。
func (c *Collector) ObserveProbe(provider string, healthy bool, latency time.Duration) {
	up := 0.0
	if healthy {
		up = 1
	}
	c.providerUp.WithLabelValues(provider).Set(up)
	c.providerProbeLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// ObserveAlert 计数告警，签名匹配 observability.AlertHandler。
func (c *Collector) ObserveAlert(a observability.Alert) {
	c.alertsTotal.WithLabelValues(string(a.Type), a.ProviderID).Inc()
}

var healthLevels = []observability.HealthLevel{
	observability.HealthExcellent,
	observability.HealthGood,
	observability.HealthWarning,
	observability.HealthCritical,
}

// SetHealth 把 source 的当前健康等级置 1，其余等级置 0。
func (c *Collector) SetHealth(source string, level observability.HealthLevel) {
	for _, l := range healthLevels {
		v := 0.0
		if l == level {
			v = 1
		}
		c.resourceHealth.WithLabelValues(source, string(l)).Set(v)
	}
}

// =============================================================================
// 🔀 工作流指标
// =============================================================================

// ObserveWorkflow 记录一次实例执行的终态与耗时。
func (c *Collector) ObserveWorkflow(templateID, status string, d time.Duration) {
	c.workflowRunsTotal.WithLabelValues(templateID, status).Inc()
	c.workflowRunDuration.WithLabelValues(templateID).Observe(d.Seconds())
}

// ObserveStep 记录一次步骤执行。
func (c *Collector) ObserveStep(kind, status string, d time.Duration) {
	c.stepExecutionsTotal.WithLabelValues(kind, status).Inc()
	c.stepExecutionSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

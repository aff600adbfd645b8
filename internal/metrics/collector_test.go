package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/llm/observability"
	"github.com/BaSui01/stepflow/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

var _ workflow.RunObserver = (*Collector)(nil)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.providerUp)
	assert.NotNil(t, collector.workflowRunsTotal)
	assert.NotNil(t, collector.stepExecutionsTotal)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollectorWith(nextTestNamespace(), prometheus.NewRegistry(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/health", 204, 50*time.Millisecond, 512, 0)
	collector.RecordHTTPRequest("GET", "/health", 503, 10*time.Millisecond, 0, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/health", "5xx")))
}

func TestCollector_ObserveCall(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var observe observability.CallObserver = collector.ObserveCall
	observe(observability.CallMetric{
		ProviderID: "openai", ModelID: "gpt-4o-mini",
		TokensUsed: 150, LatencyMs: 500, CostEstimate: 0.01, Success: true,
	})
	observe(observability.CallMetric{
		ProviderID: "openai", ModelID: "gpt-4o-mini",
		LatencyMs: 20, Success: false, Error: "boom",
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "error")))
	assert.Equal(t, 150.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini")))
	assert.InDelta(t, 0.01, testutil.ToFloat64(collector.llmCost.WithLabelValues("openai", "gpt-4o-mini")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(collector.llmRequestDuration))
}

func TestCollector_ObserveProbe(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var observe llm.ProbeObserver = collector.ObserveProbe
	observe("openai", true, 40*time.Millisecond)
	observe("claude", false, 5*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.providerUp.WithLabelValues("openai")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.providerUp.WithLabelValues("claude")))

	observe("claude", true, 30*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.providerUp.WithLabelValues("claude")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.providerProbeLatency))
}

func TestCollector_ObserveAlert(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var handle observability.AlertHandler = collector.ObserveAlert
	handle(observability.Alert{Type: observability.AlertHighLatency, ProviderID: "openai"})
	handle(observability.Alert{Type: observability.AlertHighLatency, ProviderID: "openai"})
	handle(observability.Alert{Type: observability.AlertHighErrorRate, ProviderID: "claude"})

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.alertsTotal.WithLabelValues("high_latency", "openai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.alertsTotal.WithLabelValues("high_error_rate", "claude")))
}

func TestCollector_SetHealth(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetHealth("calls", observability.HealthWarning)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.resourceHealth.WithLabelValues("calls", "warning")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.resourceHealth.WithLabelValues("calls", "excellent")))

	collector.SetHealth("calls", observability.HealthExcellent)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.resourceHealth.WithLabelValues("calls", "warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.resourceHealth.WithLabelValues("calls", "excellent")))
	assert.Equal(t, 4, testutil.CollectAndCount(collector.resourceHealth))
}

func TestCollector_WorkflowMetrics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.ObserveWorkflow("journal-summary", "completed", 2*time.Second)
	collector.ObserveWorkflow("journal-summary", "failed", time.Second)
	collector.ObserveStep("provider_call", "completed", 800*time.Millisecond)
	collector.ObserveStep("notify", "failed", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("journal-summary", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.workflowRunsTotal.WithLabelValues("journal-summary", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("notify", "failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.stepExecutionSeconds))
}

func TestCollector_RecordDatabaseQuery(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("sqlite", "archive", 20*time.Millisecond)

	count := testutil.CollectAndCount(collector.dbQueryDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.ObserveCall(observability.CallMetric{ProviderID: "openai", ModelID: "gpt-4o-mini", TokensUsed: 10, Success: true})
			collector.ObserveStep("validate", "completed", time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini")))
	assert.Equal(t, 10.0, testutil.ToFloat64(collector.stepExecutionsTotal.WithLabelValues("validate", "completed")))
}

func TestCollector_CustomRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	ns := nextTestNamespace()
	collector := NewCollectorWith(ns, registry, zap.NewNop())

	collector.ObserveWorkflow("emotion-analysis", "completed", time.Second)

	expected := fmt.Sprintf(`
# HELP %[1]s_workflow_runs_total Total number of workflow instance executions
# TYPE %[1]s_workflow_runs_total counter
%[1]s_workflow_runs_total{status="completed",template="emotion-analysis"} 1
`, ns)
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), ns+"_workflow_runs_total"))
}

func TestStatusCode(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 502: "5xx", 0: "unknown"}
	for code, want := range cases {
		assert.Equal(t, want, statusCode(code))
	}
}

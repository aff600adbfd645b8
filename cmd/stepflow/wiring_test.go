package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/llm/observability"
	"github.com/BaSui01/stepflow/workflow"
)

const shoutTemplate = `
id: shout
name: Shout
variables: [text]
steps:
  - name: clean
    kind: data_transform
    config:
      transform: normalize_text
      input: "{{text}}"
  - name: count
    kind: data_transform
    depends_on: [clean]
    config:
      transform: word_count
  - name: tell
    kind: notify
    depends_on: [clean, count]
    config:
      message: "{{clean}} ({{count}} words)"
`

func writeTemplateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shout.yaml"), []byte(shoutTemplate), 0o644))
	return dir
}

// testConfig 返回无 Provider、无后台探活的配置
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LLM.Providers = nil
	cfg.LLM.ProbeInterval = 0
	cfg.Workflow.Builtins = false
	cfg.Workflow.TemplateDir = writeTemplateDir(t)
	cfg.Metrics.SampleInterval = time.Hour
	return cfg
}

func newTestCollector(t *testing.T) (*metrics.Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return metrics.NewCollectorWith("stepflow_test", reg, zap.NewNop()), reg
}

func TestBuildRuntime_RunsTemplateFromDir(t *testing.T) {
	cfg := testConfig(t)
	collector, reg := newTestCollector(t)

	rt, err := buildRuntime(context.Background(), cfg, zap.NewNop(), runtimeOptions{collector: collector})
	require.NoError(t, err)
	defer rt.close(context.Background())

	inst, results, err := rt.engine.Run(context.Background(), "shout", map[string]any{"text": "  Hello   big  World "})
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "3", results["count"].Output)

	snap, err := rt.engine.GetStatus(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, snap.Status)

	n, err := testutil.GatherAndCount(reg, "stepflow_test_workflow_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuildRuntime_BuiltinsNeedNoProviders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.Builtins = true
	cfg.Workflow.TemplateDir = ""

	rt, err := buildRuntime(context.Background(), cfg, zap.NewNop(), runtimeOptions{})
	require.NoError(t, err)
	defer rt.close(context.Background())

	ids := make([]string, 0)
	for _, tmpl := range rt.engine.Templates() {
		ids = append(ids, tmpl.ID)
	}
	assert.Contains(t, ids, workflow.EmotionAnalysisTemplateID)
	assert.Len(t, ids, len(workflow.BuiltinTemplates()))
}

func TestBuildRuntime_BadTemplateDir(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [unterminated"), 0o644))
	cfg.Workflow.TemplateDir = dir

	_, err := buildRuntime(context.Background(), cfg, zap.NewNop(), runtimeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), dir)
}

func TestBuildRuntime_ArchiveOnSQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Archive = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "archive.db")
	collector, _ := newTestCollector(t)

	rt, err := buildRuntime(context.Background(), cfg, zap.NewNop(), runtimeOptions{collector: collector})
	require.NoError(t, err)
	defer rt.close(context.Background())

	require.NotNil(t, rt.db)
	assert.NoError(t, rt.db.Ping(context.Background()))
}

func TestBuildRuntime_RedisSink(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Notify.Redis.Enabled = true
	cfg.Notify.DefaultSink = "redis"

	rt, err := buildRuntime(context.Background(), cfg, zap.NewNop(), runtimeOptions{})
	require.NoError(t, err)
	defer rt.close(context.Background())

	_, _, err = rt.engine.Run(context.Background(), "shout", map[string]any{"text": "ping"})
	require.NoError(t, err)

	history, err := mr.List(cfg.Notify.Redis.HistoryKey)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0], "ping (1 words)")
}

func TestBuildSinks(t *testing.T) {
	t.Run("log only by default", func(t *testing.T) {
		cfg := config.DefaultConfig()
		sinks, client, err := buildSinks(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, client)
		assert.Equal(t, []string{"log"}, sinks.Names())

		s, err := sinks.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "log", s.Name())
	})

	t.Run("webhook when url set", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Notify.Webhook.URL = "http://127.0.0.1:1/hook"
		cfg.Notify.DefaultSink = "webhook"
		sinks, _, err := buildSinks(context.Background(), cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, []string{"log", "webhook"}, sinks.Names())

		s, err := sinks.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "webhook", s.Name())
	})

	t.Run("default sink not configured", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Notify.DefaultSink = "webhook"
		_, _, err := buildSinks(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notify.default_sink")
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := config.DefaultConfig()
		cfg.Redis.Addr = addr
		cfg.Notify.Redis.Enabled = true
		_, _, err := buildSinks(context.Background(), cfg, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect redis")
	})
}

func TestBuildProviders(t *testing.T) {
	lc := config.DefaultLLMConfig()
	lc.Providers[1].Timeout = 5 * time.Second

	registry, err := buildProviders(lc, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "claude"}, registry.List())

	openai, ok := registry.Config("openai")
	require.True(t, ok)
	assert.Equal(t, lc.Timeout, openai.Timeout)

	claude, ok := registry.Config("claude")
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, claude.Timeout)
}

func TestBuildProviders_UnsupportedType(t *testing.T) {
	lc := config.LLMConfig{Providers: []config.ProviderConfig{{ID: "x", Type: "grpc"}}}
	_, err := buildProviders(lc, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestTaskHints_Overrides(t *testing.T) {
	hints := taskHints(map[string]string{"creative": "openai", "summary": "claude"})
	assert.Equal(t, "openai", hints[llm.TaskCreative])
	assert.Equal(t, "openai", hints[llm.TaskAnalytical])
	assert.Equal(t, "claude", hints[llm.TaskHint("summary")])
}

func TestRecorderConfig_ZeroKeepsDefaults(t *testing.T) {
	def := observability.DefaultRecorderConfig()
	assert.Equal(t, def, recorderConfig(config.MetricsConfig{}))

	rc := recorderConfig(config.MetricsConfig{Retention: time.Hour, ErrorRateThreshold: 0.2})
	assert.Equal(t, time.Hour, rc.Retention)
	assert.Equal(t, 0.2, rc.ErrorRateThreshold)
	assert.Equal(t, def.PruneInterval, rc.PruneInterval)
}

func TestBuildCosts(t *testing.T) {
	costs := buildCosts([]config.PriceConfig{{Model: "local-llama", InputPer1K: 0.002, OutputPer1K: 0.002}})
	cost, ok := costs.Estimate("local-llama", 1000)
	require.True(t, ok)
	assert.InDelta(t, 0.002, cost, 1e-12)
}

type stubArchiver struct {
	got []observability.CallMetric
	err error
}

func (s *stubArchiver) Archive(_ context.Context, m []observability.CallMetric) error {
	s.got = append(s.got, m...)
	return s.err
}

func TestTimedArchiver(t *testing.T) {
	collector, reg := newTestCollector(t)
	next := &stubArchiver{err: errors.New("disk full")}
	a := &timedArchiver{next: next, driver: "sqlite", collector: collector}

	err := a.Archive(context.Background(), []observability.CallMetric{{ProviderID: "openai"}})
	assert.EqualError(t, err, "disk full")
	assert.Len(t, next.got, 1)

	n, err := testutil.GatherAndCount(reg, "stepflow_test_db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRuntime_HealthUpdatesGauge(t *testing.T) {
	cfg := testConfig(t)
	collector, reg := newTestCollector(t)

	rt, err := buildRuntime(context.Background(), cfg, zap.NewNop(), runtimeOptions{collector: collector})
	require.NoError(t, err)
	defer rt.close(context.Background())

	assert.Equal(t, observability.HealthExcellent, rt.health())

	n, err := testutil.GatherAndCount(reg, "stepflow_test_health_level")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

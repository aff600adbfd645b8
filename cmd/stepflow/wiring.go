package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/database"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/llm/observability"
	"github.com/BaSui01/stepflow/llm/providers/openaicompat"
	"github.com/BaSui01/stepflow/notify"
	"github.com/BaSui01/stepflow/workflow"
)

// =============================================================================
// 🔌 运行时装配
// =============================================================================

// runtime 持有 serve 与 run 共用的全部组件
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger

	collector  *metrics.Collector
	providers  *llm.ProviderRegistry
	monitor    *llm.HealthMonitor
	sampler    *observability.ResourceSampler
	recorder   *observability.Recorder
	dispatcher *llm.Dispatcher
	sinks      *notify.Registry
	redis      *redis.Client
	db         *database.PoolManager
	engine     *workflow.Engine
}

// runtimeOptions 控制装配时的可选部分
type runtimeOptions struct {
	// collector 为 nil 时不挂接 Prometheus
	collector *metrics.Collector
	// tracer 为 nil 时使用全局 tracer
	tracer trace.Tracer
}

// buildRuntime 按配置创建组件并完成挂接，不启动后台循环
func buildRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts runtimeOptions) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, collector: opts.collector}

	providers, err := buildProviders(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	rt.providers = providers

	rt.monitor = llm.NewHealthMonitor(providers, cfg.LLM.ProbeInterval, cfg.LLM.ProbeTimeout, logger)
	rt.sampler = observability.NewResourceSampler(cfg.Metrics.SampleInterval, logger,
		observability.WithRecentSamples(cfg.Metrics.RecentSamples))

	recorderOpts := []observability.RecorderOption{observability.WithResourceSampler(rt.sampler)}
	if cfg.Metrics.Archive {
		archiver, err := rt.openArchive()
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		recorderOpts = append(recorderOpts, observability.WithArchiver(archiver))
	}
	rt.recorder = observability.NewRecorder(recorderConfig(cfg.Metrics), buildCosts(cfg.LLM.Prices), logger, recorderOpts...)

	if c := rt.collector; c != nil {
		rt.recorder.OnCall(c.ObserveCall)
		rt.recorder.OnAlert(c.ObserveAlert)
		rt.monitor.SetObserver(c.ObserveProbe)
	}

	dispatcherOpts := []llm.DispatcherOption{
		llm.WithHealthMonitor(rt.monitor),
		llm.WithTaskHints(taskHints(cfg.LLM.TaskHints)),
	}
	if opts.tracer != nil {
		dispatcherOpts = append(dispatcherOpts, llm.WithTracer(opts.tracer))
	}
	rt.dispatcher = llm.NewDispatcher(providers, rt.recorder, logger, dispatcherOpts...)

	sinks, client, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.sinks, rt.redis = sinks, client

	engineOpts := []workflow.EngineOption{}
	if rt.collector != nil {
		engineOpts = append(engineOpts, workflow.WithObserver(rt.collector))
	}
	if opts.tracer != nil {
		engineOpts = append(engineOpts, workflow.WithTracer(opts.tracer))
	}
	rt.engine = workflow.NewEngine(workflow.EngineConfig{
		StrictVariables: cfg.Workflow.StrictVariables,
		MaxConcurrency:  cfg.Workflow.MaxConcurrency,
	}, rt.dispatcher, rt.sinks, logger, engineOpts...)

	if err := loadTemplates(rt.engine, cfg.Workflow, logger); err != nil {
		rt.close(ctx)
		return nil, err
	}
	return rt, nil
}

// start 启动探活、采样与裁剪循环
func (rt *runtime) start(ctx context.Context) {
	rt.sampler.Start(ctx)
	rt.recorder.Start(ctx)
	if rt.cfg.LLM.ProbeInterval > 0 {
		rt.monitor.Start(ctx)
	}
}

// close 停止后台循环并释放外部连接；对部分装配的 runtime 也安全
func (rt *runtime) close(ctx context.Context) {
	if rt.monitor != nil {
		rt.monitor.Stop()
	}
	if rt.recorder != nil {
		rt.recorder.Stop()
	}
	if rt.sampler != nil {
		rt.sampler.Stop()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("close redis", zap.Error(err))
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("close database", zap.Error(err))
		}
	}
}

// health 返回当前健康分级并同步到 Prometheus
func (rt *runtime) health() observability.HealthLevel {
	level := rt.recorder.Health()
	if rt.collector != nil {
		rt.collector.SetHealth("resources", level)
	}
	return level
}

// reportHealth 按采样间隔刷新健康分级 Gauge，直到 ctx 结束
func (rt *runtime) reportHealth(ctx context.Context) {
	interval := rt.cfg.Metrics.SampleInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.health()
		}
	}
}

func (rt *runtime) openArchive() (observability.Archiver, error) {
	dc := rt.cfg.Database
	var poolOpts []database.PoolOption
	if c := rt.collector; c != nil {
		poolOpts = append(poolOpts, database.WithStatsObserver(func(s database.PoolStats) {
			c.RecordDBConnections(dc.Driver, s.OpenConnections, s.Idle)
		}))
	}
	pm, err := database.Open(dc, rt.logger, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("open metrics archive: %w", err)
	}
	rt.db = pm

	archive, err := observability.NewGormArchive(pm.DB(), rt.logger)
	if err != nil {
		return nil, fmt.Errorf("migrate metrics archive: %w", err)
	}
	return &timedArchiver{next: archive, driver: dc.Driver, collector: rt.collector}, nil
}

// timedArchiver 记录归档写入耗时
type timedArchiver struct {
	next      observability.Archiver
	driver    string
	collector *metrics.Collector
}

func (a *timedArchiver) Archive(ctx context.Context, batch []observability.CallMetric) error {
	start := time.Now()
	err := a.next.Archive(ctx, batch)
	if a.collector != nil {
		a.collector.RecordDBQuery(a.driver, "archive", time.Since(start))
	}
	return err
}

// =============================================================================
// 🧩 组件构建
// =============================================================================

// buildProviders 按配置顺序注册 Provider，顺序决定默认选择与回退
func buildProviders(cfg config.LLMConfig, logger *zap.Logger) (*llm.ProviderRegistry, error) {
	registry := llm.NewProviderRegistry()
	for _, pc := range cfg.Providers {
		lc := llm.ProviderConfig{
			ID:           pc.ID,
			Model:        pc.Model,
			MaxTokens:    pc.MaxTokens,
			APIKeyRef:    pc.APIKeyRef,
			BaseURL:      pc.BaseURL,
			Timeout:      pc.Timeout,
			RateLimitRPS: pc.RateLimitRPS,
		}
		if lc.Timeout == 0 {
			lc.Timeout = cfg.Timeout
		}

		var p llm.Provider
		switch pc.Type {
		case "", config.ProviderTypeOpenAICompat:
			p = openaicompat.FromProviderConfig(lc, logger)
		default:
			return nil, fmt.Errorf("provider %q: unsupported type %q", pc.ID, pc.Type)
		}
		if err := registry.Register(lc, p); err != nil {
			return nil, fmt.Errorf("register provider %q: %w", pc.ID, err)
		}
	}
	return registry, nil
}

func buildCosts(prices []config.PriceConfig) *observability.CostCalculator {
	costs := observability.NewCostCalculator()
	for _, p := range prices {
		costs.SetPricePer1K(p.Model, p.InputPer1K, p.OutputPer1K)
	}
	return costs
}

func recorderConfig(mc config.MetricsConfig) observability.RecorderConfig {
	rc := observability.DefaultRecorderConfig()
	if mc.Retention > 0 {
		rc.Retention = mc.Retention
	}
	if mc.PruneInterval > 0 {
		rc.PruneInterval = mc.PruneInterval
	}
	if mc.LatencyThreshold > 0 {
		rc.LatencyThreshold = mc.LatencyThreshold
	}
	if mc.ErrorRateThreshold > 0 {
		rc.ErrorRateThreshold = mc.ErrorRateThreshold
	}
	if mc.ErrorRateWindow > 0 {
		rc.ErrorRateWindow = mc.ErrorRateWindow
	}
	return rc
}

// taskHints 合并默认映射与配置覆盖
func taskHints(overrides map[string]string) map[llm.TaskHint]string {
	hints := llm.DefaultTaskHints()
	for k, v := range overrides {
		hints[llm.TaskHint(k)] = v
	}
	return hints
}

// buildSinks 注册 log、webhook、redis Sink 并设置默认 Sink
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*notify.Registry, *redis.Client, error) {
	sinks := notify.NewRegistry()
	sinks.Register(notify.NewLogSink(logger))

	nc := cfg.Notify
	if nc.Webhook.URL != "" {
		sinks.Register(notify.NewWebhookSink(notify.WebhookConfig{
			URL:     nc.Webhook.URL,
			Headers: nc.Webhook.Headers,
			Timeout: nc.Webhook.Timeout,
		}, logger))
	}

	var client *redis.Client
	if nc.Redis.Enabled {
		c, err := notify.NewRedisClient(ctx, notify.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			TLS:          cfg.Redis.TLS,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		client = c
		sinks.Register(notify.NewRedisSink(client, nc.Redis.Channel, logger,
			notify.WithHistory(nc.Redis.HistoryKey, nc.Redis.HistorySize)))
	}

	if nc.DefaultSink != "" {
		if err := sinks.SetDefault(nc.DefaultSink); err != nil {
			if client != nil {
				_ = client.Close()
			}
			return nil, nil, fmt.Errorf("notify.default_sink: %w", err)
		}
	}
	return sinks, client, nil
}

// loadTemplates 注册内置模板与模板目录中的文件
func loadTemplates(engine *workflow.Engine, wc config.WorkflowConfig, logger *zap.Logger) error {
	var errs []error
	if wc.Builtins {
		if err := engine.RegisterBuiltins(); err != nil {
			errs = append(errs, fmt.Errorf("register builtin templates: %w", err))
		}
	}
	if wc.TemplateDir != "" {
		ids, err := engine.LoadTemplates(wc.TemplateDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("load templates from %s: %w", wc.TemplateDir, err))
		}
		logger.Info("templates loaded", zap.String("dir", wc.TemplateDir), zap.Strings("ids", ids))
	}
	return errors.Join(errs...)
}

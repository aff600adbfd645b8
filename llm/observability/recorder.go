package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CallMetric 是一次 Provider 调用的记录。只追加，按保留窗口裁剪。
type CallMetric struct {
	Timestamp    time.Time `json:"timestamp"`
	ProviderID   string    `json:"provider_id"`
	ModelID      string    `json:"model_id"`
	TokensUsed   int       `json:"tokens_used"`
	LatencyMs    int64     `json:"latency_ms"`
	CostEstimate float64   `json:"cost_estimate"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

// Summary 是窗口内调用的汇总。
type Summary struct {
	Window       time.Duration `json:"window"`
	TotalCalls   int           `json:"total_calls"`
	AvgLatencyMs float64       `json:"avg_latency_ms"`
	TotalTokens  int           `json:"total_tokens"`
	TotalCost    float64       `json:"total_cost"`
	ErrorRate    float64       `json:"error_rate"`
	Health       HealthLevel   `json:"health"`
}

type AlertType string

const (
	AlertHighLatency   AlertType = "high_latency"
	AlertHighErrorRate AlertType = "high_error_rate"
)

// Alert 是一次关键样本告警。
type Alert struct {
	Type       AlertType `json:"type"`
	ProviderID string    `json:"provider_id"`
	ModelID    string    `json:"model_id"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
}

// AlertHandler 告警回调
type AlertHandler func(Alert)

// CallObserver 在每次记录后被调用（例如同步到 Prometheus）。
type CallObserver func(CallMetric)

// Archiver 接收被裁剪的指标。
type Archiver interface {
	Archive(ctx context.Context, metrics []CallMetric) error
}

// RecorderConfig 记录器配置
type RecorderConfig struct {
	Retention          time.Duration
	PruneInterval      time.Duration
	LatencyThreshold   time.Duration
	ErrorRateThreshold float64
	ErrorRateWindow    time.Duration
}

// DefaultRecorderConfig 返回默认配置：保留 7 天，每小时裁剪，延迟 >10s 或错误率 >5% 告警。
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Retention:          7 * 24 * time.Hour,
		PruneInterval:      time.Hour,
		LatencyThreshold:   10 * time.Second,
		ErrorRateThreshold: 0.05,
		ErrorRateWindow:    5 * time.Minute,
	}
}

// Recorder 记录每次调用的延迟、token 与成本，线程安全。
type Recorder struct {
	cfg     RecorderConfig
	costs   *CostCalculator
	sampler *ResourceSampler
	archive Archiver
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	metrics []CallMetric

	hooksMu   sync.RWMutex
	alerts    []AlertHandler
	observers []CallObserver

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithResourceSampler 设置健康分类所用的采样器。
func WithResourceSampler(s *ResourceSampler) RecorderOption {
	return func(r *Recorder) { r.sampler = s }
}

// WithArchiver 设置裁剪指标的归档目标。
func WithArchiver(a Archiver) RecorderOption {
	return func(r *Recorder) { r.archive = a }
}

// WithClock 替换时间源。
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder 创建记录器。costs 为 nil 时使用默认价格表。
func NewRecorder(cfg RecorderConfig, costs *CostCalculator, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if cfg.LatencyThreshold <= 0 {
		cfg.LatencyThreshold = def.LatencyThreshold
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if cfg.ErrorRateWindow <= 0 {
		cfg.ErrorRateWindow = def.ErrorRateWindow
	}
	if costs == nil {
		costs = NewCostCalculator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		cfg:    cfg,
		costs:  costs,
		logger: logger.With(zap.String("component", "metrics_recorder")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnAlert 注册告警回调。
func (r *Recorder) OnAlert(h AlertHandler) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.alerts = append(r.alerts, h)
}

// OnCall 注册调用观察者。
func (r *Recorder) OnCall(o CallObserver) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.observers = append(r.observers, o)
}

// Costs 返回价格表。
func (r *Recorder) Costs() *CostCalculator {
	return r.costs
}

// RecordCall 追加一条调用记录。callErr 为 nil 表示成功。
// 未知模型成本记为 0 并记录告警日志，从不返回错误。
func (r *Recorder) RecordCall(providerID, modelID string, tokensUsed int, latencyMs int64, callErr error) {
	cost, ok := r.costs.Estimate(modelID, tokensUsed)
	if !ok {
		r.logger.Warn("no pricing for model, cost recorded as 0",
			zap.String("provider", providerID),
			zap.String("model", modelID),
		)
	}

	m := CallMetric{
		Timestamp:    r.now(),
		ProviderID:   providerID,
		ModelID:      modelID,
		TokensUsed:   tokensUsed,
		LatencyMs:    latencyMs,
		CostEstimate: cost,
		Success:      callErr == nil,
	}
	if callErr != nil {
		m.Error = callErr.Error()
	}

	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	errorRate := r.errorRateLocked(m.Timestamp.Add(-r.cfg.ErrorRateWindow))
	r.mu.Unlock()

	r.hooksMu.RLock()
	observers := append([]CallObserver(nil), r.observers...)
	r.hooksMu.RUnlock()
	for _, o := range observers {
		o(m)
	}

	threshold := r.cfg.LatencyThreshold.Milliseconds()
	if latencyMs > threshold {
		r.emit(Alert{
			Type:       AlertHighLatency,
			ProviderID: providerID,
			ModelID:    modelID,
			Value:      float64(latencyMs),
			Threshold:  float64(threshold),
			Timestamp:  m.Timestamp,
			Message:    fmt.Sprintf("latency %dms exceeds %dms", latencyMs, threshold),
		})
	}
	if !m.Success && errorRate > r.cfg.ErrorRateThreshold {
		r.emit(Alert{
			Type:       AlertHighErrorRate,
			ProviderID: providerID,
			ModelID:    modelID,
			Value:      errorRate,
			Threshold:  r.cfg.ErrorRateThreshold,
			Timestamp:  m.Timestamp,
			Message:    fmt.Sprintf("error rate %.2f%% exceeds %.2f%%", errorRate*100, r.cfg.ErrorRateThreshold*100),
		})
	}
}

func (r *Recorder) emit(a Alert) {
	r.logger.Warn("critical call metric",
		zap.String("type", string(a.Type)),
		zap.String("provider", a.ProviderID),
		zap.String("model", a.ModelID),
		zap.Float64("value", a.Value),
		zap.Float64("threshold", a.Threshold),
	)
	r.hooksMu.RLock()
	handlers := append([]AlertHandler(nil), r.alerts...)
	r.hooksMu.RUnlock()
	for _, h := range handlers {
		h(a)
	}
}

// errorRateLocked 调用方需持有 r.mu
func (r *Recorder) errorRateLocked(since time.Time) float64 {
	var total, failed int
	for i := len(r.metrics) - 1; i >= 0; i-- {
		m := r.metrics[i]
		if m.Timestamp.Before(since) {
			break
		}
		total++
		if !m.Success {
			failed++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// Metrics 返回所有记录的副本。
func (r *Recorder) Metrics() []CallMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallMetric, len(r.metrics))
	copy(out, r.metrics)
	return out
}

// Summary 汇总 now-window 之后的记录；window <= 0 表示全部。
func (r *Recorder) Summary(window time.Duration) Summary {
	var since time.Time
	if window > 0 {
		since = r.now().Add(-window)
	}

	s := Summary{Window: window}
	var latencySum int64
	var failed int

	r.mu.Lock()
	for _, m := range r.metrics {
		if window > 0 && !m.Timestamp.After(since) {
			continue
		}
		s.TotalCalls++
		s.TotalTokens += m.TokensUsed
		s.TotalCost += m.CostEstimate
		latencySum += m.LatencyMs
		if !m.Success {
			failed++
		}
	}
	r.mu.Unlock()

	if s.TotalCalls > 0 {
		s.AvgLatencyMs = float64(latencySum) / float64(s.TotalCalls)
		s.ErrorRate = float64(failed) / float64(s.TotalCalls)
	}
	s.Health = r.Health()
	return s
}

// Health 根据最近的资源采样给出四级健康分类。
func (r *Recorder) Health() HealthLevel {
	return r.sampler.Health()
}

// Prune 删除早于 now-retention 的记录并归档，返回删除条数。
func (r *Recorder) Prune(ctx context.Context, retention time.Duration) int {
	if retention <= 0 {
		retention = r.cfg.Retention
	}
	horizon := r.now().Add(-retention)

	r.mu.Lock()
	kept := r.metrics[:0:0]
	var pruned []CallMetric
	for _, m := range r.metrics {
		if m.Timestamp.Before(horizon) {
			pruned = append(pruned, m)
			continue
		}
		kept = append(kept, m)
	}
	r.metrics = kept
	r.mu.Unlock()

	if len(pruned) == 0 {
		return 0
	}
	if r.archive != nil {
		if err := r.archive.Archive(ctx, pruned); err != nil {
			r.logger.Warn("archive pruned metrics failed", zap.Int("count", len(pruned)), zap.Error(err))
		}
	}
	r.logger.Debug("pruned call metrics", zap.Int("count", len(pruned)), zap.Time("horizon", horizon))
	return len(pruned)
}

// Start 启动周期性裁剪。
func (r *Recorder) Start(parent context.Context) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.cfg.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Prune(ctx, r.cfg.Retention)
			}
		}
	}(r.done)
}

// Stop 停止裁剪循环。
func (r *Recorder) Stop() {
	r.loopMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

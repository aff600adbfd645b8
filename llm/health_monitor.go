package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProviderProbeResult 是最近一次主动探活的结果。
type ProviderProbeResult struct {
	Healthy     bool          `json:"healthy"`
	Latency     time.Duration `json:"latency"`
	ErrorRate   float64       `json:"error_rate"`
	LastError   string        `json:"last_error,omitempty"`
	LastCheckAt time.Time     `json:"last_check_at"`
}

// ProbeObserver 接收每次探活结果（例如 Prometheus collector）。
type ProbeObserver func(provider string, healthy bool, latency time.Duration)

// HealthMonitor 记录 Provider 的可达性。从未探活过的 Provider 视为可达。
type HealthMonitor struct {
	mu       sync.RWMutex
	probe    map[string]ProviderProbeResult
	registry *ProviderRegistry
	logger   *zap.Logger
	observer ProbeObserver

	interval time.Duration
	timeout  time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewHealthMonitor 创建健康监控器。registry 可为 nil（仅手动 UpdateProbe）。
func NewHealthMonitor(registry *ProviderRegistry, interval, timeout time.Duration, logger *zap.Logger) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthMonitor{
		probe:    make(map[string]ProviderProbeResult),
		registry: registry,
		logger:   logger.With(zap.String("component", "health_monitor")),
		interval: interval,
		timeout:  timeout,
	}
}

// SetObserver 设置探活观察者。
func (m *HealthMonitor) SetObserver(o ProbeObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// IsReachable 返回 Provider 是否可达（最近一次探活成功或尚未探活）。
func (m *HealthMonitor) IsReachable(provider string) bool {
	if m == nil {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.probe[provider]
	if !ok {
		return true
	}
	return res.Healthy
}

// Probe 返回最近一次探活结果。
func (m *HealthMonitor) Probe(provider string) (ProviderProbeResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.probe[provider]
	return res, ok
}

// Snapshot 返回所有 Provider 的探活结果副本。
func (m *HealthMonitor) Snapshot() map[string]ProviderProbeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ProviderProbeResult, len(m.probe))
	for k, v := range m.probe {
		out[k] = v
	}
	return out
}

func (m *HealthMonitor) UpdateProbe(provider string, st *HealthStatus, err error) {
	if provider == "" {
		return
	}
	res := ProviderProbeResult{Healthy: false, LastCheckAt: time.Now()}
	if st != nil {
		res.Healthy = st.Healthy
		res.Latency = st.Latency
		res.ErrorRate = st.ErrorRate
	}
	if err != nil {
		res.Healthy = false
		res.LastError = err.Error()
	}
	m.mu.Lock()
	m.probe[provider] = res
	observer := m.observer
	m.mu.Unlock()

	if observer != nil {
		observer(provider, res.Healthy, res.Latency)
	}
}

// Start 启动后台探活循环，启动时先跑一次，便于尽快发现不可用 Provider。
func (m *HealthMonitor) Start(parent context.Context) {
	if m.registry == nil {
		return
	}
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.ProbeAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ProbeAll(ctx)
			}
		}
	}()
}

// Stop 停止探活循环并等待其退出。
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ProbeAll 对注册表中的每个 Provider 执行一次 HealthCheck。
func (m *HealthMonitor) ProbeAll(parent context.Context) {
	if m.registry == nil {
		return
	}
	for _, id := range m.registry.List() {
		p, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		probeCtx, cancel := context.WithTimeout(parent, m.timeout)
		start := time.Now()
		st, err := p.HealthCheck(probeCtx)
		cancel()

		latency := time.Since(start)
		if st != nil {
			if st.Latency <= 0 {
				st.Latency = latency
			}
		} else {
			st = &HealthStatus{Healthy: false, Latency: latency}
		}
		m.UpdateProbe(id, st, err)

		if err != nil || !st.Healthy {
			m.logger.Warn("llm provider health check failed",
				zap.String("provider", id),
				zap.Duration("latency", st.Latency),
				zap.Error(err),
			)
		}
	}
}

package observability

import (
	"context"
	"math"
	"runtime/debug"
	"runtime/metrics"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthLevel 是四级健康分类。
type HealthLevel string

const (
	HealthExcellent HealthLevel = "excellent"
	HealthGood      HealthLevel = "good"
	HealthWarning   HealthLevel = "warning"
	HealthCritical  HealthLevel = "critical"
)

// ClassifyUtilization 按固定阈值分类：<50 excellent，<70 good，<85 warning，其余 critical。
func ClassifyUtilization(percent float64) HealthLevel {
	switch {
	case percent < 50:
		return HealthExcellent
	case percent < 70:
		return HealthGood
	case percent < 85:
		return HealthWarning
	default:
		return HealthCritical
	}
}

// ResourceSample 是一次资源使用采样（百分比 0-100）。
type ResourceSample struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
}

// SampleFunc 产生一次采样。
type SampleFunc func() (ResourceSample, error)

// ResourceSampler 周期性采集资源使用，保留最近 capacity 个样本。
type ResourceSampler struct {
	mu       sync.RWMutex
	samples  []ResourceSample
	capacity int
	recent   int
	interval time.Duration
	sample   SampleFunc
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// SamplerOption configures a ResourceSampler.
type SamplerOption func(*ResourceSampler)

// WithSampleFunc 替换默认的 Go runtime 采样函数。
func WithSampleFunc(fn SampleFunc) SamplerOption {
	return func(s *ResourceSampler) { s.sample = fn }
}

// WithRecentSamples 设置健康分类取平均的最近样本数。
func WithRecentSamples(n int) SamplerOption {
	return func(s *ResourceSampler) {
		if n > 0 {
			s.recent = n
		}
	}
}

// NewResourceSampler 创建采样器，默认使用 Go runtime 的 CPU 与堆统计。
func NewResourceSampler(interval time.Duration, logger *zap.Logger, opts ...SamplerOption) *ResourceSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &ResourceSampler{
		capacity: 120,
		recent:   5,
		interval: interval,
		logger:   logger.With(zap.String("component", "resource_sampler")),
	}
	s.sample = NewRuntimeSampleFunc()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add 追加一个样本，超过容量时丢弃最旧的。
func (s *ResourceSampler) Add(sample ResourceSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	if over := len(s.samples) - s.capacity; over > 0 {
		s.samples = append(s.samples[:0], s.samples[over:]...)
	}
}

// Recent 返回最近 n 个样本（旧到新）。
func (s *ResourceSampler) Recent(n int) []ResourceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.samples) {
		n = len(s.samples)
	}
	out := make([]ResourceSample, n)
	copy(out, s.samples[len(s.samples)-n:])
	return out
}

// Health 对最近样本取平均，按 max(cpu, mem) 分类；无样本时为 excellent。
func (s *ResourceSampler) Health() HealthLevel {
	if s == nil {
		return HealthExcellent
	}
	recent := s.Recent(s.recent)
	if len(recent) == 0 {
		return HealthExcellent
	}
	var cpu, mem float64
	for _, r := range recent {
		cpu += r.CPUPercent
		mem += r.MemoryPercent
	}
	n := float64(len(recent))
	return ClassifyUtilization(math.Max(cpu/n, mem/n))
}

// SampleOnce 立即采样一次并记录。
func (s *ResourceSampler) SampleOnce() {
	sample, err := s.sample()
	if err != nil {
		s.logger.Warn("resource sample failed", zap.Error(err))
		return
	}
	s.Add(sample)
}

// Start 启动后台采样循环。
func (s *ResourceSampler) Start(parent context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SampleOnce()
			}
		}
	}()
}

// Stop 停止采样循环。
func (s *ResourceSampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// NewRuntimeSampleFunc 基于 runtime/metrics 采样：
// CPU 为两次采样间非 idle 的 CPU 时间占比；内存为堆对象占用相对 GOMEMLIMIT
// （未设置时相对 runtime 向 OS 申请的总内存）的比例。
func NewRuntimeSampleFunc() SampleFunc {
	names := []string{
		"/cpu/classes/total:cpu-seconds",
		"/cpu/classes/idle:cpu-seconds",
		"/memory/classes/heap/objects:bytes",
		"/memory/classes/total:bytes",
	}
	var (
		mu                  sync.Mutex
		lastTotal, lastIdle float64
	)
	return func() (ResourceSample, error) {
		samples := make([]metrics.Sample, len(names))
		for i, n := range names {
			samples[i].Name = n
		}
		metrics.Read(samples)

		total := readFloat(samples[0])
		idle := readFloat(samples[1])
		heap := float64(readUint(samples[2]))
		mapped := float64(readUint(samples[3]))

		mu.Lock()
		dTotal, dIdle := total-lastTotal, idle-lastIdle
		lastTotal, lastIdle = total, idle
		mu.Unlock()

		var cpu float64
		if dTotal > 0 {
			cpu = (dTotal - dIdle) / dTotal * 100
		}

		var mem float64
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			mem = heap / float64(limit) * 100
		} else if mapped > 0 {
			mem = heap / mapped * 100
		}

		return ResourceSample{
			Timestamp:     time.Now(),
			CPUPercent:    clampPercent(cpu),
			MemoryPercent: clampPercent(mem),
		}, nil
	}
}

func readFloat(s metrics.Sample) float64 {
	if s.Value.Kind() == metrics.KindFloat64 {
		return s.Value.Float64()
	}
	return 0
}

func readUint(s metrics.Sample) uint64 {
	if s.Value.Kind() == metrics.KindUint64 {
		return s.Value.Uint64()
	}
	return 0
}

func clampPercent(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

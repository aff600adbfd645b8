package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/llm/tokenizer"
	"github.com/BaSui01/stepflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MetricsRecorder receives one record per provider attempt. callErr is nil on success.
type MetricsRecorder interface {
	RecordCall(providerID, modelID string, tokensUsed int, latencyMs int64, callErr error)
}

// GenerateOptions 控制单次生成调用。零值表示使用 Provider 配置的默认值。
type GenerateOptions struct {
	PreferredProvider string   `json:"provider,omitempty"`
	Model             string   `json:"model,omitempty"`
	MaxTokens         int      `json:"max_tokens,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	SystemPrompt      string   `json:"system_prompt,omitempty"`
	TaskHint          TaskHint `json:"task_hint,omitempty"`
}

// NormalizedResponse 是与后端无关的生成结果。
type NormalizedResponse struct {
	Content    string `json:"content"`
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id"`
	TokensUsed int    `json:"tokens_used"`
	LatencyMs  int64  `json:"latency_ms"`
	TraceID    string `json:"trace_id,omitempty"`
}

// Dispatcher selects a backend per call and performs at most one fallback.
type Dispatcher struct {
	registry  *ProviderRegistry
	recorder  MetricsRecorder
	health    *HealthMonitor
	taskHints map[TaskHint]string
	tracer    trace.Tracer
	logger    *zap.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHealthMonitor makes selection skip providers whose last probe failed.
func WithHealthMonitor(m *HealthMonitor) DispatcherOption {
	return func(d *Dispatcher) { d.health = m }
}

// WithTaskHints replaces the task-hint table.
func WithTaskHints(hints map[TaskHint]string) DispatcherOption {
	return func(d *Dispatcher) {
		if len(hints) > 0 {
			d.taskHints = hints
		}
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a dispatcher over registry. recorder may be nil.
func NewDispatcher(registry *ProviderRegistry, recorder MetricsRecorder, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry:  registry,
		recorder:  recorder,
		taskHints: DefaultTaskHints(),
		tracer:    otel.Tracer("github.com/BaSui01/stepflow/llm"),
		logger:    logger.With(zap.String("component", "dispatcher")),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate runs prompt against the selected provider, falling back once to the
// next configured provider when the selected one fails or nothing is selectable.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*NormalizedResponse, error) {
	order := d.registry.List()
	if len(order) == 0 {
		return nil, types.NewError(types.ErrNoProviderAvailable, "no provider configured")
	}

	traceID, ok := types.TraceID(ctx)
	if !ok {
		traceID = uuid.NewString()
		ctx = types.WithTraceID(ctx, traceID)
	}

	ctx, span := d.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.preferred_provider", opts.PreferredProvider),
		attribute.String("llm.task_hint", string(opts.TaskHint)),
	))
	defer span.End()

	selected, ok := d.selectProvider(order, opts)
	var firstErr error
	if ok {
		resp, err := d.attempt(ctx, selected, prompt, opts, true)
		if err == nil {
			resp.TraceID = traceID
			span.SetAttributes(attribute.String("llm.provider", resp.ProviderID))
			return resp, nil
		}
		firstErr = err
		if ctx.Err() != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		d.logger.Warn("provider call failed, falling back",
			zap.String("provider", selected),
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	}

	fallback, ok := d.fallbackProvider(order, selected)
	if !ok {
		err := d.noProvider(firstErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := d.attempt(ctx, fallback, prompt, opts, selected == "")
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		d.logger.Error("fallback provider call failed",
			zap.String("provider", fallback),
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		out := d.noProvider(firstErr)
		span.RecordError(out)
		span.SetStatus(codes.Error, out.Error())
		return nil, out
	}
	resp.TraceID = traceID
	span.SetAttributes(
		attribute.String("llm.provider", resp.ProviderID),
		attribute.Bool("llm.fallback", true),
	)
	return resp, nil
}

func (d *Dispatcher) noProvider(cause error) error {
	e := types.NewError(types.ErrNoProviderAvailable, "no provider available")
	if cause != nil {
		e.WithCause(cause)
	}
	return e
}

// selectProvider: preferred → task hint → first reachable in registration order.
func (d *Dispatcher) selectProvider(order []string, opts GenerateOptions) (string, bool) {
	if opts.PreferredProvider != "" && d.usable(opts.PreferredProvider) {
		return opts.PreferredProvider, true
	}
	if opts.TaskHint != "" {
		if id, ok := d.taskHints[opts.TaskHint]; ok && d.usable(id) {
			return id, true
		}
	}
	for _, id := range order {
		if d.health.IsReachable(id) {
			return id, true
		}
	}
	return "", false
}

// fallbackProvider picks the next reachable provider after selected in
// registration order (wrapping). When none is reachable it takes the
// immediate next one, since probe results can be stale.
func (d *Dispatcher) fallbackProvider(order []string, selected string) (string, bool) {
	start := 0
	if selected != "" {
		for i, id := range order {
			if id == selected {
				start = i + 1
				break
			}
		}
	}
	var firstOther string
	for i := 0; i < len(order); i++ {
		id := order[(start+i)%len(order)]
		if id == selected {
			continue
		}
		if firstOther == "" {
			firstOther = id
		}
		if d.health.IsReachable(id) {
			return id, true
		}
	}
	return firstOther, firstOther != ""
}

func (d *Dispatcher) usable(id string) bool {
	if _, ok := d.registry.Get(id); !ok {
		return false
	}
	return d.health.IsReachable(id)
}

// attempt performs exactly one call and reports it to the recorder.
// primary controls whether caller model overrides apply.
func (d *Dispatcher) attempt(ctx context.Context, id, prompt string, opts GenerateOptions, primary bool) (*NormalizedResponse, error) {
	p, ok := d.registry.Get(id)
	if !ok {
		return nil, types.Errorf(types.ErrProviderUnavailable, "provider %q not registered", id).WithProvider(id)
	}
	cfg, _ := d.registry.Config(id)

	model := cfg.Model
	if primary && opts.Model != "" {
		model = opts.Model
	}
	maxTokens := cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	req := &ChatRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		Timeout:     cfg.Timeout,
	}
	req.TraceID, _ = types.TraceID(ctx)
	if opts.SystemPrompt != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: opts.SystemPrompt})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: prompt})

	ctx, span := d.tracer.Start(ctx, "llm.attempt", trace.WithAttributes(
		attribute.String("llm.provider", id),
		attribute.String("llm.model", model),
	))
	defer span.End()

	start := time.Now()
	resp, err := d.call(ctx, id, cfg, p, req)
	latency := time.Since(start)

	if err != nil {
		d.record(id, model, 0, latency, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("provider %s: %w", id, err)
	}

	if resp.Model != "" {
		model = resp.Model
	}
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	if tokens == 0 {
		tokens = tokenizer.Estimate(model, opts.SystemPrompt, prompt, resp.Content)
	}
	d.record(id, model, tokens, latency, nil)
	span.SetAttributes(attribute.Int("llm.tokens", tokens))

	d.logger.Debug("provider call completed",
		zap.String("provider", id),
		zap.String("model", model),
		zap.Int("tokens", tokens),
		zap.Duration("latency", latency),
	)

	return &NormalizedResponse{
		Content:    resp.Content,
		ProviderID: id,
		ModelID:    model,
		TokensUsed: tokens,
		LatencyMs:  latency.Milliseconds(),
	}, nil
}

func (d *Dispatcher) call(ctx context.Context, id string, cfg ProviderConfig, p Provider, req *ChatRequest) (*ChatResponse, error) {
	if lim := d.limiter(id, cfg.RateLimitRPS); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrRateLimited, "rate limiter wait failed").
				WithCause(err).WithProvider(id)
		}
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	resp, err := p.Completion(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, types.NewError(types.ErrUpstreamError, "empty response").WithProvider(id)
	}
	return resp, nil
}

func (d *Dispatcher) limiter(id string, rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	d.limitersMu.Lock()
	defer d.limitersMu.Unlock()
	lim, ok := d.limiters[id]
	if !ok {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
		d.limiters[id] = lim
	}
	return lim
}

func (d *Dispatcher) record(id, model string, tokens int, latency time.Duration, err error) {
	if d.recorder == nil {
		return
	}
	d.recorder.RecordCall(id, model, tokens, latency.Milliseconds(), err)
}

package workflow

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/notify"
	"github.com/BaSui01/stepflow/types"
)

// Generator is the provider capability used by provider_call steps.
// *llm.Dispatcher implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (*llm.NormalizedResponse, error)
}

// StepRequest is the input handed to a step executor. Prior holds every result
// published before the step's batch started and must be treated as read-only.
// Variables are the caller values bound at instantiation.
type StepRequest struct {
	WorkflowID string
	Step       BoundStep
	Prior      map[string]*StepResult
	Variables  map[string]string
}

// StepExecutor runs one step.
type StepExecutor interface {
	Execute(ctx context.Context, req StepRequest) (*StepResult, error)
}

// StepExecutorFunc adapts a function to StepExecutor.
type StepExecutorFunc func(ctx context.Context, req StepRequest) (*StepResult, error)

func (f StepExecutorFunc) Execute(ctx context.Context, req StepRequest) (*StepResult, error) {
	return f(ctx, req)
}

// Executors dispatches steps to the executor registered for their kind.
type Executors struct {
	mu     sync.RWMutex
	byKind map[StepKind]StepExecutor
}

// NewExecutors registers the built-in executors. generator and sinks may be nil;
// steps that need them then fail at run time.
func NewExecutors(generator Generator, sinks *notify.Registry, logger *zap.Logger) *Executors {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "step_executor"))

	e := &Executors{byKind: make(map[StepKind]StepExecutor, 4)}
	e.Register(KindProviderCall, &providerCallExecutor{generator: generator, logger: logger})
	e.Register(KindDataTransform, StepExecutorFunc(executeTransform))
	e.Register(KindValidate, StepExecutorFunc(executeValidate))
	e.Register(KindNotify, &notifyExecutor{sinks: sinks, logger: logger})
	return e
}

// Register sets the executor for kind, replacing any existing one.
func (e *Executors) Register(kind StepKind, exec StepExecutor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byKind[kind] = exec
}

// Execute implements StepExecutor.
func (e *Executors) Execute(ctx context.Context, req StepRequest) (*StepResult, error) {
	e.mu.RLock()
	exec, ok := e.byKind[req.Step.Kind]
	e.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrUnknownStepKind, "unknown step kind %q", req.Step.Kind).WithStep(req.Step.Name)
	}
	return exec.Execute(ctx, req)
}

// renderer resolves a caller variable first, then {{step}} to a prior step's
// output and {{step.field}} to one of its fields. Substituted text is not
// scanned again.
func renderer(prior map[string]*StepResult, vars map[string]string) func(string) string {
	lookup := func(key string) (string, bool) {
		if v, ok := vars[key]; ok {
			return v, true
		}
		if r, ok := prior[key]; ok {
			return r.Output, true
		}
		name, field, ok := strings.Cut(key, ".")
		if !ok {
			return "", false
		}
		r, found := prior[name]
		if !found {
			return "", false
		}
		return r.Field(field)
	}
	return func(s string) string { return Substitute(s, lookup) }
}

// renderConfig returns the step config with every token rendered. Steps bound
// by the instantiator render from the template text, so a variable value that
// itself looks like {{step}} stays literal.
func renderConfig[T StepConfig](req StepRequest) (T, error) {
	step := req.Step
	cfg, render := step.Config, renderer(req.Prior, nil)
	if step.source != nil {
		cfg, render = step.source, renderer(req.Prior, req.Variables)
	}
	typed, ok := cfg.(T)
	if !ok {
		var zero T
		return zero, types.Errorf(types.ErrInvalidStepConfig, "config %T does not match kind %q", cfg, step.Kind).WithStep(step.Name)
	}
	return typed.mapStrings(render).(T), nil
}

// =============================================================================
// provider_call
// =============================================================================

type providerCallExecutor struct {
	generator Generator
	logger    *zap.Logger
}

func (e *providerCallExecutor) Execute(ctx context.Context, req StepRequest) (*StepResult, error) {
	cfg, err := renderConfig[ProviderCallConfig](req)
	if err != nil {
		return nil, err
	}
	if e.generator == nil {
		return nil, types.NewError(types.ErrNoProviderAvailable, "no provider dispatcher configured")
	}

	resp, err := e.generator.Generate(ctx, cfg.Prompt, llm.GenerateOptions{
		PreferredProvider: cfg.Provider,
		Model:             cfg.Model,
		MaxTokens:         cfg.MaxTokens,
		Temperature:       cfg.Temperature,
		SystemPrompt:      cfg.SystemPrompt,
		TaskHint:          cfg.TaskHint,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("provider call completed",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("step", req.Step.Name),
		zap.String("provider", resp.ProviderID),
		zap.Int("tokens", resp.TokensUsed),
	)

	return &StepResult{
		Output: resp.Content,
		Fields: map[string]string{
			"content":     resp.Content,
			"provider_id": resp.ProviderID,
			"model_id":    resp.ModelID,
			"tokens_used": strconv.Itoa(resp.TokensUsed),
			"latency_ms":  strconv.FormatInt(resp.LatencyMs, 10),
		},
		Data: resp,
	}, nil
}

// =============================================================================
// data_transform
// =============================================================================

func executeTransform(_ context.Context, req StepRequest) (*StepResult, error) {
	cfg, err := renderConfig[TransformConfig](req)
	if err != nil {
		return nil, err
	}

	input := cfg.Input
	if input == "" {
		parts := make([]string, 0, len(req.Step.DependsOn))
		for _, dep := range req.Step.DependsOn {
			if r, ok := req.Prior[dep]; ok {
				parts = append(parts, r.Output)
			}
		}
		input = strings.Join(parts, "\n")
	}

	out, err := ApplyTransform(cfg.Transform, input, cfg.Params)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Output: out,
		Fields: map[string]string{"transform": cfg.Transform},
	}, nil
}

// =============================================================================
// validate
// =============================================================================

// executeValidate never fails on content: a missing target skips every check.
func executeValidate(_ context.Context, req StepRequest) (*StepResult, error) {
	cfg, err := renderConfig[ValidateConfig](req)
	if err != nil {
		return nil, err
	}

	target := cfg.Target
	if target == "" && len(req.Step.DependsOn) > 0 {
		target = req.Step.DependsOn[0]
	}
	subject, found := req.Prior[target]

	outcomes := make(map[string]CheckOutcome, len(cfg.Checks))
	fields := make(map[string]string, len(cfg.Checks)+2)
	passed := true
	for _, name := range cfg.Checks {
		outcome := CheckSkip
		if found {
			outcome = RunCheck(name, subject.Output, cfg.Params)
		}
		if outcome == CheckFail {
			passed = false
		}
		outcomes[name] = outcome
		fields[name] = string(outcome)
	}
	fields["passed"] = strconv.FormatBool(passed)
	fields["target"] = target

	return &StepResult{
		Output: strconv.FormatBool(passed),
		Fields: fields,
		Data:   outcomes,
	}, nil
}

// =============================================================================
// notify
// =============================================================================

type notifyExecutor struct {
	sinks  *notify.Registry
	logger *zap.Logger
}

func (e *notifyExecutor) Execute(ctx context.Context, req StepRequest) (*StepResult, error) {
	cfg, err := renderConfig[NotifyConfig](req)
	if err != nil {
		return nil, err
	}
	if e.sinks == nil {
		return nil, types.NewError(types.ErrNotificationSinkAbsent, "no notification sinks configured")
	}

	sink, err := e.sinks.Resolve(cfg.Sink)
	if err != nil {
		return nil, err
	}

	msg := notify.NewMessage(cfg.Message)
	msg.Channel = cfg.Channel
	msg.Subject = cfg.Subject
	msg.WorkflowID = req.WorkflowID
	msg.Step = req.Step.Name
	msg.Metadata = cfg.Metadata

	ack, err := sink.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	if ack == nil || !ack.Accepted {
		return nil, types.Errorf(types.ErrNotificationRejected, "sink %q rejected message %s", sink.Name(), msg.ID)
	}

	e.logger.Debug("notification sent",
		zap.String("workflow_id", req.WorkflowID),
		zap.String("step", req.Step.Name),
		zap.String("sink", sink.Name()),
		zap.String("message_id", msg.ID),
	)

	return &StepResult{
		Output: msg.ID,
		Fields: map[string]string{
			"message_id": msg.ID,
			"sink":       sink.Name(),
			"accepted":   strconv.FormatBool(ack.Accepted),
			"timestamp":  ack.Timestamp.UTC().Format(time.RFC3339Nano),
		},
		Data: ack,
	}, nil
}

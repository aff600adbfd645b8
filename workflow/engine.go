package workflow

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/notify"
	"github.com/BaSui01/stepflow/types"
)

// EngineConfig holds the workflow settings of the engine.
type EngineConfig struct {
	// StrictVariables fails instantiation when a declared variable is missing.
	StrictVariables bool
	// MaxConcurrency bounds steps running at once within a batch; 0 = unbounded.
	MaxConcurrency int
}

// Engine is the workflow control surface: templates, instances and execution.
type Engine struct {
	registry     *TemplateRegistry
	instantiator *Instantiator
	scheduler    *Scheduler
	logger       *zap.Logger

	mu        sync.RWMutex
	instances map[string]*Instance
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	observer RunObserver
	tracer   trace.Tracer
	custom   map[StepKind]StepExecutor
}

// WithObserver reports workflow and step durations to o.
func WithObserver(o RunObserver) EngineOption {
	return func(opts *engineOptions) { opts.observer = o }
}

// WithTracer overrides the tracer used for workflow spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(opts *engineOptions) { opts.tracer = t }
}

// WithStepExecutor replaces the executor of a step kind.
func WithStepExecutor(kind StepKind, exec StepExecutor) EngineOption {
	return func(opts *engineOptions) {
		if opts.custom == nil {
			opts.custom = make(map[StepKind]StepExecutor)
		}
		opts.custom[kind] = exec
	}
}

// NewEngine wires registry, instantiator, executors and scheduler together.
func NewEngine(cfg EngineConfig, generator Generator, sinks *notify.Registry, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	executors := NewExecutors(generator, sinks, logger)
	for kind, exec := range o.custom {
		executors.Register(kind, exec)
	}

	schedOpts := []SchedulerOption{WithMaxConcurrency(cfg.MaxConcurrency)}
	if o.observer != nil {
		schedOpts = append(schedOpts, WithRunObserver(o.observer))
	}
	if o.tracer != nil {
		schedOpts = append(schedOpts, WithSchedulerTracer(o.tracer))
	}

	registry := NewTemplateRegistry(logger)
	return &Engine{
		registry:     registry,
		instantiator: NewInstantiator(registry, cfg.StrictVariables),
		scheduler:    NewScheduler(executors, logger, schedOpts...),
		logger:       logger.With(zap.String("component", "workflow_engine")),
		instances:    make(map[string]*Instance),
	}
}

// Registry exposes the template registry.
func (e *Engine) Registry() *TemplateRegistry { return e.registry }

// RegisterTemplate validates and registers t.
func (e *Engine) RegisterTemplate(t *Template) error {
	return e.registry.Register(t)
}

// Templates returns all registered templates sorted by id.
func (e *Engine) Templates() []*Template {
	return e.registry.List()
}

// Instantiate creates and tracks a pending instance.
func (e *Engine) Instantiate(templateID string, variables map[string]any) (*Instance, error) {
	inst, err := e.instantiator.Instantiate(templateID, variables)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.instances[inst.ID] = inst
	e.mu.Unlock()

	e.logger.Debug("workflow instantiated",
		zap.String("workflow_id", inst.ID),
		zap.String("template_id", templateID),
	)
	return inst, nil
}

// Execute runs a tracked pending instance.
func (e *Engine) Execute(ctx context.Context, instanceID string) (map[string]*StepResult, error) {
	inst, err := e.instance(instanceID)
	if err != nil {
		return nil, err
	}
	return e.scheduler.Execute(ctx, inst)
}

// Run instantiates templateID and executes it. The instance is returned even
// when execution fails so callers can inspect its state.
func (e *Engine) Run(ctx context.Context, templateID string, variables map[string]any) (*Instance, map[string]*StepResult, error) {
	inst, err := e.Instantiate(templateID, variables)
	if err != nil {
		return nil, nil, err
	}
	results, err := e.scheduler.Execute(ctx, inst)
	return inst, results, err
}

// GetStatus returns a snapshot of the instance.
func (e *Engine) GetStatus(instanceID string) (InstanceSnapshot, error) {
	inst, err := e.instance(instanceID)
	if err != nil {
		return InstanceSnapshot{}, err
	}
	return inst.Snapshot(), nil
}

// ListRunning returns snapshots of instances currently running, by id.
func (e *Engine) ListRunning() []InstanceSnapshot {
	e.mu.RLock()
	running := make([]*Instance, 0)
	for _, inst := range e.instances {
		if inst.Status() == StatusRunning {
			running = append(running, inst)
		}
	}
	e.mu.RUnlock()

	sort.Slice(running, func(i, j int) bool { return running[i].ID < running[j].ID })
	out := make([]InstanceSnapshot, len(running))
	for i, inst := range running {
		out[i] = inst.Snapshot()
	}
	return out
}

// Forget drops a terminal instance from tracking.
func (e *Engine) Forget(instanceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[instanceID]
	if !ok {
		return types.Errorf(types.ErrInstanceNotFound, "instance %q not found", instanceID)
	}
	if !inst.Status().Terminal() {
		return types.Errorf(types.ErrInvalidState, "instance %q is %s", instanceID, inst.Status())
	}
	delete(e.instances, instanceID)
	return nil
}

func (e *Engine) instance(id string) (*Instance, error) {
	e.mu.RLock()
	inst, ok := e.instances[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrInstanceNotFound, "instance %q not found", id)
	}
	return inst, nil
}

package workflow

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stepflow/types"
)

// RunObserver receives workflow and step durations (e.g. a Prometheus collector).
type RunObserver interface {
	ObserveWorkflow(templateID, status string, d time.Duration)
	ObserveStep(kind, status string, d time.Duration)
}

// Scheduler executes an instance in rounds: each round runs every step whose
// dependencies have all published results, concurrently, and the next round
// starts only after the whole batch settles.
type Scheduler struct {
	executor       StepExecutor
	maxConcurrency int
	observer       RunObserver
	tracer         trace.Tracer
	logger         *zap.Logger
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxConcurrency bounds the steps running at once within a batch. 0 means unbounded.
func WithMaxConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxConcurrency = n }
}

// WithRunObserver sets the observer.
func WithRunObserver(o RunObserver) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

// WithSchedulerTracer overrides the OTel tracer.
func WithSchedulerTracer(t trace.Tracer) SchedulerOption {
	return func(s *Scheduler) { s.tracer = t }
}

// NewScheduler creates a scheduler that runs steps through executor.
func NewScheduler(executor StepExecutor, logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		executor: executor,
		tracer:   otel.Tracer("github.com/BaSui01/stepflow/workflow"),
		logger:   logger.With(zap.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs inst to completion. inst must be pending. On failure the
// instance is marked failed with the error and the remaining steps are
// abandoned.
func (s *Scheduler) Execute(ctx context.Context, inst *Instance) (map[string]*StepResult, error) {
	if err := inst.start(); err != nil {
		return nil, err
	}

	ctx = types.WithWorkflowID(ctx, inst.ID)
	ctx, span := s.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", inst.ID),
		attribute.String("workflow.template_id", inst.TemplateID),
		attribute.Int("workflow.steps", len(inst.Steps)),
	))
	defer span.End()

	start := time.Now()
	s.logger.Info("workflow started",
		zap.String("workflow_id", inst.ID),
		zap.String("template_id", inst.TemplateID),
		zap.Int("steps", len(inst.Steps)),
	)

	results, err := s.run(ctx, inst)
	inst.finish(err)

	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("workflow failed",
			zap.String("workflow_id", inst.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	} else {
		s.logger.Info("workflow completed",
			zap.String("workflow_id", inst.ID),
			zap.Duration("duration", time.Since(start)),
		)
	}
	if s.observer != nil {
		s.observer.ObserveWorkflow(inst.TemplateID, string(status), time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scheduler) run(ctx context.Context, inst *Instance) (map[string]*StepResult, error) {
	results := make(map[string]*StepResult, len(inst.Steps))

	for round := 1; len(results) < len(inst.Steps); round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ready := readySteps(inst.Steps, results)
		if len(ready) == 0 {
			return nil, types.Errorf(types.ErrCircularDependency,
				"no runnable step among %s", strings.Join(pendingNames(inst.Steps, results), ", "))
		}

		s.logger.Debug("executing batch",
			zap.String("workflow_id", inst.ID),
			zap.Int("round", round),
			zap.Int("batch_size", len(ready)),
		)

		batch, err := s.runBatch(ctx, inst, ready, results, round)
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			results[r.Step] = r
		}
		inst.publish(batch)
	}
	return results, nil
}

// runBatch executes ready concurrently. Each goroutine writes only its own slot;
// results are merged by the caller after Wait.
func (s *Scheduler) runBatch(ctx context.Context, inst *Instance, ready []BoundStep, prior map[string]*StepResult, round int) ([]*StepResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}

	out := make([]*StepResult, len(ready))
	for i, step := range ready {
		g.Go(func() error {
			res, err := s.runStep(gctx, inst, step, prior, round)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scheduler) runStep(ctx context.Context, inst *Instance, step BoundStep, prior map[string]*StepResult, round int) (*StepResult, error) {
	ctx = types.WithStepName(ctx, step.Name)
	ctx, span := s.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("workflow.step", step.Name),
		attribute.String("workflow.step_kind", string(step.Kind)),
		attribute.Int("workflow.round", round),
	))
	defer span.End()

	rec := inst.history.RecordStepStart(step, round)
	started := time.Now()

	res, err := s.executor.Execute(ctx, StepRequest{WorkflowID: inst.ID, Step: step, Prior: prior, Variables: inst.variables})

	inst.history.RecordStepEnd(rec, err)
	elapsed := time.Since(started)
	if s.observer != nil {
		status := StatusCompleted
		if err != nil {
			status = StatusFailed
		}
		s.observer.ObserveStep(string(step.Kind), string(status), elapsed)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("step failed",
			zap.String("workflow_id", inst.ID),
			zap.String("step", step.Name),
			zap.String("kind", string(step.Kind)),
			zap.Error(err),
		)
		return nil, types.NewStepError(step.Name, err)
	}

	if res == nil {
		res = &StepResult{}
	}
	res.Step = step.Name
	res.Kind = step.Kind
	res.StartedAt = started
	res.CompletedAt = started.Add(elapsed)
	return res, nil
}

// readySteps returns unexecuted steps whose dependencies have all published
// results, in declaration order.
func readySteps(steps []BoundStep, done map[string]*StepResult) []BoundStep {
	var ready []BoundStep
	for _, st := range steps {
		if _, ok := done[st.Name]; ok {
			continue
		}
		satisfied := true
		for _, dep := range st.DependsOn {
			if _, ok := done[dep]; !ok {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, st)
		}
	}
	return ready
}

func pendingNames(steps []BoundStep, done map[string]*StepResult) []string {
	var names []string
	for _, st := range steps {
		if _, ok := done[st.Name]; !ok {
			names = append(names, st.Name)
		}
	}
	return names
}

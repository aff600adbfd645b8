package workflow

import (
	"strconv"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/types"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// BoundStep is a template step with variables substituted.
//
// source keeps the template's unrendered config so executors can resolve
// variables and step results in a single pass.
type BoundStep struct {
	ID string `json:"id"`
	StepDescriptor

	source StepConfig
}

// StepResult is the output of one step.
//
// Output is what {{step}} renders to in later steps; Fields back {{step.field}}.
// Data carries the executor-specific payload (e.g. *llm.NormalizedResponse).
type StepResult struct {
	Step        string            `json:"step"`
	Kind        StepKind          `json:"kind"`
	Output      string            `json:"output"`
	Fields      map[string]string `json:"fields,omitempty"`
	Data        any               `json:"data,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Field returns a named field; "output" always resolves to Output.
func (r *StepResult) Field(name string) (string, bool) {
	if name == "output" {
		return r.Output, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Instance is one execution of a template. It is created pending by the
// instantiator and mutated only by the scheduler running it.
type Instance struct {
	ID         string      `json:"id"`
	TemplateID string      `json:"template_id"`
	Steps      []BoundStep `json:"steps"`
	CreatedAt  time.Time   `json:"created_at"`

	mu          sync.RWMutex
	status      Status
	startedAt   *time.Time
	completedAt *time.Time
	results     map[string]*StepResult
	err         error
	history     *ExecutionHistory
	variables   map[string]string
}

func newInstance(id, templateID string, steps []BoundStep) *Instance {
	return &Instance{
		ID:         id,
		TemplateID: templateID,
		Steps:      steps,
		CreatedAt:  time.Now(),
		status:     StatusPending,
		results:    make(map[string]*StepResult, len(steps)),
		history:    newExecutionHistory(),
	}
}

func stepID(workflowID string, index int) string {
	return workflowID + "-step-" + strconv.Itoa(index)
}

// Status returns the current status.
func (i *Instance) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// Err returns the recorded failure, if any.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.err
}

// Result returns the result published by the named step.
func (i *Instance) Result(step string) (*StepResult, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	r, ok := i.results[step]
	return r, ok
}

// Results returns a copy of the result map.
func (i *Instance) Results() map[string]*StepResult {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return copyResults(i.results)
}

// History returns the per-step execution trace.
func (i *Instance) History() []StepExecution {
	return i.history.Steps()
}

// InstanceSnapshot is a point-in-time view of an instance.
type InstanceSnapshot struct {
	ID          string                 `json:"id"`
	TemplateID  string                 `json:"template_id"`
	Status      Status                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Results     map[string]*StepResult `json:"results"`
	Error       string                 `json:"error,omitempty"`
	ErrorCode   types.ErrorCode        `json:"error_code,omitempty"`
	History     []StepExecution        `json:"history,omitempty"`
}

// Snapshot returns a consistent view of the instance.
func (i *Instance) Snapshot() InstanceSnapshot {
	i.mu.RLock()
	snap := InstanceSnapshot{
		ID:          i.ID,
		TemplateID:  i.TemplateID,
		Status:      i.status,
		CreatedAt:   i.CreatedAt,
		StartedAt:   copyTime(i.startedAt),
		CompletedAt: copyTime(i.completedAt),
		Results:     copyResults(i.results),
	}
	if i.err != nil {
		snap.Error = i.err.Error()
		snap.ErrorCode = types.GetErrorCode(i.err)
	}
	i.mu.RUnlock()

	snap.History = i.history.Steps()
	return snap
}

func (i *Instance) start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status != StatusPending {
		return types.Errorf(types.ErrInvalidState, "instance %q is %s, not pending", i.ID, i.status)
	}
	now := time.Now()
	i.status = StatusRunning
	i.startedAt = &now
	return nil
}

func (i *Instance) publish(results []*StepResult) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, r := range results {
		i.results[r.Step] = r
	}
}

func (i *Instance) finish(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	i.completedAt = &now
	if err != nil {
		i.status = StatusFailed
		i.err = err
		return
	}
	i.status = StatusCompleted
}

func copyResults(in map[string]*StepResult) map[string]*StepResult {
	out := make(map[string]*StepResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

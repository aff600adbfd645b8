package workflow

import (
	"sync"
	"time"
)

// StepExecution records one step run inside an instance.
type StepExecution struct {
	StepID    string        `json:"step_id"`
	StepName  string        `json:"step_name"`
	Kind      StepKind      `json:"kind"`
	Round     int           `json:"round"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// ExecutionHistory is the ordered step trace of one instance execution.
type ExecutionHistory struct {
	mu    sync.RWMutex
	steps []*StepExecution
}

func newExecutionHistory() *ExecutionHistory {
	return &ExecutionHistory{steps: make([]*StepExecution, 0)}
}

// RecordStepStart appends a running record and returns it for RecordStepEnd.
func (h *ExecutionHistory) RecordStepStart(step BoundStep, round int) *StepExecution {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := &StepExecution{
		StepID:    step.ID,
		StepName:  step.Name,
		Kind:      step.Kind,
		Round:     round,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	h.steps = append(h.steps, rec)
	return rec
}

// RecordStepEnd closes rec.
func (h *ExecutionHistory) RecordStepEnd(rec *StepExecution, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec.EndTime = time.Now()
	rec.Duration = rec.EndTime.Sub(rec.StartTime)
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = StatusCompleted
	}
}

// Steps returns copies of the recorded step executions in start order.
func (h *ExecutionHistory) Steps() []StepExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]StepExecution, len(h.steps))
	for i, s := range h.steps {
		out[i] = *s
	}
	return out
}

// Step returns the record for the named step.
func (h *ExecutionHistory) Step(name string) (StepExecution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.steps {
		if s.StepName == name {
			return *s, true
		}
	}
	return StepExecution{}, false
}

package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID    contextKey = "trace_id"
	keyWorkflowID contextKey = "workflow_id"
	keyStepName   contextKey = "step_name"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithWorkflowID adds the executing workflow instance ID to context.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, keyWorkflowID, workflowID)
}

// WorkflowID extracts the workflow instance ID from context.
func WorkflowID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyWorkflowID).(string)
	return v, ok && v != ""
}

// WithStepName adds the executing step name to context.
func WithStepName(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, keyStepName, step)
}

// StepName extracts the executing step name from context.
func StepName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyStepName).(string)
	return v, ok && v != ""
}

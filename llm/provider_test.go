package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeProvider is a scripted backend used across this package's tests.
type fakeProvider struct {
	name    string
	content string
	model   string
	tokens  int
	err     error
	delay   time.Duration
	healthy bool

	mu       sync.Mutex
	calls    int
	requests []*ChatRequest
}

func newFake(name string) *fakeProvider {
	return &fakeProvider{name: name, content: "from " + name, model: name + "-model", tokens: 10, healthy: true}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &ChatResponse{
		Provider: f.name,
		Model:    req.Model,
		Content:  f.content,
		Usage:    ChatUsage{TotalTokens: f.tokens},
	}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	if !f.healthy {
		return &HealthStatus{Healthy: false}, errors.New("unhealthy")
	}
	return &HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) lastRequest() *ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

type recordedCall struct {
	provider string
	model    string
	tokens   int
	success  bool
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) RecordCall(providerID, modelID string, tokensUsed int, _ int64, callErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{providerID, modelID, tokensUsed, callErr == nil})
}

func (r *fakeRecorder) snapshot() []recordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, providers ...*fakeProvider) (*Dispatcher, *fakeRecorder, *HealthMonitor) {
	t.Helper()
	reg := NewProviderRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(ProviderConfig{ID: p.name, Model: p.model, MaxTokens: 256}, p))
	}
	rec := &fakeRecorder{}
	hm := NewHealthMonitor(reg, time.Hour, time.Second, nil)
	return NewDispatcher(reg, rec, nil, WithHealthMonitor(hm)), rec, hm
}

func TestDispatcher_PreferredProvider(t *testing.T) {
	t.Parallel()

	a, b := newFake("openai"), newFake("claude")
	d, rec, _ := newTestDispatcher(t, a, b)

	resp, err := d.Generate(context.Background(), "hello", GenerateOptions{PreferredProvider: "claude"})
	require.NoError(t, err)
	assert.Equal(t, "claude", resp.ProviderID)
	assert.Equal(t, "from claude", resp.Content)
	assert.Equal(t, 10, resp.TokensUsed)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, 0, a.callCount())
	assert.Len(t, rec.snapshot(), 1)
}

func TestDispatcher_TaskHintSelection(t *testing.T) {
	t.Parallel()

	a, b := newFake("openai"), newFake("claude")
	d, _, _ := newTestDispatcher(t, a, b)

	resp, err := d.Generate(context.Background(), "write a poem", GenerateOptions{TaskHint: TaskCreative})
	require.NoError(t, err)
	assert.Equal(t, "claude", resp.ProviderID)

	resp, err = d.Generate(context.Background(), "sum these", GenerateOptions{TaskHint: TaskAnalytical})
	require.NoError(t, err)
	assert.Equal(t, "openai", resp.ProviderID)
}

func TestDispatcher_DefaultsToFirstReachable(t *testing.T) {
	t.Parallel()

	a, b := newFake("first"), newFake("second")
	d, _, hm := newTestDispatcher(t, a, b)

	resp, err := d.Generate(context.Background(), "x", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "first", resp.ProviderID)

	hm.UpdateProbe("first", &HealthStatus{Healthy: false}, nil)
	resp, err = d.Generate(context.Background(), "x", GenerateOptions{PreferredProvider: "first"})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.ProviderID, "unreachable preferred provider is skipped")
}

func TestDispatcher_FallbackRecordsOneFailureAndOneSuccess(t *testing.T) {
	t.Parallel()

	a, b := newFake("primary"), newFake("secondary")
	a.err = errors.New("upstream down")
	d, rec, _ := newTestDispatcher(t, a, b)

	resp, err := d.Generate(context.Background(), "x", GenerateOptions{PreferredProvider: "primary"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", resp.ProviderID)
	assert.Equal(t, "from secondary", resp.Content)
	assert.Equal(t, 1, a.callCount())
	assert.Equal(t, 1, b.callCount())

	calls := rec.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, recordedCall{provider: "primary", model: "primary-model", tokens: 0, success: false}, calls[0])
	assert.Equal(t, "secondary", calls[1].provider)
	assert.True(t, calls[1].success)
	assert.Equal(t, 10, calls[1].tokens)
}

func TestDispatcher_FallbackUsesFallbackModel(t *testing.T) {
	t.Parallel()

	a, b := newFake("primary"), newFake("secondary")
	a.err = errors.New("boom")
	d, _, _ := newTestDispatcher(t, a, b)

	_, err := d.Generate(context.Background(), "x", GenerateOptions{PreferredProvider: "primary", Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, "custom-model", a.lastRequest().Model)
	assert.Equal(t, "secondary-model", b.lastRequest().Model)
}

func TestDispatcher_NoSecondRetry(t *testing.T) {
	t.Parallel()

	a, b, c := newFake("a"), newFake("b"), newFake("c")
	a.err = errors.New("a down")
	b.err = errors.New("b down")
	d, rec, _ := newTestDispatcher(t, a, b, c)

	_, err := d.Generate(context.Background(), "x", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNoProviderAvailable))
	assert.Equal(t, 0, c.callCount(), "exactly one fallback")
	assert.Len(t, rec.snapshot(), 2)
}

func TestDispatcher_NoProviders(t *testing.T) {
	t.Parallel()

	d, _, _ := newTestDispatcher(t)
	_, err := d.Generate(context.Background(), "x", GenerateOptions{})
	assert.True(t, types.IsCode(err, types.ErrNoProviderAvailable))
}

func TestDispatcher_SingleFailingProvider(t *testing.T) {
	t.Parallel()

	a := newFake("only")
	a.err = errors.New("down")
	d, rec, _ := newTestDispatcher(t, a)

	_, err := d.Generate(context.Background(), "x", GenerateOptions{})
	assert.True(t, types.IsCode(err, types.ErrNoProviderAvailable))
	assert.Len(t, rec.snapshot(), 1)
}

func TestDispatcher_AllUnreachableStillTriesOnce(t *testing.T) {
	t.Parallel()

	a, b := newFake("a"), newFake("b")
	d, _, hm := newTestDispatcher(t, a, b)
	hm.UpdateProbe("a", &HealthStatus{Healthy: false}, nil)
	hm.UpdateProbe("b", &HealthStatus{Healthy: false}, nil)

	resp, err := d.Generate(context.Background(), "x", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.ProviderID)
}

func TestDispatcher_RequestShape(t *testing.T) {
	t.Parallel()

	a := newFake("openai")
	d, _, _ := newTestDispatcher(t, a)
	temp := 0.2

	ctx := types.WithTraceID(context.Background(), "trace-1")
	resp, err := d.Generate(ctx, "user prompt", GenerateOptions{SystemPrompt: "be kind", Temperature: &temp, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "trace-1", resp.TraceID)

	req := a.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "trace-1", req.TraceID)
	assert.Equal(t, 64, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "user prompt", req.Messages[1].Content)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
}

func TestDispatcher_EstimatesTokensWhenUsageMissing(t *testing.T) {
	t.Parallel()

	a := newFake("local")
	a.tokens = 0
	a.content = "abcdefgh"
	d, rec, _ := newTestDispatcher(t, a)

	resp, err := d.Generate(context.Background(), "abcdefgh", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.TokensUsed)
	assert.Equal(t, 4, rec.snapshot()[0].tokens)
}

func TestDispatcher_CanceledContextSkipsFallback(t *testing.T) {
	t.Parallel()

	a, b := newFake("slow"), newFake("other")
	a.delay = time.Second
	d, _, _ := newTestDispatcher(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.Generate(ctx, "x", GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, b.callCount())
}

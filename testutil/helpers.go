// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	stack := testutil.NewProviderStack(t, mocks.NewSuccessProvider("openai", "ok"))
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/llm"
	"github.com/BaSui01/stepflow/llm/observability"
	"github.com/BaSui01/stepflow/testutil/mocks"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// TestLogger 返回输出到 t.Log 的 logger
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// =============================================================================
// 🔧 组件装配
// =============================================================================

// ProviderStack 是测试用的 Provider 注册表、记录器与调度器组合
type ProviderStack struct {
	Registry   *llm.ProviderRegistry
	Recorder   *observability.Recorder
	Dispatcher *llm.Dispatcher
}

// NewProviderStack 按顺序注册 mock providers（ID 取 Provider 名称）
func NewProviderStack(t *testing.T, providers ...*mocks.MockProvider) *ProviderStack {
	t.Helper()
	reg := llm.NewProviderRegistry()
	for _, p := range providers {
		if err := reg.Register(llm.ProviderConfig{ID: p.Name(), Model: p.Name() + "-model"}, p); err != nil {
			t.Fatalf("register provider %s: %v", p.Name(), err)
		}
	}
	logger := TestLogger(t)
	rec := observability.NewRecorder(observability.RecorderConfig{}, nil, logger)
	return &ProviderStack{
		Registry:   reg,
		Recorder:   rec,
		Dispatcher: llm.NewDispatcher(reg, rec, logger),
	}
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition not met within %v", timeout)
	}
}

// WaitFor 等待条件满足
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// MustJSON 序列化为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

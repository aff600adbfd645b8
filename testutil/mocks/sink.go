package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/notify"
)

// MockSink 是 notify.Sink 的模拟实现，记录收到的消息
type MockSink struct {
	mu       sync.Mutex
	name     string
	err      error
	rejected bool
	messages []notify.Message
}

// NewMockSink 创建新的 MockSink
func NewMockSink(name string) *MockSink {
	if name == "" {
		name = "mock"
	}
	return &MockSink{name: name}
}

// WithError 设置发送错误
func (s *MockSink) WithError(err error) *MockSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// WithRejection 返回 Accepted=false 的确认
func (s *MockSink) WithRejection() *MockSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = true
	return s
}

func (s *MockSink) Name() string { return s.name }

func (s *MockSink) Send(_ context.Context, msg notify.Message) (*notify.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.messages = append(s.messages, msg)
	return &notify.Ack{MessageID: msg.ID, Sink: s.name, Accepted: !s.rejected, Timestamp: time.Now()}, nil
}

// Messages 返回收到的消息
func (s *MockSink) Messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

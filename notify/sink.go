package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/stepflow/types"
	"github.com/google/uuid"
)

// Message 是发往通知渠道的负载
type Message struct {
	ID         string            `json:"id"`
	Channel    string            `json:"channel,omitempty"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Step       string            `json:"step,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Ack 是通知渠道的确认
type Ack struct {
	MessageID string    `json:"message_id"`
	Sink      string    `json:"sink"`
	Accepted  bool      `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink 是通知渠道能力
type Sink interface {
	Send(ctx context.Context, msg Message) (*Ack, error)
	Name() string
}

// NewMessage 创建带 ID 与时间戳的消息
func NewMessage(body string) Message {
	return Message{
		ID:        uuid.NewString(),
		Body:      body,
		CreatedAt: time.Now(),
	}
}

// Registry 按名称管理 Sink，并支持默认 Sink
type Registry struct {
	mu          sync.RWMutex
	sinks       map[string]Sink
	defaultSink string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Register 注册 Sink；第一个注册的 Sink 成为默认
func (r *Registry) Register(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[s.Name()] = s
	if r.defaultSink == "" {
		r.defaultSink = s.Name()
	}
}

// SetDefault 设置默认 Sink
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[name]; !ok {
		return fmt.Errorf("sink %q not registered", name)
	}
	r.defaultSink = name
	return nil
}

// Resolve 返回指定名称的 Sink；name 为空时返回默认
func (r *Registry) Resolve(name string) (Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultSink
	}
	s, ok := r.sinks[name]
	if !ok {
		if name == "" {
			return nil, types.NewError(types.ErrNotificationSinkAbsent, "no notification sink configured")
		}
		return nil, types.Errorf(types.ErrNotificationSinkAbsent, "notification sink %q not found", name)
	}
	return s, nil
}

// Names 返回已注册的 Sink 名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sinks))
	for n := range r.sinks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

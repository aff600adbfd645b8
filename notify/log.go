package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogSink 将通知写入结构化日志，总是接受
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.With(zap.String("component", "notify_log"))}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, msg Message) (*Ack, error) {
	s.logger.Info("notification",
		zap.String("message_id", msg.ID),
		zap.String("channel", msg.Channel),
		zap.String("workflow_id", msg.WorkflowID),
		zap.String("step", msg.Step),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return &Ack{MessageID: msg.ID, Sink: s.Name(), Accepted: true, Timestamp: time.Now()}, nil
}

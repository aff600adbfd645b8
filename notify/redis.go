package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/stepflow/internal/tlsutil"
	"github.com/BaSui01/stepflow/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr         string `yaml:"addr" json:"addr"`
	Password     string `yaml:"password" json:"password"`
	DB           int    `yaml:"db" json:"db"`
	PoolSize     int    `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
	TLS          bool   `yaml:"tls" json:"tls"`
}

// NewRedisClient 根据配置创建客户端并检查连通性
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
	}
	if cfg.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisSink 将通知 PUBLISH 到频道，并在列表中保留最近 historySize 条
type RedisSink struct {
	client      redis.Cmdable
	channel     string
	historyKey  string
	historySize int64
	logger      *zap.Logger
}

// RedisSinkOption configures a RedisSink.
type RedisSinkOption func(*RedisSink)

// WithHistory 保留最近 size 条通知到 key 指向的列表
func WithHistory(key string, size int64) RedisSinkOption {
	return func(s *RedisSink) {
		s.historyKey = key
		s.historySize = size
	}
}

func NewRedisSink(client redis.Cmdable, channel string, logger *zap.Logger, opts ...RedisSinkOption) *RedisSink {
	if channel == "" {
		channel = "stepflow:notifications"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RedisSink{
		client:  client,
		channel: channel,
		logger:  logger.With(zap.String("component", "notify_redis")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSink) Name() string { return "redis" }

// Send 发布消息；msg.Channel 非空时覆盖默认频道
func (s *RedisSink) Send(ctx context.Context, msg Message) (*Ack, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	channel := s.channel
	if msg.Channel != "" {
		channel = msg.Channel
	}

	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return nil, types.NewError(types.ErrNotificationRejected, "redis publish failed").
			WithCause(err).WithRetryable(true)
	}

	if s.historyKey != "" && s.historySize > 0 {
		pipe := s.client.TxPipeline()
		pipe.LPush(ctx, s.historyKey, payload)
		pipe.LTrim(ctx, s.historyKey, 0, s.historySize-1)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Warn("store notification history failed", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	return &Ack{MessageID: msg.ID, Sink: s.Name(), Accepted: true, Timestamp: time.Now()}, nil
}

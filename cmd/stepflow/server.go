package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/stepflow/api/handlers"
	"github.com/BaSui01/stepflow/config"
	"github.com/BaSui01/stepflow/internal/metrics"
	"github.com/BaSui01/stepflow/internal/server"
	"github.com/BaSui01/stepflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 stepflow 的主服务：API 服务器与独立的 Metrics 服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	rt        *runtime
	telemetry *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler   *handlers.HealthHandler
	metricsHandler  *handlers.MetricsHandler
	workflowHandler *handlers.WorkflowHandler

	collector *metrics.Collector
}

// NewServer 创建服务器实例，rt 与 collector 已由调用方装配
func NewServer(cfg *config.Config, rt *runtime, collector *metrics.Collector, tp *telemetry.Providers, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		rt:        rt,
		telemetry: tp,
		collector: collector,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动后台循环与 HTTP 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	s.initHandlers()
	s.rt.start(ctx)
	go s.rt.reportHealth(ctx)

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("providers", s.rt.providers.Len()),
		zap.Int("templates", len(s.rt.engine.Templates())),
	)
	return nil
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.rt.health, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewProviderCheck(s.rt.providers, s.rt.monitor))
	if db := s.rt.db; db != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("database", false, db.Ping))
	}
	if client := s.rt.redis; client != nil {
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("redis", false, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}

	s.metricsHandler = handlers.NewMetricsHandler(s.rt.recorder, s.logger)
	s.workflowHandler = handlers.NewWorkflowHandler(s.rt.engine, s.logger).
		WithRunTimeout(s.cfg.Workflow.RunTimeout)
}

// routes 注册全部 API 路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("GET /v1/metrics/summary", s.metricsHandler.HandleSummary)
	mux.HandleFunc("GET /v1/metrics/calls", s.metricsHandler.HandleCalls)

	mux.HandleFunc("GET /v1/templates", s.workflowHandler.HandleTemplates)
	mux.HandleFunc("POST /v1/templates/{id}/run", s.workflowHandler.HandleRun)
	mux.HandleFunc("GET /v1/instances", s.workflowHandler.HandleRunning)
	mux.HandleFunc("GET /v1/instances/{id}", s.workflowHandler.HandleInstance)

	// 未配置独立 Metrics 端口时挂在 API 服务器上
	if s.cfg.Server.MetricsPort <= 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.telemetry.Tracer("github.com/BaSui01/stepflow/http")),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	)

	s.httpManager = server.NewManager("api", handler, server.FromServerConfig(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cfg := server.FromServerConfig(s.cfg.Server, s.cfg.Server.MetricsPort)
	// Metrics 端口只走明文
	cfg.TLSCertFile, cfg.TLSKeyFile = "", ""

	s.metricsManager = server.NewManager("metrics", mux, cfg, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到 ctx 结束或任一服务器异常退出，然后优雅关闭全部组件
func (s *Server) Wait(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if s.metricsManager != nil {
		go func() {
			select {
			case err := <-s.metricsManager.Errors():
				cancel(fmt.Errorf("metrics server: %w", err))
			case <-ctx.Done():
			}
		}()
	}

	err := s.httpManager.Wait(ctx)
	if cause := context.Cause(ctx); err == nil && cause != nil && !errors.Is(cause, context.Canceled) {
		err = cause
	}
	s.shutdown(context.WithoutCancel(ctx))
	return err
}

func (s *Server) shutdown(ctx context.Context) {
	s.logger.Info("starting graceful shutdown")

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	s.rt.close(ctx)
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}

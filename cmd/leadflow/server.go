package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/technosurge/leadflow/internal/server"
	"github.com/technosurge/leadflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 管理 API 监听与可选的 metrics 监听
type Server struct {
	rt        *Runtime
	app       *App
	telemetry *telemetry.Providers
	logger    *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器，不会立即监听
func NewServer(rt *Runtime, app *App, otelProviders *telemetry.Providers) *Server {
	return &Server{
		rt:        rt,
		app:       app,
		telemetry: otelProviders,
		logger:    rt.Logger,
	}
}

// Handler 返回套好中间件链的 API handler
func (s *Server) Handler(ctx context.Context) http.Handler {
	sc := s.rt.Config.Server
	return Chain(s.app.Handler,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		MetricsMiddleware(s.rt.Metrics),
		RequestLogger(s.logger),
		CORS(sc.CORSAllowedOrigins),
		RateLimiter(ctx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger),
	)
}

// Start 绑定端口。API 端口绑定失败时同步返回错误。
func (s *Server) Start() error {
	sc := s.rt.Config.Server

	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	s.httpManager = server.NewManager(s.Handler(rateLimiterCtx), server.FromServerConfig(sc), s.logger)
	if err := s.httpManager.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if sc.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.rt.Registry, promhttp.HandlerOpts{}))
		s.metricsManager = server.NewManager(mux, server.MetricsConfig(sc), s.logger)
		if err := s.metricsManager.Start(); err != nil {
			s.Shutdown()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("server started",
		zap.String("addr", s.httpManager.BoundAddr()),
		zap.Int("metrics_port", sc.MetricsPort),
	)
	return nil
}

// WaitForShutdown 阻塞到 SIGINT/SIGTERM 或监听异常退出，然后关闭全部资源
func (s *Server) WaitForShutdown() error {
	var err error
	if s.httpManager != nil {
		err = s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
	return err
}

// Shutdown 优雅关闭，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if err := s.app.Close(); err != nil {
		s.logger.Error("failed to release app resources", zap.Error(err))
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("graceful shutdown completed")
}

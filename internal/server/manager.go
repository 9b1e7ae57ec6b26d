package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/technosurge/leadflow/config"
	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 监听管理
// =============================================================================

// Manager 管理一个 http.Server 的监听、运行与优雅关闭。
// 主 API 与独立的 metrics 端口各用一个 Manager。
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Config 监听参数
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
	// Name 仅用于日志区分 api / metrics
	Name string
}

// DefaultConfig 返回 0.0.0.0:8000 上的默认监听参数
func DefaultConfig() Config {
	return Config{
		Addr:            "0.0.0.0:8000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
		Name:            "api",
	}
}

// FromServerConfig 把应用配置转换成监听参数。
// WriteTimeout 要覆盖一次完整的 LLM 往返，websocket 连接由 handler 自己控制超时。
func FromServerConfig(sc config.ServerConfig) Config {
	cfg := DefaultConfig()
	cfg.Addr = sc.Addr()
	if sc.ReadTimeout > 0 {
		cfg.ReadTimeout = sc.ReadTimeout
	}
	if sc.WriteTimeout > 0 {
		cfg.WriteTimeout = sc.WriteTimeout
	}
	if sc.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = sc.ShutdownTimeout
	}
	return cfg
}

// MetricsConfig 返回独立 metrics 端口的监听参数
func MetricsConfig(sc config.ServerConfig) Config {
	cfg := FromServerConfig(sc)
	cfg.Addr = fmt.Sprintf("%s:%d", sc.Host, sc.MetricsPort)
	cfg.Name = "metrics"
	return cfg
}

// NewManager 创建管理器，不会立即监听
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Name == "" {
		cfg.Name = "api"
	}
	return &Manager{
		server: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		config: cfg,
		logger: logger.With(zap.String("component", "listener"), zap.String("listener", cfg.Name)),
	}
}

// Start 绑定端口并在后台开始服务。端口冲突等错误同步返回。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("server is closed")
	}
	if m.listener != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go m.serve(ln)
	return nil
}

func (m *Manager) serve(ln net.Listener) {
	if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("serve failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 停止接收新连接并等待在途请求完成，可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	m.listener = nil
	m.logger.Info("stopped")
	return nil
}

// Run 阻塞直到 ctx 结束或服务异常退出，然后执行优雅关闭。
// 异常退出时返回该错误。
func (m *Manager) Run(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(serveErr))
	}
	if err := m.Shutdown(context.WithoutCancel(ctx)); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// WaitForShutdown 阻塞到 SIGINT/SIGTERM 后关闭
func (m *Manager) WaitForShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return m.Run(ctx)
}

// Errors 返回后台服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// BoundAddr 返回实际绑定的地址，端口配置为 0 时可用于拿到随机端口
func (m *Manager) BoundAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 未关闭即视为运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

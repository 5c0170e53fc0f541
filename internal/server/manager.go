package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BaSui01/wonderland/internal/tlsutil"
	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager HTTP 服务器管理器。
// 所有请求的 context 派生自 Manager 的基础 context；优雅关闭超时后
// 基础 context 被取消，进行中的流式生成随之以 CANCELED 结束。
type Manager struct {
	server     *http.Server
	listener   net.Listener
	errCh      chan error
	config     Config
	logger     *zap.Logger
	baseCancel context.CancelFunc
	mu         sync.RWMutex
	closed     bool
}

// Config 服务器配置
type Config struct {
	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时，需覆盖最长的流式响应
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 15 * time.Second,
	}
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	baseCtx, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:           config.Addr,
		Handler:        handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
		TLSConfig:      tlsutil.DefaultTLSConfig(),
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
	}

	return &Manager{
		server:     server,
		errCh:      make(chan error, 1),
		config:     config,
		logger:     logger.With(zap.String("component", "http_server")),
		baseCancel: cancel,
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 启动服务器（非阻塞）
func (m *Manager) Start() error {
	listener, err := m.listen()
	if err != nil {
		return err
	}
	m.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))
	go m.serve(func() error { return m.server.Serve(listener) })
	return nil
}

// StartTLS 启动 HTTPS 服务器（非阻塞），使用 tlsutil 的加固配置
func (m *Manager) StartTLS(certFile, keyFile string) error {
	listener, err := m.listen()
	if err != nil {
		return err
	}
	m.logger.Info("starting HTTPS server",
		zap.String("addr", listener.Addr().String()),
		zap.String("cert", certFile),
	)
	go m.serve(func() error { return m.server.ServeTLS(listener, certFile, keyFile) })
	return nil
}

func (m *Manager) listen() (net.Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("server is closed")
	}
	if m.listener != nil {
		return nil, fmt.Errorf("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	return listener, nil
}

func (m *Manager) serve(run func() error) {
	if err := run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("HTTP server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭服务器。
// 超时仍未结束的请求会被取消并强制关闭连接。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	m.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	err := m.server.Shutdown(shutdownCtx)
	m.baseCancel()
	if err != nil {
		m.logger.Warn("graceful shutdown timed out, closing active connections", zap.Error(err))
		if closeErr := m.server.Close(); closeErr != nil {
			m.logger.Error("HTTP server close failed", zap.Error(closeErr))
		}
		return err
	}

	m.listener = nil
	m.logger.Info("HTTP server stopped")
	return nil
}

// WaitForShutdown 等待关闭信号或服务异常退出
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors returns asynchronous server errors.
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

// ListenAddr 返回实际监听地址，未启动时为空
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 检查服务器是否运行中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

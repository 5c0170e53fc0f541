package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/wonderland/api/handlers"
	"github.com/BaSui01/wonderland/config"
	"github.com/BaSui01/wonderland/internal/metrics"
	"github.com/BaSui01/wonderland/internal/server"
	"github.com/BaSui01/wonderland/internal/telemetry"
	"github.com/BaSui01/wonderland/internal/tlsutil"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/aiservice"
	"github.com/BaSui01/wonderland/llm/factory"
	"github.com/BaSui01/wonderland/llm/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// skipAuthPaths 不需要鉴权的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Wonderland 的主服务器
type Server struct {
	cfg      *config.Config
	loader   *config.Loader
	logger   *zap.Logger
	logLevel zap.AtomicLevel
	otel     *telemetry.Providers

	// httpClient 为空时使用 aiservice 默认的安全客户端
	httpClient *http.Client

	registry  *prometheus.Registry
	collector *metrics.Collector
	prices    *observability.CostCalculator
	service   *aiservice.Service

	// Handlers
	healthHandler   *handlers.HealthHandler
	generateHandler *handlers.GenerateHandler
	settingsHandler *handlers.SettingsHandler

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	hotReloadManager *config.HotReloadManager

	// 限流器清理 goroutine 的生命周期
	bgCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, loader *config.Loader, logger *zap.Logger, level zap.AtomicLevel, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:      cfg,
		loader:   loader,
		logger:   logger,
		logLevel: level,
		otel:     otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	handler, err := s.build()
	if err != nil {
		return err
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(handler); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.hotReloadManager != nil),
		zap.Bool("auth_enabled", s.cfg.Auth.AuthEnabled()),
	)
	return nil
}

// build 创建指标、生成服务与 handlers，返回完整的中间件链
func (s *Server) build() (http.Handler, error) {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWith("wonderland", s.registry, s.logger)

	otelMetrics, err := observability.NewMetricsWith(s.otel.MeterProvider(), s.otel.TracerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to init generation metrics: %w", err)
	}

	s.prices = observability.NewCostCalculator()
	s.prices.UpdatePrices(s.cfg.Pricing)

	s.service, err = newService(s.cfg, s.logger, func(o *aiservice.Options) {
		o.Metrics = otelMetrics
		o.Collector = s.collector
		o.Costs = observability.NewCostTracker(s.prices)
		if s.httpClient != nil {
			o.HTTPClient = s.httpClient
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generation service: %w", err)
	}

	network := s.cfg.Network.Profile()
	s.healthHandler = handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewSettingsCheck(s.service.Settings, network))
	s.generateHandler = handlers.NewGenerateHandler(s.service, s.cfg.AI.BatchConcurrency, s.logger)
	s.settingsHandler = handlers.NewSettingsHandler(s.service, network, s.logger)

	return s.buildHandler(), nil
}

// newService 按配置创建生成服务，serve 与 CLI 子命令共用
func newService(cfg *config.Config, logger *zap.Logger, mutate ...func(*aiservice.Options)) (*aiservice.Service, error) {
	client, err := tlsutil.NewProviderClient(cfg.Network.ClientOptions())
	if err != nil {
		return nil, err
	}
	network := cfg.Network.Profile()
	policy := cfg.Retry.Policy()
	opts := aiservice.Options{
		HTTPClient:     client,
		Network:        &network,
		Retry:          &policy,
		RequestTimeout: cfg.AI.RequestTimeout,
		RateLimit:      rate.Limit(cfg.AI.RateLimitRPS),
		RateBurst:      cfg.AI.RateLimitBurst,
		Logger:         logger,
	}
	if cfg.AI.OpenAIOrganization != "" {
		opts.AdapterOptions = append(opts.AdapterOptions, factory.WithOpenAIOrganization(cfg.AI.OpenAIOrganization))
	}
	for _, m := range mutate {
		m(&opts)
	}
	return aiservice.New(cfg.AI.Settings(), opts), nil
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleLive)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleLive)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion)

	// 生成
	mux.HandleFunc("POST /v1/generate", s.generateHandler.HandleGenerate)
	mux.HandleFunc("POST /v1/generate/stream", s.generateHandler.HandleStream)
	mux.HandleFunc("POST /v1/generate/batch", s.generateHandler.HandleBatch)
	mux.HandleFunc("POST /v1/connection/test", s.generateHandler.HandleConnectionTest)

	// 设置
	mux.HandleFunc("GET /v1/settings", s.settingsHandler.HandleGetSettings)
	mux.HandleFunc("PUT /v1/settings", s.settingsHandler.HandleUpdateSettings)
	mux.HandleFunc("GET /v1/providers", s.settingsHandler.HandleProviders)
	mux.HandleFunc("GET /v1/usage", s.settingsHandler.HandleUsage)

	return mux
}

func (s *Server) buildHandler() http.Handler {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	return Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.otel.TracerProvider()),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		Authenticate(s.cfg.Auth, skipAuthPaths, s.logger),
	)
}

// =============================================================================
// 🔄 热更新
// =============================================================================

// initHotReloadManager 在启用热更新且指定了配置文件时监听文件变更
func (s *Server) initHotReloadManager() error {
	if !s.cfg.Server.HotReload || s.loader == nil || s.loader.ConfigPath() == "" {
		return nil
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, s.loader, config.WithHotReloadLogger(s.logger))
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		if change.RequiresRestart {
			s.logger.Warn("Configuration change requires restart", zap.String("path", change.Path))
		}
	})
	s.hotReloadManager.OnReload(s.applyReload)

	return s.hotReloadManager.Start(context.Background())
}

// applyReload 把文件中可热更新的部分下发到运行中的组件。
// 通过设置接口做过的修改只在文件的 ai 段本身变化时才被覆盖。
func (s *Server) applyReload(oldConfig, newConfig *config.Config) error {
	if next := newConfig.AI.Settings(); next != oldConfig.AI.Settings() {
		if _, err := llm.ParseProvider(newConfig.AI.Provider); err != nil {
			return err
		}
		s.service.UpdateSettings(next)
	}
	if next := newConfig.Retry.Policy(); next.MaxRetries != oldConfig.Retry.MaxRetries ||
		next.BaseDelay != oldConfig.Retry.BaseDelay || next.MaxDelay != oldConfig.Retry.MaxDelay {
		s.service.UpdateRetryPolicy(next)
	}
	if len(newConfig.Pricing) > 0 {
		s.prices.UpdatePrices(newConfig.Pricing)
	}
	if newConfig.Log.Level != oldConfig.Log.Level {
		s.logLevel.SetLevel(parseLevel(newConfig.Log.Level))
	}
	s.cfg = newConfig
	return nil
}

// =============================================================================
// 🌐 HTTP / Metrics 服务器
// =============================================================================

func (s *Server) startHTTPServer(handler http.Handler) error {
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if s.cfg.Server.TLSCertFile != "" {
		return s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// startMetricsServer 在独立端口暴露 /metrics，端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.bgCancel != nil {
		s.bgCancel()
	}

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	ctx := context.Background()
	if s.httpManager != nil && s.httpManager.IsRunning() {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil && s.metricsManager.IsRunning() {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.ShutdownTimeout(5 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

// parseLevel 解析日志级别，无法识别时为 info
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 存活 / 就绪 / 版本
// =============================================================================

// readyTimeout 就绪检查整体超时
const readyTimeout = 5 * time.Second

// BuildInfo 构建信息，由 ldflags 注入
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthCheck 就绪检查项
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus /health 与 /ready 的响应体
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy" | "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单项检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass" | "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// HealthHandler 服务存活与就绪状态
type HealthHandler struct {
	build   BuildInfo
	started time.Time
	logger  *zap.Logger

	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthHandler 创建处理器，started 记为当前时间
func NewHealthHandler(build BuildInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		build:   build,
		started: time.Now(),
		logger:  logger,
	}
}

// RegisterCheck 追加一项就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

func (h *HealthHandler) status(healthy bool) HealthStatus {
	s := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.build.Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	if !healthy {
		s.Status = "unhealthy"
	}
	return s
}

// HandleLive 存活检查（/health、/healthz），进程能响应即为 healthy
// @Summary 存活检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus
// @Router /health [get]
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.status(true))
}

// HandleReady 就绪检查（/ready、/readyz），任一检查失败返回 503
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	// 每项结果写入自己的槽位，无需加锁
	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = h.runCheck(ctx, check)
			return nil
		})
	}
	_ = g.Wait()

	healthy := true
	status := h.status(true)
	status.Checks = make(map[string]CheckResult, len(checks))
	for i, check := range checks {
		status.Checks[check.Name()] = results[i]
		if results[i].Status != "pass" {
			healthy = false
		}
	}

	if !healthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

func (h *HealthHandler) runCheck(ctx context.Context, check HealthCheck) CheckResult {
	start := time.Now()
	err := check.Check(ctx)
	latency := time.Since(start)

	result := CheckResult{Status: "pass", Latency: latency.String()}
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
		h.logger.Warn("readiness check failed",
			zap.String("check", check.Name()),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	}
	return result
}

// HandleVersion 返回构建信息
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} BuildInfo
// @Router /version [get]
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.build)
}

// =============================================================================
// 🔧 检查项
// =============================================================================

// FuncCheck 把函数包装为 HealthCheck
type FuncCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncCheck 创建函数检查项
func NewFuncCheck(name string, check func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, check: check}
}

func (c *FuncCheck) Name() string                    { return c.name }
func (c *FuncCheck) Check(ctx context.Context) error { return c.check(ctx) }

// NewSettingsCheck 校验当前生成设置，不发起网络请求。
// 缺少 API Key 时服务仍然存活，但不算就绪。
func NewSettingsCheck(current func() llm.Settings, network llm.NetworkProfile) *FuncCheck {
	return NewFuncCheck("settings", func(context.Context) error {
		return current().Validate(network)
	})
}

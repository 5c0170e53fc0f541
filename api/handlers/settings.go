package handlers

import (
	"net/http"

	"github.com/BaSui01/wonderland/api"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/observability"
	"go.uber.org/zap"
)

// =============================================================================
// ⚙️ 设置 Handler
// =============================================================================

// SettingsStore 持有当前生成设置，*aiservice.Service 实现了它
type SettingsStore interface {
	Settings() llm.Settings
	UpdateSettings(settings llm.Settings)
	Usage() observability.CostSummary
}

// SettingsHandler 设置、Provider 目录与用量接口处理器
type SettingsHandler struct {
	store   SettingsStore
	network llm.NetworkProfile
	logger  *zap.Logger
}

// NewSettingsHandler 创建设置处理器
func NewSettingsHandler(store SettingsStore, network llm.NetworkProfile, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:   store,
		network: network,
		logger:  logger.With(zap.String("handler", "settings")),
	}
}

// HandleGetSettings 返回当前设置，不含 API Key
// @Summary 获取生成设置
// @Tags 设置
// @Produce json
// @Success 200 {object} Response{data=api.SettingsView} "当前设置"
// @Security ApiKeyAuth
// @Router /v1/settings [get]
func (h *SettingsHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.NewSettingsView(h.store.Settings()))
}

// HandleUpdateSettings 局部更新设置。
// 合并后的设置先校验，无效时不生效；进行中的调用继续使用旧设置。
// @Summary 更新生成设置
// @Tags 设置
// @Accept json
// @Produce json
// @Param request body api.SettingsUpdate true "要修改的字段"
// @Success 200 {object} Response{data=api.SettingsView} "更新后的设置"
// @Failure 400 {object} Response "无效设置"
// @Security ApiKeyAuth
// @Router /v1/settings [put]
func (h *SettingsHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var update api.SettingsUpdate
	if err := DecodeJSONBody(w, r, &update, h.logger); err != nil {
		return
	}
	if update.Temperature != nil && (*update.Temperature < 0 || *update.Temperature > 2) {
		WriteErrorMessage(w, ErrInvalidRequest, "temperature must be between 0 and 2", h.logger)
		return
	}

	next := update.Apply(h.store.Settings())
	if err := next.Validate(h.network); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.store.UpdateSettings(next)
	WriteSuccess(w, api.NewSettingsView(next))
}

// HandleProviders 返回 Provider 目录及其在当前宿主上是否可用
// @Summary Provider 列表
// @Tags 设置
// @Produce json
// @Success 200 {object} Response{data=[]api.ProviderInfo} "Provider 目录"
// @Security ApiKeyAuth
// @Router /v1/providers [get]
func (h *SettingsHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	profiles := llm.Profiles()
	out := make([]api.ProviderInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, api.ProviderInfo{
			ProviderProfile: p,
			DefaultModel:    p.DefaultModel(),
			Available:       !p.Loopback || h.network.AllowsLocalLoopback,
		})
	}
	WriteSuccess(w, out)
}

// HandleUsage 返回进程内累计的用量与估算成本
// @Summary 用量统计
// @Tags 设置
// @Produce json
// @Success 200 {object} Response{data=observability.CostSummary} "用量"
// @Security ApiKeyAuth
// @Router /v1/usage [get]
func (h *SettingsHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.store.Usage())
}

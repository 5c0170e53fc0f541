package api

import (
	"github.com/BaSui01/wonderland/llm"
)

// =============================================================================
// 生成类型
// =============================================================================

// GenerateRequest 表示一次生成请求。
// @Description 生成请求结构
type GenerateRequest struct {
	// 用户输入
	Prompt string `json:"prompt" example:"Write a haiku about tea" binding:"required"`
	// 系统提示词，可为空
	SystemPrompt string `json:"system_prompt,omitempty" example:"You are a poet."`
}

// GenerateResponse 表示一次非流式生成的结果。
// @Description 生成响应结构
type GenerateResponse struct {
	// 生成的文本，Provider 响应缺少文本时为空字符串
	Content string `json:"content"`
	// 实际使用的模型
	Model string `json:"model"`
	// Token 用量，Provider 未报告时省略
	Usage *llm.Usage `json:"usage,omitempty"`
}

// StreamChunk 是 SSE 流中的一个增量。
// @Description 流式增量
type StreamChunk struct {
	Content string `json:"content"`
}

// BatchRequest 批量生成请求，各项相互独立。
// @Description 批量生成请求
type BatchRequest struct {
	Items []GenerateRequest `json:"items" binding:"required"`
}

// BatchResponse 批量生成结果，顺序与请求一致。
// @Description 批量生成响应
type BatchResponse struct {
	Results []GenerateResponse `json:"results"`
}

// ConnectionTestResponse 连接测试结果。
// @Description 连接测试响应
type ConnectionTestResponse struct {
	Connected bool   `json:"connected"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// =============================================================================
// 设置类型
// =============================================================================

// SettingsView 是对外展示的设置，不包含 API Key 本身。
// @Description 当前生成设置
type SettingsView struct {
	Provider    string  `json:"provider"`
	Endpoint    string  `json:"endpoint,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	APIKeySet   bool    `json:"api_key_set"`
}

// SettingsUpdate 局部更新设置，未出现的字段保持不变。
// @Description 设置更新请求
type SettingsUpdate struct {
	Provider    *string  `json:"provider,omitempty"`
	APIKey      *string  `json:"api_key,omitempty"`
	Endpoint    *string  `json:"endpoint,omitempty"`
	Model       *string  `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ProviderInfo 描述一个 Provider 及其在当前宿主上是否可用。
// @Description Provider 信息
type ProviderInfo struct {
	llm.ProviderProfile
	DefaultModel string `json:"default_model,omitempty"`
	Available    bool   `json:"available"`
}

// NewGenerateResponse 从引擎结果构造响应
func NewGenerateResponse(resp *llm.Response) GenerateResponse {
	if resp == nil {
		return GenerateResponse{}
	}
	return GenerateResponse{
		Content: resp.Content,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}
}

// NewSettingsView 从设置构造展示视图
func NewSettingsView(s llm.Settings) SettingsView {
	return SettingsView{
		Provider:    string(s.Provider),
		Endpoint:    s.Endpoint,
		Model:       s.Model,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		APIKeySet:   s.APIKey != "",
	}
}

// Apply 把更新合并到 base 上，返回新的设置
func (u SettingsUpdate) Apply(base llm.Settings) llm.Settings {
	if u.Provider != nil {
		base.Provider = llm.ProviderID(*u.Provider)
		if id, err := llm.ParseProvider(*u.Provider); err == nil {
			base.Provider = id
		}
	}
	if u.APIKey != nil {
		base.APIKey = *u.APIKey
	}
	if u.Endpoint != nil {
		base.Endpoint = *u.Endpoint
	}
	if u.Model != nil {
		base.Model = *u.Model
	}
	if u.MaxTokens != nil {
		base.MaxTokens = *u.MaxTokens
	}
	if u.Temperature != nil {
		base.Temperature = *u.Temperature
	}
	return base
}

package openai

import (
	"net/http"
	"strings"

	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/providers/openaicompat"
)

// Adapter 实现 OpenAI Chat Completions 协议.
// 请求/解析逻辑由嵌入的 openaicompat.Adapter 处理，这里只固定 Provider 与认证 header.
type Adapter struct {
	*openaicompat.Adapter
	organization string
}

// Option 配置 OpenAI Adapter
type Option func(*Adapter)

// WithOrganization 设置 OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(a *Adapter) { a.organization = strings.TrimSpace(org) }
}

// New 创建新的 OpenAI Adapter 实例.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		Adapter: openaicompat.New(openaicompat.Config{Provider: llm.ProviderOpenAI}),
	}
	for _, opt := range opts {
		opt(a)
	}

	// OpenAI 总是发送 Bearer，即使 key 为空也交给上游返回 401
	a.SetBuildHeaders(func(h http.Header, apiKey string) {
		h.Set("Authorization", "Bearer "+apiKey)
		if a.organization != "" {
			h.Set("OpenAI-Organization", a.organization)
		}
	})
	return a
}

var _ llm.Adapter = (*Adapter)(nil)

package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/wonderland/llm"
)

// OpenAI 兼容 API 通用类型
// 被 openai 与 custom（OpenAI 兼容端点）两个 Adapter 共用.

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式.
type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []OpenAICompatMessage `json:"messages"`
	MaxTokens   int                   `json:"max_tokens"`
	Temperature float64               `json:"temperature"`
	Stream      bool                  `json:"stream"`
}

// ChatMessages 构建 system + user 两条消息.
func ChatMessages(prompt, systemPrompt string) []OpenAICompatMessage {
	return []OpenAICompatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}
}

// JSONHeaders 返回只含 Content-Type 的 header.
func JSONHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}

// BearerTokenHeaders 在 apiKey 非空时写入标准 Bearer 认证 header.
func BearerTokenHeaders(h http.Header, apiKey string) {
	if key := strings.TrimSpace(apiKey); key != "" {
		h.Set("Authorization", "Bearer "+key)
	}
}

// MarshalRequest 序列化请求体并组装 llm.Request.
func MarshalRequest(endpoint string, header http.Header, body any) (*llm.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrUnknown, Message: "failed to encode request body", Cause: err}
	}
	return &llm.Request{Endpoint: endpoint, Header: header, Body: data}, nil
}

// SafeCloseBody 安全关闭 HTTP 响应体并忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

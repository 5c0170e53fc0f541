package anthropic

import (
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/providers"
	"github.com/tidwall/gjson"
)

// APIVersion 是发送给 Messages API 的 anthropic-version header.
const APIVersion = "2023-06-01"

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// Adapter 实现 Anthropic Messages API（/v1/messages）协议.
// 与 OpenAI 格式不同：system 单独传递，认证使用 x-api-key.
type Adapter struct{}

// New 创建 Anthropic Adapter.
func New() *Adapter { return &Adapter{} }

var _ llm.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() llm.ProviderID { return llm.ProviderAnthropic }

// BuildRequest 构建 Messages API 请求；endpoint 固定为官方地址.
func (a *Adapter) BuildRequest(prompt, systemPrompt string, stream bool, s llm.Settings) (*llm.Request, error) {
	h := providers.JSONHeaders()
	h.Set("x-api-key", s.APIKey)
	h.Set("anthropic-version", APIVersion)

	body := messagesRequest{
		Model:       s.Model,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: prompt}},
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		Stream:      stream,
	}
	return providers.MarshalRequest(s.ResolvedEndpoint(), h, body)
}

// ParseResponse 读取 content[0].text 与 input/output token 用量.
func (a *Adapter) ParseResponse(body []byte) llm.Response {
	r := gjson.ParseBytes(body)
	resp := llm.Response{
		Content: r.Get("content.0.text").String(),
		Model:   r.Get("model").String(),
	}
	if u := r.Get("usage"); u.IsObject() {
		resp.Usage = &llm.Usage{
			PromptTokens:     int(u.Get("input_tokens").Int()),
			CompletionTokens: int(u.Get("output_tokens").Int()),
		}
	}
	return resp
}

// ParseStreamLine 处理 SSE 数据行；"event:" 行与 ping、message_start 等事件不产生 chunk.
func (a *Adapter) ParseStreamLine(line string) (llm.StreamChunk, bool) {
	payload, done, ok := providers.StreamPayload(line)
	if !ok {
		return llm.StreamChunk{}, false
	}
	if done {
		return llm.StreamChunk{Done: true}, true
	}
	switch gjson.Get(payload, "type").String() {
	case "content_block_delta":
		return llm.StreamChunk{Content: gjson.Get(payload, "delta.text").String()}, true
	case "message_stop":
		return llm.StreamChunk{Done: true}, true
	default:
		return llm.StreamChunk{}, false
	}
}

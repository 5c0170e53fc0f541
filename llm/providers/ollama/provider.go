package ollama

import (
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/providers"
	"github.com/tidwall/gjson"
)

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string                          `json:"model"`
	Messages []providers.OpenAICompatMessage `json:"messages"`
	Stream   bool                            `json:"stream"`
	Options  chatOptions                     `json:"options"`
}

// Adapter 实现本地 Ollama /api/chat 协议，无需认证.
// 流式响应是每行一个 JSON 对象（NDJSON）.
type Adapter struct{}

// New 创建 Ollama Adapter.
func New() *Adapter { return &Adapter{} }

var _ llm.Adapter = (*Adapter)(nil)

func (a *Adapter) Provider() llm.ProviderID { return llm.ProviderOllama }

// BuildRequest 构建 /api/chat 请求；max tokens 映射到 options.num_predict.
func (a *Adapter) BuildRequest(prompt, systemPrompt string, stream bool, s llm.Settings) (*llm.Request, error) {
	body := chatRequest{
		Model:    s.Model,
		Messages: providers.ChatMessages(prompt, systemPrompt),
		Stream:   stream,
		Options: chatOptions{
			Temperature: s.Temperature,
			NumPredict:  s.MaxTokens,
		},
	}
	return providers.MarshalRequest(s.ResolvedEndpoint(), providers.JSONHeaders(), body)
}

// ParseResponse 读取 message.content；prompt_eval_count / eval_count 存在时填充用量.
func (a *Adapter) ParseResponse(body []byte) llm.Response {
	r := gjson.ParseBytes(body)
	resp := llm.Response{
		Content: r.Get("message.content").String(),
		Model:   r.Get("model").String(),
	}
	prompt, eval := r.Get("prompt_eval_count"), r.Get("eval_count")
	if prompt.Exists() || eval.Exists() {
		resp.Usage = &llm.Usage{
			PromptTokens:     int(prompt.Int()),
			CompletionTokens: int(eval.Int()),
		}
	}
	return resp
}

// ParseStreamLine 每行一个 JSON 对象：message.content 为增量，done=true 表示结束.
func (a *Adapter) ParseStreamLine(line string) (llm.StreamChunk, bool) {
	payload, done, ok := providers.StreamPayload(line)
	if !ok {
		return llm.StreamChunk{}, false
	}
	if done {
		return llm.StreamChunk{Done: true}, true
	}
	return llm.StreamChunk{
		Content: gjson.Get(payload, "message.content").String(),
		Done:    gjson.Get(payload, "done").Bool(),
	}, true
}

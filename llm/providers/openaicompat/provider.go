// =============================================================================
// Wonderland OpenAI-Compatible Adapter Base
// =============================================================================
// Shared implementation for the OpenAI chat completions wire format.
// The openai adapter embeds this; custom endpoints use it directly.
// =============================================================================

package openaicompat

import (
	"net/http"

	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/providers"
	"github.com/tidwall/gjson"
)

// Config holds the configuration for an OpenAI-compatible adapter.
type Config struct {
	// Provider is the provider id reported in errors and metrics.
	Provider llm.ProviderID

	// BuildHeaders is an optional function to set auth headers on each request.
	// If nil, "Authorization: Bearer <apiKey>" is sent when the key is non-empty.
	BuildHeaders func(h http.Header, apiKey string)

	// RequestHook is an optional function to modify the request body before encoding.
	RequestHook func(s llm.Settings, body *providers.OpenAICompatRequest)
}

// Adapter is the base implementation of the OpenAI chat completions protocol.
type Adapter struct {
	Cfg Config
}

// New creates a new OpenAI-compatible adapter with the given config.
func New(cfg Config) *Adapter {
	if cfg.Provider == "" {
		cfg.Provider = llm.ProviderCustom
	}
	return &Adapter{Cfg: cfg}
}

var _ llm.Adapter = (*Adapter)(nil)

// Provider returns the provider id.
func (a *Adapter) Provider() llm.ProviderID { return a.Cfg.Provider }

// SetBuildHeaders sets custom header builder for the adapter.
func (a *Adapter) SetBuildHeaders(fn func(h http.Header, apiKey string)) {
	a.Cfg.BuildHeaders = fn
}

func (a *Adapter) buildHeaders(apiKey string) http.Header {
	h := providers.JSONHeaders()
	if a.Cfg.BuildHeaders != nil {
		a.Cfg.BuildHeaders(h, apiKey)
		return h
	}
	providers.BearerTokenHeaders(h, apiKey)
	return h
}

// BuildRequest builds a chat completions request.
func (a *Adapter) BuildRequest(prompt, systemPrompt string, stream bool, s llm.Settings) (*llm.Request, error) {
	endpoint := s.ResolvedEndpoint()
	if endpoint == "" {
		return nil, llm.ConfigError("endpoint is required for provider %s", a.Cfg.Provider)
	}

	body := providers.OpenAICompatRequest{
		Model:       s.Model,
		Messages:    providers.ChatMessages(prompt, systemPrompt),
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
		Stream:      stream,
	}
	if a.Cfg.RequestHook != nil {
		a.Cfg.RequestHook(s, &body)
	}
	return providers.MarshalRequest(endpoint, a.buildHeaders(s.APIKey), body)
}

// ParseResponse extracts choices[0].message.content and usage.
func (a *Adapter) ParseResponse(body []byte) llm.Response {
	r := gjson.ParseBytes(body)
	resp := llm.Response{
		Content: r.Get("choices.0.message.content").String(),
		Model:   r.Get("model").String(),
	}
	if u := r.Get("usage"); u.IsObject() {
		resp.Usage = &llm.Usage{
			PromptTokens:     int(u.Get("prompt_tokens").Int()),
			CompletionTokens: int(u.Get("completion_tokens").Int()),
		}
	}
	return resp
}

// ParseStreamLine decodes one SSE line from a chat completions stream.
// Events without choices (e.g. the trailing usage event) produce nothing.
func (a *Adapter) ParseStreamLine(line string) (llm.StreamChunk, bool) {
	payload, done, ok := providers.StreamPayload(line)
	if !ok {
		return llm.StreamChunk{}, false
	}
	if done {
		return llm.StreamChunk{Done: true}, true
	}

	choices := gjson.Get(payload, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return llm.StreamChunk{}, false
	}
	first := choices.Get("0")
	if first.Get("finish_reason").String() == "stop" {
		return llm.StreamChunk{Done: true}, true
	}
	return llm.StreamChunk{Content: first.Get("delta.content").String()}, true
}

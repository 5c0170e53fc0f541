package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/aiservice"
	"github.com/BaSui01/wonderland/llm/retry"
	"github.com/BaSui01/wonderland/testutil/fixtures"
	"github.com/BaSui01/wonderland/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// =============================================================================
// 🔧 测试辅助
// =============================================================================

func testSettings() llm.Settings {
	s := llm.DefaultSettings()
	s.APIKey = "sk-test"
	return s
}

func newServiceFor(p *mocks.MockProvider, maxRetries int) *aiservice.Service {
	return aiservice.New(testSettings(), aiservice.Options{
		HTTPClient: p.Client(),
		Retry:      &retry.Policy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Logger:     zap.NewNop(),
	})
}

func jsonRequest(method, path, body string) *http.Request {
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// stubGenerator 直接按脚本回放片段和错误，用于覆盖真实 Provider 难以构造的时序
type stubGenerator struct {
	chunks []string
	err    error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt, systemPrompt string) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: strings.Join(s.chunks, ""), Model: "stub"}, nil
}

func (s *stubGenerator) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk func(string), onComplete func()) error {
	for _, c := range s.chunks {
		onChunk(c)
	}
	if s.err != nil {
		return s.err
	}
	onComplete()
	return nil
}

func (s *stubGenerator) GenerateAll(ctx context.Context, prompts []aiservice.Prompt, limit int) ([]*llm.Response, error) {
	return nil, s.err
}

func (s *stubGenerator) TestConnection(ctx context.Context) (bool, error) {
	return s.err == nil, s.err
}

func (s *stubGenerator) Settings() llm.Settings {
	return testSettings()
}

// noFlushWriter 不实现 http.Flusher
type noFlushWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (w *noFlushWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *noFlushWriter) Write(b []byte) (int, error) { return w.body.Write(b) }
func (w *noFlushWriter) WriteHeader(code int)        { w.code = code }

// =============================================================================
// 🧪 HandleGenerate
// =============================================================================

func TestGenerateHandler_HandleGenerate(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse(fixtures.OpenAIResponseWithUsage("Hello tea", 12, 3)).Start(t)
	h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGenerate(w, jsonRequest(http.MethodPost, "/v1/generate", `{"prompt":"write","system_prompt":"be brief"}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.True(t, gjson.GetBytes(body, "success").Bool())
	assert.Equal(t, "Hello tea", gjson.GetBytes(body, "data.content").String())
	assert.Equal(t, "gpt-4o-mini", gjson.GetBytes(body, "data.model").String())
	assert.Equal(t, int64(12), gjson.GetBytes(body, "data.usage.prompt_tokens").Int())

	sent := p.LastCall().Body
	assert.Equal(t, "be brief", gjson.GetBytes(sent, "messages.0.content").String())
	assert.Equal(t, "write", gjson.GetBytes(sent, "messages.1.content").String())
}

func TestGenerateHandler_HandleGenerate_InvalidRequests(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"missing prompt", "application/json", `{"system_prompt":"x"}`},
		{"blank prompt", "application/json", `{"prompt":"   "}`},
		{"malformed json", "application/json", `{"prompt":`},
		{"wrong content type", "text/plain", `{"prompt":"hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mocks.NewMockProvider().Start(t)
			h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

			r := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			h.HandleGenerate(w, r)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_REQUEST", gjson.Get(w.Body.String(), "error.code").String())
			assert.Equal(t, 0, p.CallCount())
		})
	}
}

func TestGenerateHandler_HandleGenerate_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		reply      mocks.Reply
		wantStatus int
		wantCode   string
		retryAfter string
	}{
		{
			name:       "invalid api key",
			reply:      mocks.Reply{Status: http.StatusUnauthorized, Body: fixtures.OpenAIError("Incorrect API key provided", "invalid_api_key")},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_API_KEY",
		},
		{
			name: "rate limit carries retry-after",
			reply: mocks.Reply{
				Status: http.StatusTooManyRequests,
				Header: http.Header{"Retry-After": []string{"3"}},
				Body:   fixtures.OpenAIError("Rate limit reached for requests", "rate_limit_exceeded"),
			},
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMIT",
			retryAfter: "3",
		},
		{
			name:       "model not found",
			reply:      mocks.Reply{Status: http.StatusNotFound, Body: fixtures.OpenAIError("The model `gpt-x` does not exist", "model_not_found")},
			wantStatus: http.StatusNotFound,
			wantCode:   "MODEL_NOT_FOUND",
		},
		{
			name:       "server error",
			reply:      mocks.Reply{Status: http.StatusInternalServerError, Body: fixtures.OpenAIError("The server had an error", "server_error")},
			wantStatus: http.StatusBadGateway,
			wantCode:   "SERVER_ERROR",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mocks.NewMockProvider().WithReplies(tt.reply).Start(t)
			h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

			w := httptest.NewRecorder()
			h.HandleGenerate(w, jsonRequest(http.MethodPost, "/v1/generate", `{"prompt":"hi"}`))

			assert.Equal(t, tt.wantStatus, w.Code)
			body := w.Body.String()
			assert.False(t, gjson.Get(body, "success").Bool())
			assert.Equal(t, tt.wantCode, gjson.Get(body, "error.code").String())
			assert.NotEmpty(t, gjson.Get(body, "error.friendly_message").String())
			assert.Equal(t, "openai", gjson.Get(body, "error.provider").String())
			if tt.retryAfter != "" {
				assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestGenerateHandler_HandleGenerate_MissingAPIKey(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	s := testSettings()
	s.APIKey = ""
	svc := aiservice.New(s, aiservice.Options{HTTPClient: p.Client(), Logger: zap.NewNop()})
	h := NewGenerateHandler(svc, 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGenerate(w, jsonRequest(http.MethodPost, "/v1/generate", `{"prompt":"hi"}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "CONFIGURATION_ERROR", gjson.Get(w.Body.String(), "error.code").String())
	assert.Equal(t, 0, p.CallCount())
}

// =============================================================================
// 🌊 HandleStream
// =============================================================================

func TestGenerateHandler_HandleStream(t *testing.T) {
	p := mocks.NewMockProvider().WithStreamChunks(fixtures.OpenAIStream("Hel", "lo", " <b>\"tea\"</b>")).Start(t)
	h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleStream(w, jsonRequest(http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.True(t, w.Flushed)

	want := "data: {\"content\":\"Hel\"}\n\n" +
		"data: {\"content\":\"lo\"}\n\n" +
		"data: {\"content\":\" \\u003cb\\u003e\\\"tea\\\"\\u003c/b\\u003e\"}\n\n" +
		"data: [DONE]\n\n"
	assert.Equal(t, want, w.Body.String())
	assert.True(t, gjson.GetBytes(p.LastCall().Body, "stream").Bool())
}

func TestGenerateHandler_HandleStream_ErrorBeforeFirstChunk(t *testing.T) {
	p := mocks.NewMockProvider().
		WithStatus(http.StatusInternalServerError, fixtures.OpenAIError("The server had an error", "server_error")).
		Start(t)
	h := NewGenerateHandler(newServiceFor(p, 3), 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleStream(w, jsonRequest(http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "SERVER_ERROR", gjson.Get(w.Body.String(), "error.code").String())
	// 流式请求不重试
	assert.Equal(t, 1, p.CallCount())
}

func TestGenerateHandler_HandleStream_ErrorAfterStart(t *testing.T) {
	gen := &stubGenerator{
		chunks: []string{"partial"},
		err:    &llm.Error{Code: llm.ErrNetwork, Message: "connection reset", Retryable: true, Provider: "openai"},
	}
	h := NewGenerateHandler(gen, 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleStream(w, jsonRequest(http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "data: {\"content\":\"partial\"}\n\n"))
	assert.Contains(t, body, "event: error\ndata: ")
	assert.NotContains(t, body, "[DONE]")

	events := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, events, 2)
	payload := strings.TrimPrefix(events[1], "event: error\ndata: ")
	assert.Equal(t, "NETWORK_ERROR", gjson.Get(payload, "code").String())
	assert.True(t, gjson.Get(payload, "retryable").Bool())
}

func TestGenerateHandler_HandleStream_NoFlusher(t *testing.T) {
	h := NewGenerateHandler(&stubGenerator{chunks: []string{"x"}}, 0, zap.NewNop())

	w := &noFlushWriter{}
	h.HandleStream(w, jsonRequest(http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`))

	assert.Equal(t, http.StatusInternalServerError, w.code)
	assert.Equal(t, "INTERNAL_ERROR", gjson.Get(w.body.String(), "error.code").String())
}

func TestGenerateHandler_HandleStream_EmptyStreamStillCompletes(t *testing.T) {
	h := NewGenerateHandler(&stubGenerator{}, 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleStream(w, jsonRequest(http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "data: [DONE]\n\n", w.Body.String())
}

// =============================================================================
// 📦 HandleBatch
// =============================================================================

func TestGenerateHandler_HandleBatch(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse(fixtures.OpenAIResponse("same")).Start(t)
	h := NewGenerateHandler(newServiceFor(p, 0), 2, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleBatch(w, jsonRequest(http.MethodPost, "/v1/generate/batch",
		`{"items":[{"prompt":"a"},{"prompt":"b","system_prompt":"s"},{"prompt":"c"}]}`))

	require.Equal(t, http.StatusOK, w.Code)
	results := gjson.Get(w.Body.String(), "data.results").Array()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, "same", r.Get("content").String())
	}
	assert.Equal(t, 3, p.CallCount())
}

func TestGenerateHandler_HandleBatch_Invalid(t *testing.T) {
	var tooMany strings.Builder
	tooMany.WriteString(`{"items":[`)
	for i := 0; i <= DefaultMaxBatchItems; i++ {
		if i > 0 {
			tooMany.WriteByte(',')
		}
		fmt.Fprintf(&tooMany, `{"prompt":"p%d"}`, i)
	}
	tooMany.WriteString(`]}`)

	tests := []struct {
		name string
		body string
	}{
		{"empty items", `{"items":[]}`},
		{"missing items", `{}`},
		{"blank prompt in item", `{"items":[{"prompt":"ok"},{"prompt":""}]}`},
		{"too many items", tooMany.String()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mocks.NewMockProvider().Start(t)
			h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

			w := httptest.NewRecorder()
			h.HandleBatch(w, jsonRequest(http.MethodPost, "/v1/generate/batch", tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_REQUEST", gjson.Get(w.Body.String(), "error.code").String())
			assert.Equal(t, 0, p.CallCount())
		})
	}
}

func TestGenerateHandler_HandleBatch_FailureFailsWhole(t *testing.T) {
	p := mocks.NewMockProvider().
		WithStatus(http.StatusUnauthorized, fixtures.OpenAIError("bad key", "invalid_api_key")).
		Start(t)
	h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleBatch(w, jsonRequest(http.MethodPost, "/v1/generate/batch", `{"items":[{"prompt":"a"},{"prompt":"b"}]}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_API_KEY", gjson.Get(w.Body.String(), "error.code").String())
}

// =============================================================================
// 🔌 HandleConnectionTest
// =============================================================================

func TestGenerateHandler_HandleConnectionTest(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		connected bool
	}{
		{"connected", fixtures.OpenAIResponse("Connected."), true},
		{"unexpected reply", fixtures.OpenAIResponse("I cannot do that"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mocks.NewMockProvider().WithResponse(tt.reply).Start(t)
			h := NewGenerateHandler(newServiceFor(p, 0), 0, zap.NewNop())

			w := httptest.NewRecorder()
			h.HandleConnectionTest(w, httptest.NewRequest(http.MethodPost, "/v1/connection/test", nil))

			require.Equal(t, http.StatusOK, w.Code)
			body := w.Body.String()
			assert.Equal(t, tt.connected, gjson.Get(body, "data.connected").Bool())
			assert.Equal(t, "openai", gjson.Get(body, "data.provider").String())
			assert.Equal(t, "gpt-4o-mini", gjson.Get(body, "data.model").String())
		})
	}
}

func TestGenerateHandler_HandleConnectionTest_Error(t *testing.T) {
	h := NewGenerateHandler(&stubGenerator{err: &llm.Error{Code: llm.ErrTimeout, Message: "Request timed out", Retryable: true}}, 0, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleConnectionTest(w, httptest.NewRequest(http.MethodPost, "/v1/connection/test", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "TIMEOUT", gjson.Get(w.Body.String(), "error.code").String())
}

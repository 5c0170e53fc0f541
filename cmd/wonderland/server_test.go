package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/wonderland/config"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/observability"
	"github.com/BaSui01/wonderland/testutil"
	"github.com/BaSui01/wonderland/testutil/fixtures"
	"github.com/BaSui01/wonderland/testutil/mocks"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 🔧 测试辅助
// =============================================================================

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.AI.APIKey = "sk-test"
	cfg.Retry.MaxRetries = 0
	cfg.Server.RateLimitRPS = 0
	cfg.Server.MetricsPort = 0
	return cfg
}

// newTestServer 构建完整的中间件链，Provider 请求全部指向 p
func newTestServer(t *testing.T, p *mocks.MockProvider, mutate ...func(*config.Config)) (*Server, http.Handler) {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	s := NewServer(cfg, nil, zap.NewNop(), zap.NewAtomicLevelAt(zapcore.InfoLevel), nil)
	s.httpClient = p.Client()
	handler, err := s.build()
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s, handler
}

func doJSON(handler http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

// =============================================================================
// 🧪 路由
// =============================================================================

func TestServer_Generate(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse(fixtures.OpenAIResponse("Hi there")).Start(t)
	_, handler := newTestServer(t, p)

	w := doJSON(handler, http.MethodPost, "/v1/generate", `{"prompt":"hello"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "Hi there", gjson.Get(body, "data.content").String())
	requestID := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, requestID)
	assert.Equal(t, requestID, gjson.Get(body, "request_id").String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestServer_Stream(t *testing.T) {
	p := mocks.NewMockProvider().WithStreamChunks(fixtures.OpenAIStream("a", "b")).Start(t)
	_, handler := newTestServer(t, p)

	w := doJSON(handler, http.MethodPost, "/v1/generate/stream", `{"prompt":"hello"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"content\":\"a\"}\n\ndata: {\"content\":\"b\"}\n\ndata: [DONE]\n\n", w.Body.String())
}

func TestServer_MethodNotAllowed(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	_, handler := newTestServer(t, p)

	w := doJSON(handler, http.MethodGet, "/v1/generate", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, 0, p.CallCount())
}

func TestServer_SettingsRoundTrip(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	s, handler := newTestServer(t, p)

	w := doJSON(handler, http.MethodPut, "/v1/settings", `{"model":"gpt-4o","max_tokens":64}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(handler, http.MethodGet, "/v1/settings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-4o", gjson.Get(w.Body.String(), "data.model").String())
	assert.Equal(t, 64, s.service.Settings().MaxTokens)

	w = doJSON(handler, http.MethodPost, "/v1/generate", `{"prompt":"x"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-4o", gjson.GetBytes(p.LastCall().Body, "model").String())
	assert.Equal(t, int64(64), gjson.GetBytes(p.LastCall().Body, "max_tokens").Int())
}

func TestServer_ReadinessReflectsSettings(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	_, handler := newTestServer(t, p, func(c *config.Config) { c.AI.APIKey = "" })

	w := doJSON(handler, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(handler, http.MethodPut, "/v1/settings", `{"api_key":"sk-new"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(handler, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_HealthRoutesReportBuild(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	_, handler := newTestServer(t, p)

	for _, path := range []string{"/health", "/healthz"} {
		w := doJSON(handler, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, Version, gjson.Get(w.Body.String(), "version").String(), path)
		assert.False(t, gjson.Get(w.Body.String(), "checks").Exists(), path)
	}

	w := doJSON(handler, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pass", gjson.Get(w.Body.String(), "checks.settings.status").String())

	w = doJSON(handler, http.MethodGet, "/version", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Version, gjson.Get(w.Body.String(), "data.version").String())
	assert.Equal(t, GitCommit, gjson.Get(w.Body.String(), "data.git_commit").String())
}

func TestServer_AuthAppliesToAPIOnly(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	_, handler := newTestServer(t, p, func(c *config.Config) { c.Auth.APIKeys = []string{"secret"} })

	assert.Equal(t, http.StatusOK, doJSON(handler, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(handler, http.MethodGet, "/version", "", nil).Code)

	w := doJSON(handler, http.MethodGet, "/v1/providers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, gjson.Get(w.Body.String(), "request_id").String())

	w = doJSON(handler, http.MethodGet, "/v1/providers", "", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Get(w.Body.String(), "data").Array(), 4)
}

func TestServer_InboundRateLimit(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	_, handler := newTestServer(t, p, func(c *config.Config) {
		c.Server.RateLimitRPS = 1
		c.Server.RateLimitBurst = 1
	})

	assert.Equal(t, http.StatusOK, doJSON(handler, http.MethodGet, "/healthz", "", nil).Code)
	w := doJSON(handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", gjson.Get(w.Body.String(), "error.code").String())
}

func TestServer_RecordsMetrics(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse(fixtures.OpenAIResponseWithUsage("x", 10, 5)).Start(t)
	s, handler := newTestServer(t, p)

	require.Equal(t, http.StatusOK, doJSON(handler, http.MethodPost, "/v1/generate", `{"prompt":"x"}`, nil).Code)

	n, err := promtest.GatherAndCount(s.registry, "wonderland_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w := doJSON(handler, http.MethodGet, "/v1/usage", "", nil)
	assert.Equal(t, int64(15), gjson.Get(w.Body.String(), "data.total_tokens").Int())
}

// =============================================================================
// 🔄 热更新
// =============================================================================

func TestServer_ApplyReload(t *testing.T) {
	p := mocks.NewMockProvider().WithStatus(http.StatusBadGateway, "down").Start(t)
	s, _ := newTestServer(t, p)

	oldCfg := *s.cfg
	newCfg := oldCfg
	newCfg.AI.Model = "gpt-4o"
	newCfg.Retry.MaxRetries = 2
	newCfg.Retry.BaseDelay = time.Millisecond
	newCfg.Retry.MaxDelay = time.Millisecond
	newCfg.Log.Level = "debug"

	require.NoError(t, s.applyReload(&oldCfg, &newCfg))

	assert.Equal(t, "gpt-4o", s.service.Settings().Model)
	assert.Equal(t, zapcore.DebugLevel, s.logLevel.Level())
	assert.Same(t, &newCfg, s.cfg)

	_, err := s.service.Generate(testutil.TestContext(t), "p", "")
	require.Error(t, err)
	assert.Equal(t, 3, p.CallCount())
}

func TestServer_ApplyReloadUpdatesPricing(t *testing.T) {
	p := mocks.NewMockProvider().WithResponse(fixtures.OpenAIResponseWithUsage("x", 1_000_000, 0)).Start(t)
	s, handler := newTestServer(t, p)

	oldCfg := *s.cfg
	newCfg := oldCfg
	newCfg.Pricing = []observability.ModelPrice{{Provider: "openai", Model: "gpt-4o-mini", InputPerMTok: 2}}
	require.NoError(t, s.applyReload(&oldCfg, &newCfg))

	require.Equal(t, http.StatusOK, doJSON(handler, http.MethodPost, "/v1/generate", `{"prompt":"hi"}`, nil).Code)

	w := doJSON(handler, http.MethodGet, "/v1/usage", "", nil)
	assert.InDelta(t, 2.0, gjson.Get(w.Body.String(), "data.total_cost").Float(), 1e-9)
	assert.Equal(t, "openai", gjson.Get(w.Body.String(), "data.by_provider.0.provider").String())
}

func TestServer_ApplyReloadKeepsRuntimeSettings(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	s, handler := newTestServer(t, p)

	require.Equal(t, http.StatusOK, doJSON(handler, http.MethodPut, "/v1/settings", `{"model":"gpt-4-turbo"}`, nil).Code)

	oldCfg := *s.cfg
	newCfg := oldCfg
	newCfg.Log.Level = "warn"
	require.NoError(t, s.applyReload(&oldCfg, &newCfg))

	// 文件的 ai 段没有变化，设置接口的修改保留
	assert.Equal(t, "gpt-4-turbo", s.service.Settings().Model)
}

func TestServer_ApplyReloadRejectsUnknownProvider(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	s, _ := newTestServer(t, p)

	oldCfg := *s.cfg
	newCfg := oldCfg
	newCfg.AI.Provider = "mistral"
	require.Error(t, s.applyReload(&oldCfg, &newCfg))
	assert.Equal(t, llm.ProviderOpenAI, s.service.Settings().Provider)
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

func TestServer_StartAndShutdown(t *testing.T) {
	p := mocks.NewMockProvider().Start(t)
	cfg := testConfig()
	cfg.Server.HTTPPort = 0
	s := NewServer(cfg, nil, zap.NewNop(), zap.NewAtomicLevel(), nil)
	s.httpClient = p.Client()

	require.NoError(t, s.Start())
	addr := s.httpManager.ListenAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "healthy"))

	s.Shutdown()
	assert.False(t, s.httpManager.IsRunning())
	// 重复调用无副作用
	s.Shutdown()
}

func TestServer_HotReloadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	writeFile(t, path, "ai:\n  provider: openai\n  model: gpt-4o-mini\n  api_key: sk-a\nserver:\n  hot_reload: true\n")

	cfg, loader, err := loadConfig(path)
	require.NoError(t, err)
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0

	s := NewServer(cfg, loader, zap.NewNop(), zap.NewAtomicLevel(), nil)
	require.NoError(t, s.Start())
	t.Cleanup(s.Shutdown)
	require.NotNil(t, s.hotReloadManager)

	require.NoError(t, s.hotReloadManager.ReloadFromFile())
	assert.Equal(t, "gpt-4o-mini", s.service.Settings().Model)

	writeFile(t, path, "ai:\n  provider: anthropic\n  model: claude-3-5-haiku-20241022\n  api_key: sk-b\nserver:\n  hot_reload: true\n")
	require.NoError(t, s.hotReloadManager.ReloadFromFile())

	got := s.service.Settings()
	assert.Equal(t, llm.ProviderAnthropic, got.Provider)
	assert.Equal(t, "claude-3-5-haiku-20241022", got.Model)
	assert.Equal(t, "sk-b", got.APIKey)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testBuild = BuildInfo{Version: "1.2.3", BuildTime: "2026-01-01T00:00:00Z", GitCommit: "abc123"}

type stubCheck struct {
	name  string
	err   error
	delay time.Duration
}

func (c *stubCheck) Name() string { return c.name }

func (c *stubCheck) Check(ctx context.Context) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

// =============================================================================
// 🧪 存活
// =============================================================================

func TestHandleLive(t *testing.T) {
	h := NewHealthHandler(testBuild, zap.NewNop())
	// 存活检查不跑就绪检查项
	h.RegisterCheck(&stubCheck{name: "settings", err: errors.New("API key is required")})

	for _, path := range []string{"/health", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleLive(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			status := decodeStatus(t, w)
			assert.Equal(t, "healthy", status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			assert.NotEmpty(t, status.Uptime)
			assert.False(t, status.Timestamp.IsZero())
			assert.Empty(t, status.Checks)
		})
	}
}

// =============================================================================
// 🧪 就绪
// =============================================================================

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantCode   int
		wantStatus string
		wantFailed map[string]string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "all pass",
			checks: []HealthCheck{
				&stubCheck{name: "a"},
				&stubCheck{name: "b"},
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "one fails",
			checks: []HealthCheck{
				&stubCheck{name: "a"},
				&stubCheck{name: "b", err: errors.New("check failed")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantFailed: map[string]string{"b": "check failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(testBuild, zap.NewNop())
			for _, c := range tt.checks {
				h.RegisterCheck(c)
			}

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			status := decodeStatus(t, w)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			assert.Len(t, status.Checks, len(tt.checks))
			for _, c := range tt.checks {
				result := status.Checks[c.Name()]
				assert.NotEmpty(t, result.Latency)
				if msg, failed := tt.wantFailed[c.Name()]; failed {
					assert.Equal(t, "fail", result.Status)
					assert.Equal(t, msg, result.Message)
				} else {
					assert.Equal(t, "pass", result.Status)
					assert.Empty(t, result.Message)
				}
			}
		})
	}
}

func TestHandleReady_ChecksRunConcurrently(t *testing.T) {
	h := NewHealthHandler(testBuild, zap.NewNop())
	for _, name := range []string{"a", "b", "c", "d"} {
		h.RegisterCheck(&stubCheck{name: name, delay: 200 * time.Millisecond})
	}

	start := time.Now()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	// 串行需要 800ms
	assert.Less(t, time.Since(start), 600*time.Millisecond)
	assert.Len(t, decodeStatus(t, w).Checks, 4)
}

func TestHandleReady_ParallelRequests(t *testing.T) {
	h := NewHealthHandler(testBuild, zap.NewNop())
	for i := 0; i < 10; i++ {
		h.RegisterCheck(&stubCheck{name: string(rune('a' + i))})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

func TestHandleReady_CanceledRequestFailsSlowCheck(t *testing.T) {
	h := NewHealthHandler(testBuild, zap.NewNop())
	h.RegisterCheck(&stubCheck{name: "slow", delay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "fail", decodeStatus(t, w).Checks["slow"].Status)
}

// =============================================================================
// 🧪 版本
// =============================================================================

func TestHandleVersion(t *testing.T) {
	h := NewHealthHandler(testBuild, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleVersion(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, "2026-01-01T00:00:00Z", data["build_time"])
	assert.Equal(t, "abc123", data["git_commit"])
}

// =============================================================================
// 🧪 检查项
// =============================================================================

func TestFuncCheck(t *testing.T) {
	called := false
	c := NewFuncCheck("provider", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Equal(t, "provider", c.Name())
	require.NoError(t, c.Check(context.Background()))
	assert.True(t, called)
}

func TestSettingsCheck(t *testing.T) {
	settings := llm.DefaultSettings()
	current := func() llm.Settings { return settings }

	h := NewHealthHandler(testBuild, zap.NewNop())
	h.RegisterCheck(NewSettingsCheck(current, llm.DesktopNetwork))

	// 默认设置缺少 API Key，不算就绪
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	status := decodeStatus(t, w)
	assert.Equal(t, "fail", status.Checks["settings"].Status)
	assert.Contains(t, status.Checks["settings"].Message, "API key")

	settings.APIKey = "sk-test"
	w = httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettingsCheck_OllamaOnMobile(t *testing.T) {
	settings := llm.Settings{Provider: llm.ProviderOllama, Model: "llama3.2", MaxTokens: 100}
	c := NewSettingsCheck(func() llm.Settings { return settings }, llm.NetworkProfile{})
	err := c.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, llm.ErrConfiguration, llm.CodeOf(err))
}

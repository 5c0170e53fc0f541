package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector() *Collector {
	return NewCollectorWith("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := newTestCollector()

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.llmRetriesTotal)
	assert.NotNil(t, collector.llmStreamChunks)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := newTestCollector()

	collector.RecordHTTPRequest("POST", "/v1/generate", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("POST", "/v1/generate", 201, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("POST", "/v1/generate", 503, 10*time.Millisecond, 512, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/generate", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("POST", "/v1/generate", "5xx")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := newTestCollector()

	collector.RecordLLMRequest(LLMRequest{
		Provider: "openai", Model: "gpt-4o-mini", Status: "ok",
		Duration: time.Second, PromptTokens: 100, CompletionTokens: 50, Cost: 0.01,
	})
	collector.RecordLLMRequest(LLMRequest{
		Provider: "openai", Model: "gpt-4o-mini", Stream: true, Status: "error",
		ErrorCode: "RATE_LIMIT", Duration: time.Second,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "generate", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "stream", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt")))
	assert.Equal(t, 50.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "completion")))
	assert.InDelta(t, 0.01, testutil.ToFloat64(collector.llmCost.WithLabelValues("openai", "gpt-4o-mini")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmErrorsTotal.WithLabelValues("openai", "RATE_LIMIT")))
}

func TestCollector_RetriesAndChunks(t *testing.T) {
	collector := newTestCollector()

	collector.RecordRetry("anthropic", "SERVER_ERROR")
	collector.RecordRetry("anthropic", "SERVER_ERROR")
	collector.RecordStreamChunk("ollama")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.llmRetriesTotal.WithLabelValues("anthropic", "SERVER_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmStreamChunks.WithLabelValues("ollama")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {204, "2xx"}, {301, "3xx"}, {404, "4xx"}, {429, "4xx"}, {500, "5xx"}, {529, "5xx"}, {100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code), tt.code)
	}
}

func TestNewCollector_DefaultRegisterer(t *testing.T) {
	c := NewCollector("wonderland_default_test", nil)
	assert.NotNil(t, c.logger)
}

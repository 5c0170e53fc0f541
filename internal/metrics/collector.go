// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 生成请求指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec
	llmErrorsTotal     *prometheus.CounterVec
	llmRetriesTotal    *prometheus.CounterVec
	llmStreamChunks    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到 prometheus 默认 Registerer
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith 创建指标收集器并注册到指定的 Registerer
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 生成请求指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"provider", "model", "mode", "status"}, // mode: generate, stream
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model", "mode"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens reported by providers",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Estimated LLM cost in USD",
		},
		[]string{"provider", "model"},
	)

	c.llmErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Total number of classified generation errors",
		},
		[]string{"provider", "code"},
	)

	c.llmRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"provider", "code"},
	)

	c.llmStreamChunks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_stream_chunks_total",
			Help:      "Total number of streamed content chunks delivered",
		},
		[]string{"provider"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 生成请求指标记录
// =============================================================================

// LLMRequest 一次生成调用的结果摘要
type LLMRequest struct {
	Provider         string
	Model            string
	Stream           bool
	Status           string // ok / error
	ErrorCode        string
	Duration         time.Duration
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// RecordLLMRequest 记录生成请求
func (c *Collector) RecordLLMRequest(r LLMRequest) {
	mode := "generate"
	if r.Stream {
		mode = "stream"
	}
	c.llmRequestsTotal.WithLabelValues(r.Provider, r.Model, mode, r.Status).Inc()
	c.llmRequestDuration.WithLabelValues(r.Provider, r.Model, mode).Observe(r.Duration.Seconds())
	if r.PromptTokens > 0 || r.CompletionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(r.Provider, r.Model, "prompt").Add(float64(r.PromptTokens))
		c.llmTokensUsed.WithLabelValues(r.Provider, r.Model, "completion").Add(float64(r.CompletionTokens))
	}
	if r.Cost > 0 {
		c.llmCost.WithLabelValues(r.Provider, r.Model).Add(r.Cost)
	}
	if r.ErrorCode != "" {
		c.llmErrorsTotal.WithLabelValues(r.Provider, r.ErrorCode).Inc()
	}
}

// RecordRetry 记录一次重试
func (c *Collector) RecordRetry(provider, code string) {
	c.llmRetriesTotal.WithLabelValues(provider, code).Inc()
}

// RecordStreamChunk 记录一个已投递的流式片段
func (c *Collector) RecordStreamChunk(provider string) {
	c.llmStreamChunks.WithLabelValues(provider).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

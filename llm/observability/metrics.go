package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/wonderland/llm"

// Metrics LLM 指标收集器
type Metrics struct {
	tracer trace.Tracer
	meter  metric.Meter
	// 计数器
	requestTotal metric.Int64Counter
	tokenTotal   metric.Int64Counter
	errorTotal   metric.Int64Counter
	retryTotal   metric.Int64Counter
	chunkTotal   metric.Int64Counter
	// 直方图
	requestDuration metric.Float64Histogram
	tokenCount      metric.Int64Histogram
	costPerRequest  metric.Float64Histogram
	// 当前值
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics 使用全局 MeterProvider / TracerProvider 创建指标收集器
func NewMetrics() (*Metrics, error) {
	return NewMetricsWith(otel.GetMeterProvider(), otel.GetTracerProvider())
}

// NewMetricsWith 使用指定的 provider 创建指标收集器，便于测试注入
func NewMetricsWith(mp metric.MeterProvider, tp trace.TracerProvider) (*Metrics, error) {
	meter := mp.Meter(instrumentationName)
	m := &Metrics{
		tracer: tp.Tracer(instrumentationName),
		meter:  meter,
	}

	var err error

	// 请求计数
	m.requestTotal, err = meter.Int64Counter("llm.request.total",
		metric.WithDescription("Total number of generation requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	// Token 计数
	m.tokenTotal, err = meter.Int64Counter("llm.token.total",
		metric.WithDescription("Total tokens reported by providers"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	// 错误计数
	m.errorTotal, err = meter.Int64Counter("llm.error.total",
		metric.WithDescription("Total number of classified errors"),
		metric.WithUnit("{error}"))
	if err != nil {
		return nil, err
	}

	m.retryTotal, err = meter.Int64Counter("llm.retry.total",
		metric.WithDescription("Total number of retry attempts"),
		metric.WithUnit("{retry}"))
	if err != nil {
		return nil, err
	}

	m.chunkTotal, err = meter.Int64Counter("llm.stream.chunk.total",
		metric.WithDescription("Total number of streamed content chunks"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}

	// 请求延迟
	m.requestDuration, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120))
	if err != nil {
		return nil, err
	}

	// Token 分布
	m.tokenCount, err = meter.Int64Histogram("llm.token.count",
		metric.WithDescription("Token count per request"),
		metric.WithUnit("{token}"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 2000, 4000, 8000, 16000, 32000))
	if err != nil {
		return nil, err
	}

	// 成本分布
	m.costPerRequest, err = meter.Float64Histogram("llm.cost.per_request",
		metric.WithDescription("Estimated cost per request in USD"),
		metric.WithUnit("USD"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	if err != nil {
		return nil, err
	}

	// 活跃请求数
	m.activeRequests, err = meter.Int64UpDownCounter("llm.request.active",
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RequestAttrs 请求属性
type RequestAttrs struct {
	RequestID string
	Provider  string
	Model     string
	Stream    bool
}

// ResponseAttrs 响应属性
type ResponseAttrs struct {
	Status           string // ok / error
	ErrorCode        string
	TokensPrompt     int
	TokensCompletion int
	Cost             float64
	Duration         time.Duration
	Chunks           int
}

func (r RequestAttrs) operation() string {
	if r.Stream {
		return "llm.generate_stream"
	}
	return "llm.generate"
}

// StartRequest 开始请求追踪
func (m *Metrics) StartRequest(ctx context.Context, attrs RequestAttrs) (context.Context, trace.Span) {
	ctx, span := m.tracer.Start(ctx, attrs.operation(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.request_id", attrs.RequestID),
			attribute.String("llm.provider", attrs.Provider),
			attribute.String("llm.model", attrs.Model),
			attribute.Bool("llm.stream", attrs.Stream),
		))

	m.activeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", attrs.Provider),
			attribute.String("model", attrs.Model)))

	return ctx, span
}

// EndRequest 结束请求追踪
func (m *Metrics) EndRequest(ctx context.Context, span trace.Span, req RequestAttrs, resp ResponseAttrs) {
	defer span.End()

	commonAttrs := []attribute.KeyValue{
		attribute.String("provider", req.Provider),
		attribute.String("model", req.Model),
		attribute.Bool("stream", req.Stream),
		attribute.String("status", resp.Status),
	}

	// 减少活跃请求
	m.activeRequests.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model)))

	m.requestTotal.Add(ctx, 1, metric.WithAttributes(commonAttrs...))
	m.requestDuration.Record(ctx, resp.Duration.Seconds(), metric.WithAttributes(commonAttrs...))

	// 记录 Token
	totalTokens := int64(resp.TokensPrompt + resp.TokensCompletion)
	if totalTokens > 0 {
		m.tokenTotal.Add(ctx, int64(resp.TokensPrompt), metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("type", "prompt")))

		m.tokenTotal.Add(ctx, int64(resp.TokensCompletion), metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("type", "completion")))

		m.tokenCount.Record(ctx, totalTokens, metric.WithAttributes(commonAttrs...))
	}

	if resp.Cost > 0 {
		m.costPerRequest.Record(ctx, resp.Cost, metric.WithAttributes(commonAttrs...))
	}

	if resp.ErrorCode != "" {
		m.errorTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("model", req.Model),
			attribute.String("error_code", resp.ErrorCode)))

		span.SetAttributes(attribute.String("error.code", resp.ErrorCode))
		span.SetStatus(codes.Error, resp.ErrorCode)
	}

	span.SetAttributes(
		attribute.String("llm.status", resp.Status),
		attribute.Int("llm.tokens.prompt", resp.TokensPrompt),
		attribute.Int("llm.tokens.completion", resp.TokensCompletion),
		attribute.Float64("llm.cost", resp.Cost),
		attribute.Int("llm.stream.chunks", resp.Chunks),
		attribute.Float64("llm.duration_ms", float64(resp.Duration.Milliseconds())))
}

// RecordRetry 记录一次重试
func (m *Metrics) RecordRetry(ctx context.Context, provider, errorCode string, attempt int, delay time.Duration) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("error_code", errorCode)))

	trace.SpanFromContext(ctx).AddEvent("llm.retry", trace.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.String("error_code", errorCode),
		attribute.Float64("delay_ms", float64(delay.Milliseconds()))))
}

// RecordChunk 记录一个流式内容片段
func (m *Metrics) RecordChunk(ctx context.Context, provider string) {
	m.chunkTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// Tracer 获取 Tracer
func (m *Metrics) Tracer() trace.Tracer {
	return m.tracer
}

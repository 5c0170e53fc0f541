package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/wonderland/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the global OTel providers and
// restores them on cleanup.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func enabledConfig(sampleRate float64) config.TelemetryConfig {
	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.ServiceName = "wonderland-test"
	cfg.SampleRate = sampleRate
	return cfg
}

func initEnabled(t *testing.T, cfg config.TelemetryConfig) *Providers {
	t.Helper()
	p, err := Init(context.Background(), cfg, "v1.2.3", zaptest.NewLogger(t))
	require.NoError(t, err)
	// 没有 collector，关闭时可能返回连接错误
	t.Cleanup(func() { _ = p.ShutdownTimeout(time.Second) })
	return p
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "dev", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledRegistersGlobals(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	p := initEnabled(t, enabledConfig(0.5))

	require.NotNil(t, p.tp)
	require.NotNil(t, p.mp)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	_, tpIsSDK = p.TracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK = p.MeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)
}

func TestInit_SecureWithoutInterval(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	cfg := enabledConfig(1)
	cfg.Insecure = false
	cfg.ExportInterval = 0

	p := initEnabled(t, cfg)
	assert.NotNil(t, p.tp)
}

func TestSampler(t *testing.T) {
	traceID := trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 1}
	params := sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       traceID,
		Name:          "generate",
	}

	assert.Equal(t, sdktrace.RecordAndSample, sampler(1).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, sampler(2).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.Drop, sampler(0).ShouldSample(params).Decision)
	assert.Equal(t, sdktrace.Drop, sampler(-1).ShouldSample(params).Decision)

	// 上游已采样的请求不会被本地比例丢弃
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	params.ParentContext = trace.ContextWithRemoteSpanContext(context.Background(), parent)
	assert.Equal(t, sdktrace.RecordAndSample, sampler(0).ShouldSample(params).Decision)
}

func TestProviders_NilSafe(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.ShutdownTimeout(time.Millisecond))
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
}

func TestProviders_AccessorsFallBackToGlobal(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{}, "", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, otel.GetTracerProvider(), p.TracerProvider())
	assert.Equal(t, otel.GetMeterProvider(), p.MeterProvider())
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的 build info 版本为 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}

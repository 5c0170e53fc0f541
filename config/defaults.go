// =============================================================================
// 📦 Wonderland 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/retry"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AI:        DefaultAIConfig(),
		Retry:     DefaultRetryConfig(),
		Network:   DefaultNetworkConfig(),
		Server:    DefaultServerConfig(),
		Auth:      AuthConfig{},
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultAIConfig 返回默认生成设置，与 llm.DefaultSettings 一致
func DefaultAIConfig() AIConfig {
	s := llm.DefaultSettings()
	return AIConfig{
		Provider:         string(s.Provider),
		Model:            s.Model,
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		RequestTimeout:   2 * time.Minute,
		BatchConcurrency: 4,
	}
}

// DefaultRetryConfig 返回默认重试策略，与 retry.DefaultPolicy 一致
func DefaultRetryConfig() RetryConfig {
	p := retry.DefaultPolicy()
	return RetryConfig{
		MaxRetries: p.MaxRetries,
		BaseDelay:  p.BaseDelay,
		MaxDelay:   p.MaxDelay,
	}
}

// DefaultNetworkConfig 返回桌面/服务器宿主的网络能力
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		AllowsLocalLoopback: llm.DesktopNetwork.AllowsLocalLoopback,
		DialTimeout:         10 * time.Second,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "wonderland",
		SampleRate:     0.1,
		Insecure:       true,
		ExportInterval: 30 * time.Second,
	}
}

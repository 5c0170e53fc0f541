// =============================================================================
// 📦 Wonderland 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("WONDERLAND").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/wonderland/internal/tlsutil"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/observability"
	"github.com/BaSui01/wonderland/llm/retry"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Wonderland 的完整配置结构
type Config struct {
	// AI 生成设置
	AI AIConfig `yaml:"ai" env:"AI"`

	// Retry 重试策略
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Network 宿主网络能力
	Network NetworkConfig `yaml:"network" env:"NETWORK"`

	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Auth 鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Pricing 覆盖内置价格表（USD / 百万 Token），仅支持 YAML
	Pricing []observability.ModelPrice `yaml:"pricing"`
}

// AIConfig 生成设置与出站调用参数
type AIConfig struct {
	// Provider: openai, anthropic, ollama, custom
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key（ollama 不需要）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Endpoint，仅 ollama 与 custom 使用
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 最大输出 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// OpenAI 组织 ID（可选）
	OpenAIOrganization string `yaml:"openai_organization" env:"OPENAI_ORGANIZATION"`
	// 单次请求（或整个流）的超时，负数表示不设超时
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// 出站限流，0 表示不限
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 批量生成的最大并发
	BatchConcurrency int `yaml:"batch_concurrency" env:"BATCH_CONCURRENCY"`
}

// RetryConfig 重试策略
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BaseDelay  time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
}

// NetworkConfig 宿主网络能力
type NetworkConfig struct {
	// 是否能访问本机 loopback（移动端为 false，此时 ollama 不可用）
	AllowsLocalLoopback bool `yaml:"allows_local_loopback" env:"ALLOWS_LOCAL_LOOPBACK"`
	// 出站代理，为空时读取 HTTPS_PROXY / NO_PROXY
	ProxyURL string `yaml:"proxy_url" env:"PROXY_URL"`
	// 建立连接的超时
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	// 等待上游响应头的超时，0 表示只受 request_timeout 约束
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout" env:"RESPONSE_HEADER_TIMEOUT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，流式接口需要足够长
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端 IP 的入站限流
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，为空时不允许跨域
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 配置文件变更时是否热加载 AI 设置
	HotReload bool `yaml:"hot_reload" env:"HOT_RELOAD"`
	// 证书与私钥都设置时以 HTTPS 监听
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// AuthConfig 鉴权配置，APIKeys 与 JWTSecret 都为空时关闭鉴权
type AuthConfig struct {
	// 允许的 API Key 列表
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// HS256 JWT 密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// JWT issuer，为空时不校验
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 是否使用明文 gRPC 连接 collector
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// 指标导出周期，0 使用 SDK 默认值
	ExportInterval time.Duration `yaml:"export_interval" env:"EXPORT_INTERVAL"`
}

// =============================================================================
// 🔄 转换为运行时类型
// =============================================================================

// Settings 转换为 llm.Settings。
// Provider 名称无法识别时原样保留，由调用时的校验返回 CONFIGURATION_ERROR。
func (a AIConfig) Settings() llm.Settings {
	provider, err := llm.ParseProvider(a.Provider)
	if err != nil {
		provider = llm.ProviderID(a.Provider)
	}
	return llm.Settings{
		Provider:    provider,
		APIKey:      a.APIKey,
		Endpoint:    a.Endpoint,
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	}
}

// Policy 转换为 retry.Policy
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay,
		MaxDelay:   r.MaxDelay,
	}
}

// Profile 转换为 llm.NetworkProfile
func (n NetworkConfig) Profile() llm.NetworkProfile {
	return llm.NetworkProfile{AllowsLocalLoopback: n.AllowsLocalLoopback}
}

// ClientOptions 转换为出站客户端参数
func (n NetworkConfig) ClientOptions() tlsutil.ClientOptions {
	return tlsutil.ClientOptions{
		ProxyURL:              n.ProxyURL,
		DialTimeout:           n.DialTimeout,
		ResponseHeaderTimeout: n.ResponseHeaderTimeout,
	}
}

// AuthEnabled 报告是否配置了任何鉴权方式
func (a AuthConfig) AuthEnabled() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "WONDERLAND",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按 "30s" 这类格式解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置。
// API Key 缺失不在这里报错：服务可以先启动，再通过设置接口补全。
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}

	if _, err := llm.ParseProvider(c.AI.Provider); err != nil {
		errs = append(errs, err.Error())
	}
	if c.AI.MaxTokens <= 0 {
		errs = append(errs, "ai.max_tokens must be positive")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		errs = append(errs, "ai.temperature must be between 0 and 2")
	}
	if c.AI.RateLimitRPS < 0 {
		errs = append(errs, "ai.rate_limit_rps must not be negative")
	}

	if c.Network.ProxyURL != "" {
		if _, err := tlsutil.ParseProxyURL(c.Network.ProxyURL); err != nil {
			errs = append(errs, "network."+err.Error())
		}
	}
	if c.Network.DialTimeout < 0 || c.Network.ResponseHeaderTimeout < 0 {
		errs = append(errs, "network timeouts must not be negative")
	}

	for i, p := range c.Pricing {
		if _, err := llm.ParseProvider(p.Provider); err != nil || p.Model == "" {
			errs = append(errs, fmt.Sprintf("pricing[%d]: provider and model are required", i))
		}
		if p.InputPerMTok < 0 || p.OutputPerMTok < 0 {
			errs = append(errs, fmt.Sprintf("pricing[%d]: prices must not be negative", i))
		}
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must not be negative")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		errs = append(errs, "retry delays must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

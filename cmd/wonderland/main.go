// =============================================================================
// Wonderland 主入口
// =============================================================================
// HTTP 服务与命令行工具，包含健康检查、Prometheus 指标与配置热更新
//
// 使用方法:
//
//	wonderland serve                          # 启动服务
//	wonderland serve --config config.yaml     # 指定配置文件
//	wonderland generate "write a haiku"       # 单次生成
//	wonderland stream --system "be brief" ... # 流式生成
//	wonderland ping                           # 测试 Provider 连接
//	wonderland providers                      # 列出 Provider
//	wonderland health                         # 健康检查
//	wonderland version                        # 显示版本信息
// =============================================================================

// @title Wonderland API
// @version 1.0.0
// @description Wonderland generates text through OpenAI, Anthropic, a local Ollama daemon or any OpenAI-compatible endpoint.
// @description
// @description ## Features
// @description - One settings object selects the provider, model and sampling parameters
// @description - Transient failures are retried with exponential backoff
// @description - Streaming responses via SSE
// @description - Error codes with user-facing friendly messages

// @contact.name Wonderland Team
// @contact.url https://github.com/BaSui01/wonderland

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/wonderland/config"
	"github.com/BaSui01/wonderland/internal/telemetry"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/factory"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	os.Exit(run(os.Args[1], os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
}

// run 执行子命令并返回退出码
func run(cmd string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	switch cmd {
	case "serve":
		return runServe(args, stderr)
	case "generate":
		return runGenerate(args, false, stdin, stdout, stderr)
	case "stream":
		return runGenerate(args, true, stdin, stdout, stderr)
	case "ping":
		return runPing(args, stdout, stderr)
	case "providers":
		return runProviders(args, stdout, stderr)
	case "health":
		return runHealthCheck(args, stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loader, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, loader, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Wonderland",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
	)

	otelProviders, err := telemetry.Init(context.Background(), cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, loader, logger, level, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		srv.Shutdown()
		return 1
	}

	srv.WaitForShutdown()
	logger.Info("Wonderland stopped")
	return 0
}

// =============================================================================
// ✨ generate / stream / ping 命令
// =============================================================================

// cliFlags 是直接调用 Provider 的子命令共用的参数
type cliFlags struct {
	configPath string
	provider   string
	model      string
	system     string
}

func (f *cliFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file")
	fs.StringVar(&f.provider, "provider", "", "Override ai.provider")
	fs.StringVar(&f.model, "model", "", "Override ai.model")
	fs.StringVar(&f.system, "system", "", "System prompt")
}

// cliService 加载配置并应用命令行覆盖，日志只输出警告以上
func (f *cliFlags) cliService() (*config.Config, *zap.Logger, error) {
	cfg, _, err := loadConfig(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if f.provider != "" {
		provider, err := llm.ParseProvider(f.provider)
		if err != nil {
			return nil, nil, err
		}
		cfg.AI.Provider = string(provider)
		if f.model == "" {
			if p, err := llm.LookupProfile(provider); err == nil && p.DefaultModel() != "" {
				cfg.AI.Model = p.DefaultModel()
			}
		}
	}
	if f.model != "" {
		cfg.AI.Model = f.model
	}
	logCfg := cfg.Log
	if parseLevel(logCfg.Level) < zapcore.WarnLevel {
		logCfg.Level = "warn"
	}
	logCfg.OutputPaths = []string{"stderr"}
	logger, _ := initLogger(logCfg)
	return cfg, logger, nil
}

// signalContext 在 SIGINT/SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runGenerate(args []string, stream bool, stdin io.Reader, stdout, stderr io.Writer) int {
	name := "generate"
	if stream {
		name = "stream"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags cliFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" || prompt == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to read prompt: %v\n", err)
			return 1
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		fmt.Fprintln(stderr, "A prompt is required (as arguments or on stdin)")
		return 2
	}

	cfg, logger, err := flags.cliService()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	svc, err := newService(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	if stream {
		err = svc.GenerateStream(ctx, prompt, flags.system,
			func(content string) { fmt.Fprint(stdout, content) },
			func() { fmt.Fprintln(stdout) },
		)
	} else {
		var resp *llm.Response
		resp, err = svc.Generate(ctx, prompt, flags.system)
		if err == nil {
			fmt.Fprintln(stdout, resp.Content)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s (%s)\n", llm.FriendlyMessage(err), llm.CodeOf(err))
		return 1
	}
	return 0
}

func runPing(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags cliFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, logger, err := flags.cliService()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	svc, err := newService(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	settings := svc.Settings()
	ok, err := svc.TestConnection(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%s (%s)\n", llm.FriendlyMessage(err), llm.CodeOf(err))
		return 1
	}
	if !ok {
		fmt.Fprintf(stdout, "%s/%s answered, but not with the expected reply\n", settings.Provider, settings.Model)
		return 1
	}
	fmt.Fprintf(stdout, "Connected to %s/%s\n", settings.Provider, settings.Model)
	return 0
}

// =============================================================================
// 📋 providers / health / version
// =============================================================================

func runProviders(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mobile := fs.Bool("mobile", false, "Show availability on a host without loopback access")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	network := llm.DesktopNetwork
	if *mobile {
		network = llm.NetworkProfile{}
	}

	supported := make(map[llm.ProviderID]bool)
	for _, id := range factory.SupportedProviders() {
		supported[id] = true
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDEFAULT MODEL\tAPI KEY\tAVAILABLE")
	for _, p := range llm.Profiles() {
		if !supported[p.ID] {
			continue
		}
		model := p.DefaultModel()
		if model == "" {
			model = "-"
		}
		available := !p.Loopback || network.AllowsLocalLoopback
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.DisplayName, model, yesNo(p.RequiresAPIKey), yesNo(available))
	}
	if err := tw.Flush(); err != nil {
		return 1
	}
	return 0
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Wonderland %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Wonderland - multi-provider text generation

Usage:
  wonderland <command> [options]

Commands:
  serve       Start the HTTP server
  generate    Generate text once and print it
  stream      Generate text and print it as it arrives
  ping        Test the connection to the configured provider
  providers   List supported providers
  health      Check server health
  version     Show version information
  help        Show this help message

Options for 'serve':
  --config <path>     Path to configuration file (YAML)

Options for 'generate', 'stream' and 'ping':
  --config <path>     Path to configuration file (YAML)
  --provider <id>     Override ai.provider (openai, anthropic, ollama, custom)
  --model <name>      Override ai.model
  --system <text>     System prompt (generate, stream)

Environment variables override the file, e.g. WONDERLAND_AI_API_KEY.

Examples:
  wonderland serve --config /etc/wonderland/config.yaml
  wonderland generate --system "Answer in one line" "What is SSE?"
  echo "Write a haiku about tea" | wonderland stream --provider ollama
  wonderland health --addr http://localhost:8080`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 构建 zap logger，返回的 AtomicLevel 供热更新调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       cfg.Format == "console",
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}

package aiservice

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BaSui01/wonderland/internal/ctxkeys"
	"github.com/BaSui01/wonderland/internal/metrics"
	"github.com/BaSui01/wonderland/internal/tlsutil"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/factory"
	"github.com/BaSui01/wonderland/llm/observability"
	"github.com/BaSui01/wonderland/llm/providers"
	"github.com/BaSui01/wonderland/llm/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	connectionTestPrompt = `Say "connected" and nothing else.`
	connectionTestSystem = "You are a helpful assistant."
)

// DefaultRequestTimeout 单次请求（或整个流）的默认超时
const DefaultRequestTimeout = 2 * time.Minute

// Options 配置 Service 的运行时依赖，零值可用
type Options struct {
	Network        *llm.NetworkProfile // 为空时为 llm.DesktopNetwork
	Retry          *retry.Policy       // 为空时使用 retry.DefaultPolicy
	RequestTimeout time.Duration       // 0 使用 DefaultRequestTimeout，负数表示不设超时
	HTTPClient     *http.Client        // 为空时使用 tlsutil.SecureHTTPClient
	AdapterOptions []factory.Option

	// 出站限流，RateLimit 为 0 表示不限
	RateLimit rate.Limit
	RateBurst int

	Logger    *zap.Logger
	Metrics   *observability.Metrics    // OTel 指标与追踪，可为空
	Collector *metrics.Collector        // Prometheus 指标，可为空
	Costs     *observability.CostTracker // 用量与成本累计，可为空
}

// Prompt 是批量生成中的一项
type Prompt struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt"`
}

// Service 是生成能力的进程内入口。
// 每次调用开始时读取一份 Settings 快照，UpdateSettings 不影响进行中的调用。
type Service struct {
	settings atomic.Pointer[llm.Settings]
	retry    atomic.Pointer[retry.Policy]
	opts     Options
	engine   *engine
	logger   *zap.Logger
}

// New 创建 Service。Settings 的校验推迟到每次调用，配置错误以
// CONFIGURATION_ERROR 返回。
func New(settings llm.Settings, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Network == nil {
		network := llm.DesktopNetwork
		opts.Network = &network
	}
	if opts.Retry == nil {
		policy := retry.DefaultPolicy()
		opts.Retry = &policy
	}
	timeout := opts.RequestTimeout
	switch {
	case timeout == 0:
		timeout = DefaultRequestTimeout
	case timeout < 0:
		timeout = 0
	}
	client := opts.HTTPClient
	if client == nil {
		// 超时由 context 控制，client 本身不设上限
		client = tlsutil.SecureHTTPClient(0)
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.RateLimit, burst)
	}

	logger := opts.Logger.With(zap.String("component", "aiservice"))
	s := &Service{
		opts:   opts,
		logger: logger,
		engine: &engine{
			client:  client,
			limiter: limiter,
			timeout: timeout,
			logger:  logger,
		},
	}
	s.retry.Store(opts.Retry)
	s.UpdateSettings(settings)
	return s
}

// Settings 返回当前生效的设置副本
func (s *Service) Settings() llm.Settings {
	return *s.settings.Load()
}

// UpdateSettings 原子替换设置，进行中的调用继续使用旧快照
func (s *Service) UpdateSettings(settings llm.Settings) {
	snapshot := settings
	s.settings.Store(&snapshot)
	s.logger.Info("settings updated",
		zap.String("provider", string(settings.Provider)),
		zap.String("model", settings.Model),
		zap.Bool("api_key_set", settings.APIKey != ""),
	)
}

// UpdateRetryPolicy 替换重试策略，对之后开始的调用生效
func (s *Service) UpdateRetryPolicy(policy retry.Policy) {
	s.retry.Store(&policy)
	s.logger.Info("retry policy updated",
		zap.Int("max_retries", policy.MaxRetries),
		zap.Duration("base_delay", policy.BaseDelay),
		zap.Duration("max_delay", policy.MaxDelay),
	)
}

// Usage 返回进程内累计的用量与估算成本
func (s *Service) Usage() observability.CostSummary {
	if s.opts.Costs == nil {
		return observability.CostSummary{}
	}
	return s.opts.Costs.Summary()
}

// Generate 执行一次非流式生成，可重试的失败按退避策略重试
func (s *Service) Generate(ctx context.Context, prompt, systemPrompt string) (*llm.Response, error) {
	c, err := s.newCall(ctx, prompt, systemPrompt)
	if err != nil {
		s.recordRejected(c, false, err)
		return nil, err
	}

	ctx, tracked := s.begin(ctx, c, false)

	policy := *s.retry.Load()
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		code := string(llm.CodeOf(err))
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordRetry(ctx, string(c.settings.Provider), code, attempt, delay)
		}
		if s.opts.Collector != nil {
			s.opts.Collector.RecordRetry(string(c.settings.Provider), code)
		}
		if userHook != nil {
			userHook(attempt, err, delay)
		}
	}
	retryer := retry.NewBackoffRetryer(policy, s.logger)

	resp, err := retry.Run(ctx, retryer, func() (*llm.Response, error) {
		return s.engine.do(ctx, c)
	})
	if err != nil {
		err = s.normalize(err, c)
		tracked.finish(nil, 0, err)
		return nil, err
	}
	tracked.finish(resp, 0, nil)
	return resp, nil
}

// GenerateStream 执行一次流式生成，不重试。
// onChunk 按到达顺序接收每个非空增量；成功结束时 onComplete 恰好调用一次，失败时不调用。
func (s *Service) GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk func(string), onComplete func()) error {
	c, err := s.newCall(ctx, prompt, systemPrompt)
	if err != nil {
		s.recordRejected(c, true, err)
		return err
	}

	ctx, tracked := s.begin(ctx, c, true)
	provider := string(c.settings.Provider)

	chunks, err := s.engine.stream(ctx, c, func(content string) {
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordChunk(ctx, provider)
		}
		if s.opts.Collector != nil {
			s.opts.Collector.RecordStreamChunk(provider)
		}
		if onChunk != nil {
			onChunk(content)
		}
	})
	if err != nil {
		err = s.normalize(err, c)
		tracked.finish(nil, chunks, err)
		return err
	}
	tracked.finish(nil, chunks, nil)
	if onComplete != nil {
		onComplete()
	}
	return nil
}

// TestConnection 发送固定探测 prompt，回复中包含 "connected" 时返回 true。
// 请求失败时返回错误而不是 false。
func (s *Service) TestConnection(ctx context.Context) (bool, error) {
	resp, err := s.Generate(ctx, connectionTestPrompt, connectionTestSystem)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(resp.Content), "connected"), nil
}

// GenerateAll 并发执行多次独立生成，最多 limit 个同时进行（<= 0 表示不限）。
// 结果与 prompts 一一对应；任一失败会取消其余调用并返回该错误。
func (s *Service) GenerateAll(ctx context.Context, prompts []Prompt, limit int) ([]*llm.Response, error) {
	results := make([]*llm.Response, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, p := range prompts {
		g.Go(func() error {
			resp, err := s.Generate(gctx, p.Prompt, p.SystemPrompt)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// newCall 读取设置快照并选择 Adapter；配置错误在任何网络请求之前返回。
// ctx 中带有请求 ID（来自 HTTP 层）时沿用，否则生成新的。
func (s *Service) newCall(ctx context.Context, prompt, systemPrompt string) (call, error) {
	settings := s.Settings()
	requestID, ok := ctxkeys.RequestID(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	c := call{
		requestID:    requestID,
		settings:     settings,
		prompt:       prompt,
		systemPrompt: systemPrompt,
	}
	adapter, err := factory.NewAdapter(settings, *s.opts.Network, s.opts.AdapterOptions...)
	if err != nil {
		s.logger.Warn("invalid generation settings",
			zap.String("request_id", c.requestID),
			zap.String("provider", string(settings.Provider)),
			zap.Error(err),
		)
		return c, err
	}
	c.adapter = adapter
	return c, nil
}

// normalize 保证返回给调用方的总是 *llm.Error
func (s *Service) normalize(err error, c call) error {
	var le *llm.Error
	if errors.As(err, &le) {
		return le
	}
	return providers.ClassifyTransportError(err, c.settings.Provider)
}

func (s *Service) recordRejected(c call, stream bool, err error) {
	if s.opts.Collector == nil {
		return
	}
	s.opts.Collector.RecordLLMRequest(metrics.LLMRequest{
		Provider:  string(c.settings.Provider),
		Model:     c.settings.Model,
		Stream:    stream,
		Status:    "error",
		ErrorCode: string(llm.CodeOf(err)),
	})
}

// trackedCall 记录一次调用的指标、追踪与成本
type trackedCall struct {
	s     *Service
	ctx   context.Context
	c     call
	req   observability.RequestAttrs
	span  trace.Span
	start time.Time
}

func (s *Service) begin(ctx context.Context, c call, stream bool) (context.Context, *trackedCall) {
	t := &trackedCall{
		s:     s,
		c:     c,
		start: time.Now(),
		req: observability.RequestAttrs{
			RequestID: c.requestID,
			Provider:  string(c.settings.Provider),
			Model:     c.settings.Model,
			Stream:    stream,
		},
	}
	if s.opts.Metrics != nil {
		ctx, t.span = s.opts.Metrics.StartRequest(ctx, t.req)
	}
	t.ctx = ctx
	return ctx, t
}

func (t *trackedCall) finish(resp *llm.Response, chunks int, err error) {
	s := t.s
	duration := time.Since(t.start)
	model := t.c.settings.Model

	var promptTokens, completionTokens int
	var cost float64
	if resp != nil {
		if resp.Model != "" {
			model = resp.Model
		}
		if resp.Usage != nil {
			promptTokens = resp.Usage.PromptTokens
			completionTokens = resp.Usage.CompletionTokens
			if s.opts.Costs != nil {
				cost = s.opts.Costs.Track(t.req.Provider, model, promptTokens, completionTokens)
			}
		}
	}

	status := "ok"
	var code string
	if err != nil {
		status = "error"
		code = string(llm.CodeOf(err))
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.EndRequest(t.ctx, t.span, t.req, observability.ResponseAttrs{
			Status:           status,
			ErrorCode:        code,
			TokensPrompt:     promptTokens,
			TokensCompletion: completionTokens,
			Cost:             cost,
			Duration:         duration,
			Chunks:           chunks,
		})
	}
	if s.opts.Collector != nil {
		s.opts.Collector.RecordLLMRequest(metrics.LLMRequest{
			Provider:         t.req.Provider,
			Model:            model,
			Stream:           t.req.Stream,
			Status:           status,
			ErrorCode:        code,
			Duration:         duration,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			Cost:             cost,
		})
	}

	fields := []zap.Field{
		zap.String("request_id", t.c.requestID),
		zap.String("provider", t.req.Provider),
		zap.String("model", model),
		zap.Bool("stream", t.req.Stream),
		zap.Duration("duration", duration),
	}
	if err != nil {
		s.logger.Warn("generation failed", append(fields, zap.String("code", code), zap.Error(err))...)
		return
	}
	if t.req.Stream {
		fields = append(fields, zap.Int("chunks", chunks))
	}
	s.logger.Info("generation succeeded", fields...)
}

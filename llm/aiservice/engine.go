package aiservice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/providers"
	"github.com/BaSui01/wonderland/llm/streaming"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// streamReadSize 每次从流式响应体读取的字节数
const streamReadSize = 4 << 10

// call 是一次生成调用的不可变上下文，重试时原样复用
type call struct {
	requestID    string
	settings     llm.Settings
	adapter      llm.Adapter
	prompt       string
	systemPrompt string
}

// engine 负责单次出站 HTTP 调用及结果分类，不做重试
type engine struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// do 执行一次非流式请求
func (e *engine) do(ctx context.Context, c call) (*llm.Response, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.send(ctx, c, false)
	if err != nil {
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.transportError(ctx, c, err)
	}

	out := c.adapter.ParseResponse(body)
	e.logger.Debug("generation completed",
		zap.String("request_id", c.requestID),
		zap.String("provider", string(c.settings.Provider)),
		zap.String("model", out.Model),
		zap.Int("content_len", len(out.Content)),
		zap.Duration("duration", time.Since(start)),
	)
	return &out, nil
}

// stream 执行一次流式请求，每个非空增量交给 onChunk，返回已投递的片段数。
// 收到结束信号或 EOF 时正常返回；任何失败都返回分类后的错误。
func (e *engine) stream(ctx context.Context, c call, onChunk func(string)) (int, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.send(ctx, c, true)
	if err != nil {
		return 0, err
	}
	defer providers.SafeCloseBody(resp.Body)

	dec := streaming.NewDecoder(c.adapter)
	delivered := 0
	deliver := func(chunks []llm.StreamChunk) bool {
		for _, chunk := range chunks {
			if chunk.Done {
				return true
			}
			if chunk.Content == "" {
				continue
			}
			onChunk(chunk.Content)
			delivered++
		}
		return false
	}

	buf := make([]byte, streamReadSize)
	for {
		if err := ctx.Err(); err != nil {
			return delivered, e.transportError(ctx, c, err)
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 && deliver(dec.Feed(buf[:n])) {
			return delivered, nil
		}
		if errors.Is(rerr, io.EOF) {
			deliver(dec.Flush())
			return delivered, nil
		}
		if rerr != nil {
			return delivered, e.transportError(ctx, c, rerr)
		}
	}
}

// send 构建并发送请求。状态码 >= 400 时读取响应体并返回分类错误，
// 调用方只会拿到成功的响应。
func (e *engine) send(ctx context.Context, c call, stream bool) (*http.Response, error) {
	req, err := c.adapter.BuildRequest(c.prompt, c.systemPrompt, stream, c.settings)
	if err != nil {
		var le *llm.Error
		if errors.As(err, &le) {
			return nil, le
		}
		return nil, llm.ConfigError("failed to build request: %v", err)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, e.transportError(ctx, c, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, llm.ConfigError("invalid endpoint %q: %v", req.Endpoint, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	e.logger.Debug("sending request",
		zap.String("request_id", c.requestID),
		zap.String("provider", string(c.settings.Provider)),
		zap.String("host", hostOf(req.Endpoint)),
		zap.String("model", c.settings.Model),
		zap.Bool("stream", stream),
	)

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, e.transportError(ctx, c, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer providers.SafeCloseBody(resp.Body)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		classified := providers.ClassifyHTTPError(resp.StatusCode, resp.Header, body, c.settings.Provider)
		e.logger.Warn("provider returned error",
			zap.String("request_id", c.requestID),
			zap.String("provider", string(c.settings.Provider)),
			zap.Int("status", resp.StatusCode),
			zap.String("code", string(classified.Code)),
			zap.Bool("retryable", classified.Retryable),
			zap.Int("retry_after", classified.RetryAfter),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, classified
	}

	e.logger.Debug("response received",
		zap.String("request_id", c.requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// transportError 分类网络层错误。context 已结束时以 context 的原因为准，
// 避免把取消误判为连接中断。
func (e *engine) transportError(ctx context.Context, c call, err error) *llm.Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	classified := providers.ClassifyTransportError(err, c.settings.Provider)
	e.logger.Warn("request failed",
		zap.String("request_id", c.requestID),
		zap.String("provider", string(c.settings.Provider)),
		zap.String("code", string(classified.Code)),
		zap.Bool("retryable", classified.Retryable),
		zap.Error(err),
	)
	return classified
}

func hostOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}

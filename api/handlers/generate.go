package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/wonderland/api"
	"github.com/BaSui01/wonderland/llm"
	"github.com/BaSui01/wonderland/llm/aiservice"
	"go.uber.org/zap"
)

// =============================================================================
// ✨ 生成 Handler
// =============================================================================

// Generator 是 GenerateHandler 依赖的生成能力，*aiservice.Service 实现了它
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (*llm.Response, error)
	GenerateStream(ctx context.Context, prompt, systemPrompt string, onChunk func(string), onComplete func()) error
	GenerateAll(ctx context.Context, prompts []aiservice.Prompt, limit int) ([]*llm.Response, error)
	TestConnection(ctx context.Context) (bool, error)
	Settings() llm.Settings
}

// DefaultMaxBatchItems 单次批量请求的最大条目数
const DefaultMaxBatchItems = 32

// GenerateHandler 生成接口处理器
type GenerateHandler struct {
	generator     Generator
	batchLimit    int
	maxBatchItems int
	logger        *zap.Logger
}

// NewGenerateHandler 创建生成处理器，batchLimit 为批量生成的并发上限（<= 0 不限）
func NewGenerateHandler(generator Generator, batchLimit int, logger *zap.Logger) *GenerateHandler {
	return &GenerateHandler{
		generator:     generator,
		batchLimit:    batchLimit,
		maxBatchItems: DefaultMaxBatchItems,
		logger:        logger.With(zap.String("handler", "generate")),
	}
}

// HandleGenerate 处理非流式生成
// @Summary 生成文本
// @Description 按当前设置调用 Provider，瞬时失败按退避策略重试
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} Response{data=api.GenerateResponse} "生成结果"
// @Failure 400 {object} Response "无效请求或配置错误"
// @Failure 429 {object} Response "上游限流"
// @Failure 502 {object} Response "上游错误"
// @Security ApiKeyAuth
// @Router /v1/generate [post]
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	resp, err := h.generator.Generate(r.Context(), req.Prompt, req.SystemPrompt)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.NewGenerateResponse(resp))
}

// HandleStream 处理流式生成（SSE）。
// 第一个片段之前失败时返回普通 JSON 错误；开始输出之后失败时发送 error 事件。
// 成功结束时发送 data: [DONE]。
// @Summary 流式生成文本
// @Description 以 text/event-stream 返回增量，流式请求不重试
// @Tags 生成
// @Accept json
// @Produce text/event-stream
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/generate/stream [post]
func (h *GenerateHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, ErrInternalError, "streaming not supported", h.logger)
		return
	}

	sse := &sseWriter{w: w, flusher: flusher, logger: h.logger}
	err := h.generator.GenerateStream(r.Context(), req.Prompt, req.SystemPrompt,
		func(content string) {
			sse.data(api.StreamChunk{Content: content})
		},
		func() {
			sse.done()
		},
	)
	if err == nil {
		return
	}
	if !sse.started {
		WriteError(w, err, h.logger)
		return
	}
	h.logger.Warn("stream failed after start", zap.String("code", string(llm.CodeOf(err))), zap.Error(err))
	sse.fail(NewErrorInfo(err))
}

// HandleBatch 处理批量生成
// @Summary 批量生成
// @Description 并发执行多个独立生成，任一失败则整体失败
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.BatchRequest true "批量请求"
// @Success 200 {object} Response{data=api.BatchResponse} "结果，顺序与请求一致"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /v1/generate/batch [post]
func (h *GenerateHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.BatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Items) == 0 {
		WriteErrorMessage(w, ErrInvalidRequest, "items must not be empty", h.logger)
		return
	}
	if len(req.Items) > h.maxBatchItems {
		WriteErrorMessage(w, ErrInvalidRequest, "too many items in batch", h.logger)
		return
	}

	prompts := make([]aiservice.Prompt, len(req.Items))
	for i, item := range req.Items {
		if strings.TrimSpace(item.Prompt) == "" {
			WriteErrorMessage(w, ErrInvalidRequest, "prompt is required for every item", h.logger)
			return
		}
		prompts[i] = aiservice.Prompt{Prompt: item.Prompt, SystemPrompt: item.SystemPrompt}
	}

	results, err := h.generator.GenerateAll(r.Context(), prompts, h.batchLimit)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	out := api.BatchResponse{Results: make([]api.GenerateResponse, len(results))}
	for i, resp := range results {
		out.Results[i] = api.NewGenerateResponse(resp)
	}
	WriteSuccess(w, out)
}

// HandleConnectionTest 处理连接测试
// @Summary 测试 Provider 连接
// @Description 发送固定探测 prompt，回复中包含 connected 视为连通
// @Tags 生成
// @Produce json
// @Success 200 {object} Response{data=api.ConnectionTestResponse} "测试结果"
// @Failure 400 {object} Response "配置错误"
// @Security ApiKeyAuth
// @Router /v1/connection/test [post]
func (h *GenerateHandler) HandleConnectionTest(w http.ResponseWriter, r *http.Request) {
	settings := h.generator.Settings()
	connected, err := h.generator.TestConnection(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.ConnectionTestResponse{
		Connected: connected,
		Provider:  string(settings.Provider),
		Model:     settings.Model,
	})
}

func (h *GenerateHandler) decodeGenerate(w http.ResponseWriter, r *http.Request) (api.GenerateRequest, bool) {
	var req api.GenerateRequest
	if !ValidateContentType(w, r, h.logger) {
		return req, false
	}
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return req, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteErrorMessage(w, ErrInvalidRequest, "prompt is required", h.logger)
		return req, false
	}
	return req, true
}

// =============================================================================
// 🌊 SSE 输出
// =============================================================================

// sseWriter 在第一次输出时才写响应头，这样开始前的失败仍能返回 JSON 错误
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *zap.Logger
	started bool
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) data(v any) {
	s.start()
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode stream chunk", zap.Error(err))
		return
	}
	s.write("data: ", payload)
}

func (s *sseWriter) fail(info *ErrorInfo) {
	s.start()
	// json.Marshal 转义错误消息，防止破坏事件边界
	payload, _ := json.Marshal(info)
	s.write("event: error\ndata: ", payload)
}

func (s *sseWriter) done() {
	s.start()
	s.write("data: ", []byte("[DONE]"))
}

func (s *sseWriter) write(prefix string, payload []byte) {
	buf := make([]byte, 0, len(prefix)+len(payload)+2)
	buf = append(buf, prefix...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	if _, err := s.w.Write(buf); err != nil {
		s.logger.Debug("client went away during stream", zap.Error(err))
		return
	}
	s.flusher.Flush()
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"go.uber.org/zap"
)

// 请求层错误码，与生成错误码共用 ErrorInfo.Code
const (
	ErrInvalidRequest llm.ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   llm.ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    llm.ErrorCode = "RATE_LIMITED"
	ErrInternalError  llm.ErrorCode = "INTERNAL_ERROR"
)

// StatusClientClosedRequest 调用方在响应前断开（nginx 约定）
const StatusClientClosedRequest = 499

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	FriendlyMessage string `json:"friendly_message"`
	Retryable       bool   `json:"retryable,omitempty"`
	RetryAfter      int    `json:"retry_after,omitempty"`
	Provider        string `json:"provider,omitempty"`
	HTTPStatus      int    `json:"-"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已写出，编码失败无法再补救
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// NewErrorInfo 把任意错误转换为对外的错误信息。
// 非 *llm.Error 一律视为 INTERNAL_ERROR，原始消息不对外暴露。
func NewErrorInfo(err error) *ErrorInfo {
	var le *llm.Error
	if !errors.As(err, &le) {
		return &ErrorInfo{
			Code:            string(ErrInternalError),
			Message:         "internal error",
			FriendlyMessage: llm.FriendlyMessage(nil),
			HTTPStatus:      http.StatusInternalServerError,
		}
	}
	return &ErrorInfo{
		Code:            string(le.Code),
		Message:         le.Message,
		FriendlyMessage: llm.FriendlyMessage(le),
		Retryable:       le.Retryable,
		RetryAfter:      le.RetryAfter,
		Provider:        le.Provider,
		HTTPStatus:      mapErrorCodeToHTTPStatus(le.Code),
	}
}

// WriteError 写入错误响应。客户端错误记 Warn，服务端与上游错误记 Error。
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	info := NewErrorInfo(err)

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", info.Code),
			zap.Int("status", info.HTTPStatus),
			zap.Bool("retryable", info.Retryable),
			zap.Error(err),
		}
		if info.HTTPStatus >= 500 {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(info.RetryAfter))
	}
	WriteJSON(w, info.HTTPStatus, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, code llm.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, llm.NewError(code, message), logger)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code llm.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case ErrInvalidRequest, llm.ErrConfiguration:
		return http.StatusBadRequest
	case ErrUnauthorized, llm.ErrInvalidAPIKey:
		return http.StatusUnauthorized
	case llm.ErrModelNotFound:
		return http.StatusNotFound
	case llm.ErrRateLimit, ErrRateLimited:
		return http.StatusTooManyRequests
	case llm.ErrQuotaExceeded:
		return http.StatusPaymentRequired
	case llm.ErrContextLengthExceeded:
		return http.StatusRequestEntityTooLarge
	case llm.ErrCanceled:
		return StatusClientClosedRequest

	// 5xx 服务端与上游错误
	case llm.ErrTimeout:
		return http.StatusGatewayTimeout
	case llm.ErrNetwork, llm.ErrServerError, llm.ErrUnknown:
		return http.StatusBadGateway
	case ErrInternalError:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体（1 MB 限制 + 严格模式），失败时已写出错误响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := llm.NewError(ErrInvalidRequest, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := &llm.Error{Code: ErrInvalidRequest, Message: "invalid JSON body", Cause: err}
		WriteError(w, apiErr, logger)
		return apiErr
	}

	return nil
}

// ValidateContentType 验证 Content-Type
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "application/json; charset=utf-8" {
		WriteErrorMessage(w, ErrInvalidRequest, "Content-Type must be application/json", logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写出字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode   int
	Written      bool
	BytesWritten int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.BytesWritten += int64(n)
	return n, err
}

// Flush 透传给底层 Flusher，SSE 依赖它
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		if !rw.Written {
			rw.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 访问底层 ResponseWriter
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

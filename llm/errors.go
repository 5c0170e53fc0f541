package llm

import (
	"errors"
	"fmt"
)

// ErrorCode 统一的生成错误码，对齐可重试性与用户提示。
type ErrorCode string

const (
	ErrRateLimit             ErrorCode = "RATE_LIMIT"              // 上游限流
	ErrNetwork               ErrorCode = "NETWORK_ERROR"           // 连接失败/中断
	ErrTimeout               ErrorCode = "TIMEOUT"                 // 请求或读取超时
	ErrInvalidAPIKey         ErrorCode = "INVALID_API_KEY"         // 401/403
	ErrQuotaExceeded         ErrorCode = "QUOTA_EXCEEDED"          // 额度/账单
	ErrModelNotFound         ErrorCode = "MODEL_NOT_FOUND"         // 404
	ErrContextLengthExceeded ErrorCode = "CONTEXT_LENGTH_EXCEEDED" // 输入超出上下文窗口
	ErrServerError           ErrorCode = "SERVER_ERROR"            // 5xx
	ErrUnknown               ErrorCode = "UNKNOWN"
	ErrConfiguration         ErrorCode = "CONFIGURATION_ERROR" // 发请求之前的配置校验失败
	ErrCanceled              ErrorCode = "CANCELED"            // 调用方放弃
)

// Error is the single failure type returned by generation calls.
// Values are built by the classifier and never modified afterwards.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Retryable  bool      `json:"retryable"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, 0 when the provider gave no hint
	HTTPStatus int       `json:"http_status,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string { return e.Message }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a non-retryable error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ConfigError reports settings that make a call impossible before any network attempt.
func ConfigError(format string, args ...any) *Error {
	return &Error{Code: ErrConfiguration, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// RetryAfterOf returns the retry-after hint in seconds, 0 when absent.
func RetryAfterOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

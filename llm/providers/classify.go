package providers

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/wonderland/llm"
	"github.com/tidwall/gjson"
)

// maxRawMessageLen 非 JSON 错误体截断长度
const maxRawMessageLen = 300

var (
	// "try again in 60 seconds" / "Please try again in 1.5s" / "retry after 20 s"
	retryAfterPattern = regexp.MustCompile(`(?i)(?:try again in|retry after)\s+(\d+(?:\.\d+)?)\s*(ms|milliseconds?|s|secs?|seconds?)?\b`)

	quotaMarkers         = []string{"insufficient_quota", "billing", "credit balance", "exceeded your current quota"}
	contextLengthMarkers = []string{"context_length_exceeded", "maximum context length", "prompt is too long", "context window"}
	networkMarkers       = []string{"connection refused", "connection reset", "no such host", "network", "fetch failed", "broken pipe", "eof"}
	timeoutMarkers       = []string{"timeout", "timed out", "deadline exceeded"}
)

// ClassifyHTTPError 将 status >= 400 的上游响应映射为 *llm.Error。
// 调用方保证 body 已完整读取；header 可以为 nil。
func ClassifyHTTPError(status int, header http.Header, body []byte, provider llm.ProviderID) *llm.Error {
	detail := ReadErrorMessage(body)
	lower := strings.ToLower(detail + " " + string(body))
	name := displayName(provider)

	e := &llm.Error{
		HTTPStatus: status,
		Provider:   string(provider),
	}

	switch {
	case status == http.StatusPaymentRequired,
		(status == http.StatusBadRequest || status == http.StatusForbidden || status == http.StatusTooManyRequests) && containsAny(lower, quotaMarkers):
		e.Code = llm.ErrQuotaExceeded
		e.Message = "Quota exceeded for " + name + ". Please check your plan and billing details."

	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code = llm.ErrInvalidAPIKey
		e.Message = "Invalid API key for " + name + ". Please check your settings."

	case status == http.StatusNotFound:
		e.Code = llm.ErrModelNotFound
		e.Message = "Model not found on " + name + ". Please choose another model."

	case status == http.StatusTooManyRequests:
		e.Code = llm.ErrRateLimit
		e.Retryable = true
		e.RetryAfter = retryAfterFromHeader(header)
		if e.RetryAfter == 0 {
			e.RetryAfter = ParseRetryAfter(detail)
		}
		if e.RetryAfter > 0 {
			e.Message = "Rate limit exceeded. Please try again in " + strconv.Itoa(e.RetryAfter) + " seconds."
		} else {
			e.Message = "Rate limit exceeded. Please try again later."
		}

	case status == http.StatusBadRequest && containsAny(lower, contextLengthMarkers):
		e.Code = llm.ErrContextLengthExceeded
		e.Message = "The content is too long for this model. Please shorten it or pick a model with a larger context window."

	case status >= 500:
		// 529 = Anthropic overloaded
		e.Code = llm.ErrServerError
		e.Retryable = true
		e.Message = name + " server error (" + strconv.Itoa(status) + "). Please try again later."

	default:
		// 只透传结构化错误字段；原始错误体（HTML、traceback、无可读字段的 JSON）留在 Cause 里供日志使用
		e.Code = llm.ErrUnknown
		if msg := structuredErrorMessage(body); llm.Displayable(msg) {
			e.Message = msg
		} else {
			e.Message = name + " rejected the request (status " + strconv.Itoa(status) + ")."
			if detail != "" {
				e.Cause = errors.New(detail)
			}
		}
	}
	return e
}

// ClassifyTransportError 将请求未得到 HTTP 响应（或读取中断）时的错误映射为 *llm.Error。
func ClassifyTransportError(err error, provider llm.ProviderID) *llm.Error {
	if err == nil {
		return nil
	}
	var typed *llm.Error
	if errors.As(err, &typed) {
		return typed
	}

	e := &llm.Error{Provider: string(provider), Cause: err}

	var netErr net.Error
	var dnsErr *net.DNSError
	lower := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.Canceled):
		e.Code = llm.ErrCanceled
		e.Message = "The request was canceled."

	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		containsAny(lower, timeoutMarkers):
		e.Code = llm.ErrTimeout
		e.Retryable = true
		e.Message = "The request timed out. Please try again."

	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &dnsErr),
		containsAny(lower, networkMarkers):
		e.Code = llm.ErrNetwork
		e.Retryable = true
		e.Message = "Network error. Could not reach " + displayName(provider) + ". Please check your connection."

	default:
		e.Code = llm.ErrUnknown
		e.Message = "An unexpected error occurred while contacting " + displayName(provider) + "."
	}
	return e
}

// ReadErrorMessage 从错误体中提取可读消息。
// 依次尝试 error.message（OpenAI / Anthropic）、error 字符串（Ollama）、message，最后回退到截断的原始文本。
// 回退的原始文本只用于日志与标记匹配，不能直接展示给用户。
func ReadErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if msg := structuredErrorMessage(body); msg != "" {
		return msg
	}
	raw := strings.TrimSpace(string(body))
	if len(raw) > maxRawMessageLen {
		raw = raw[:maxRawMessageLen] + "..."
	}
	return raw
}

// structuredErrorMessage 只读取 JSON 错误体中的已知字符串字段，没有时返回 ""
func structuredErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
			return strings.TrimSpace(r.Str)
		}
	}
	return ""
}

// ParseRetryAfter 从消息文本中提取等待秒数，未找到时返回 0。
// 毫秒级提示向上取整为 1 秒。
func ParseRetryAfter(msg string) int {
	m := retryAfterPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "m") {
		v /= 1000
	}
	return int(math.Ceil(v))
}

// retryAfterFromHeader 支持秒数与 HTTP-date 两种格式
func retryAfterFromHeader(h http.Header) int {
	if h == nil {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			return secs
		}
		return 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return int(math.Ceil(d.Seconds()))
		}
	}
	return 0
}

func displayName(provider llm.ProviderID) string {
	if p, err := llm.LookupProfile(provider); err == nil {
		return p.DisplayName
	}
	if provider == "" {
		return "the provider"
	}
	return string(provider)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Package ctxkeys 定义跨包传递的 context 值，避免各包各自声明键类型。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	subjectKey   contextKey = "subject"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithSubject 设置已认证的调用方
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject 获取已认证的调用方
func Subject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

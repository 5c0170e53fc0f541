// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	rec := testutil.NewStreamRecorder()
//	err := svc.GenerateStream(ctx, prompt, system, rec.OnChunk, rec.OnComplete)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🌐 HTTP 辅助
// =============================================================================

// redirectTransport 把请求的 scheme/host 改写为目标地址，路径与 header 保持不变
type redirectTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.URL.Scheme = rt.target.Scheme
	clone.URL.Host = rt.target.Host
	clone.Host = rt.target.Host
	return rt.base.RoundTrip(clone)
}

// RedirectClient 返回把所有请求发往 target 的 http.Client。
// 用于把固定 endpoint 的请求导向 httptest 服务端。
func RedirectClient(target string) *http.Client {
	u, err := url.Parse(target)
	if err != nil {
		panic(err)
	}
	return &http.Client{Transport: &redirectTransport{target: u, base: http.DefaultTransport}}
}

// =============================================================================
// 🌊 流式辅助
// =============================================================================

// StreamRecorder 记录流式回调，可安全地在多个 goroutine 中使用
type StreamRecorder struct {
	mu        sync.Mutex
	chunks    []string
	completes int
	// 完成回调之后仍收到片段时置位
	chunkAfterComplete bool
}

// NewStreamRecorder 创建流式回调记录器
func NewStreamRecorder() *StreamRecorder {
	return &StreamRecorder{}
}

// OnChunk 作为 onChunk 回调
func (r *StreamRecorder) OnChunk(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completes > 0 {
		r.chunkAfterComplete = true
	}
	r.chunks = append(r.chunks, content)
}

// OnComplete 作为 onComplete 回调
func (r *StreamRecorder) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

// Chunks 返回收到的片段副本
func (r *StreamRecorder) Chunks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// Content 返回所有片段拼接后的内容
func (r *StreamRecorder) Content() string {
	return strings.Join(r.Chunks(), "")
}

// Completions 返回完成回调被调用的次数
func (r *StreamRecorder) Completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}

// ChunkAfterComplete 报告是否在完成之后还收到过片段
func (r *StreamRecorder) ChunkAfterComplete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunkAfterComplete
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertJSONEqual 断言两个值的 JSON 表示相等
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}

	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual: %s", expectedJSON, actualJSON)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}

// MockProvider 是 LLM Provider HTTP 端点的测试模拟实现。
//
// 支持固定响应、脚本化多次响应、流式输出、延迟与错误注入场景。
package mocks

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/wonderland/testutil"
	"github.com/BaSui01/wonderland/testutil/fixtures"
)

// --- MockProvider 结构 ---

// Reply 描述一次 HTTP 响应
type Reply struct {
	Status int
	Header http.Header
	Body   string
	// Chunks 非空时按片段逐个写出并 Flush，模拟流式传输
	Chunks     []string
	ChunkDelay time.Duration
}

// RecordedCall 记录单次请求
type RecordedCall struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// MockProvider 是 Provider 端点的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应脚本，超出部分重复最后一项
	replies []Reply
	delay   time.Duration

	// 调用记录
	calls []RecordedCall

	server *httptest.Server
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider，默认返回 OpenAI 形态的 "Mock response"
func NewMockProvider() *MockProvider {
	return &MockProvider{
		replies: []Reply{{Status: http.StatusOK, Body: fixtures.OpenAIResponse("Mock response")}},
	}
}

// WithResponse 设置固定的 200 响应体
func (m *MockProvider) WithResponse(body string) *MockProvider {
	return m.WithReplies(Reply{Status: http.StatusOK, Body: body})
}

// WithStatus 设置固定的状态码和响应体
func (m *MockProvider) WithStatus(status int, body string) *MockProvider {
	return m.WithReplies(Reply{Status: status, Body: body})
}

// WithReplies 设置按顺序返回的响应脚本
func (m *MockProvider) WithReplies(replies ...Reply) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = replies
	return m
}

// WithStreamChunks 设置流式响应，每个片段单独写出
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	return m.WithReplies(Reply{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/event-stream"}},
		Chunks: chunks,
	})
}

// WithDelay 设置每次响应前的延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// --- 服务端 ---

// Start 启动 httptest 服务端，测试结束时自动关闭
func (m *MockProvider) Start(t testing.TB) *MockProvider {
	t.Helper()
	m.server = httptest.NewServer(http.HandlerFunc(m.serveHTTP))
	t.Cleanup(m.server.Close)
	return m
}

// URL 返回服务端地址
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Client 返回把所有请求重定向到本服务端的 http.Client，
// 用于固定 endpoint 的 Provider（openai、anthropic）
func (m *MockProvider) Client() *http.Client {
	return testutil.RedirectClient(m.server.URL)
}

func (m *MockProvider) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.calls = append(m.calls, RecordedCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	idx := len(m.calls) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	reply := m.replies[idx]
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}

	for k, vs := range reply.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(reply.Chunks) == 0 {
		_, _ = io.WriteString(w, reply.Body)
		return
	}
	flusher, _ := w.(http.Flusher)
	for _, chunk := range reply.Chunks {
		_, _ = io.WriteString(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
		if reply.ChunkDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(reply.ChunkDelay):
			}
		}
	}
}

// --- 调用记录 ---

// Calls 返回所有调用记录的副本
func (m *MockProvider) Calls() []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用，没有调用时返回零值
func (m *MockProvider) LastCall() RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return RecordedCall{}
	}
	return m.calls[len(m.calls)-1]
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

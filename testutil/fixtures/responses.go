// =============================================================================
// 📦 测试数据工厂 - Provider 响应体
// =============================================================================
// 提供各 Provider 的原始响应体（非流式 JSON、流式行、错误体），用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"
	"strings"
)

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// =============================================================================
// 🎯 非流式响应体
// =============================================================================

// OpenAIResponse 返回 chat completions 响应体
func OpenAIResponse(content string) string {
	return OpenAIResponseWithUsage(content, 10, 20)
}

// OpenAIResponseWithUsage 返回带自定义 Token 使用量的 chat completions 响应体
func OpenAIResponseWithUsage(content string, promptTokens, completionTokens int) string {
	return mustJSON(map[string]any{
		"id":     "chatcmpl-001",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	})
}

// AnthropicResponse 返回 messages 响应体
func AnthropicResponse(content string) string {
	return mustJSON(map[string]any{
		"id":          "msg_001",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-3-5-haiku-20241022",
		"content":     []any{map[string]any{"type": "text", "text": content}},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 12, "output_tokens": 8},
	})
}

// OllamaResponse 返回 /api/chat 非流式响应体
func OllamaResponse(content string) string {
	return mustJSON(map[string]any{
		"model":             "llama3.2",
		"message":           map[string]any{"role": "assistant", "content": content},
		"done":              true,
		"prompt_eval_count": 5,
		"eval_count":        7,
	})
}

// =============================================================================
// 🌊 流式响应体
// =============================================================================

// OpenAIStream 返回 SSE 流，每个 delta 一个 data 行，以 [DONE] 结束
func OpenAIStream(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		fmt.Fprintf(&b, "data: %s\n\n", mustJSON(map[string]any{
			"choices": []any{map[string]any{"index": 0, "delta": map[string]string{"content": d}}},
		}))
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

// AnthropicStream 返回 messages 事件流，包含 message_start 与 message_stop
func AnthropicStream(deltas ...string) string {
	var b strings.Builder
	b.WriteString("event: message_start\n")
	fmt.Fprintf(&b, "data: %s\n\n", mustJSON(map[string]any{"type": "message_start", "message": map[string]any{"id": "msg_001"}}))
	for _, d := range deltas {
		b.WriteString("event: content_block_delta\n")
		fmt.Fprintf(&b, "data: %s\n\n", mustJSON(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": d},
		}))
	}
	b.WriteString("event: message_stop\n")
	fmt.Fprintf(&b, "data: %s\n\n", mustJSON(map[string]any{"type": "message_stop"}))
	return b.String()
}

// OllamaStream 返回 NDJSON 流，最后一行 done=true
func OllamaStream(deltas ...string) string {
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(mustJSON(map[string]any{"message": map[string]string{"role": "assistant", "content": d}, "done": false}))
		b.WriteByte('\n')
	}
	b.WriteString(mustJSON(map[string]any{"message": map[string]string{"role": "assistant", "content": ""}, "done": true}))
	b.WriteByte('\n')
	return b.String()
}

// =============================================================================
// ❌ 错误响应体
// =============================================================================

// OpenAIError 返回 OpenAI 形态的错误体
func OpenAIError(message, code string) string {
	return mustJSON(map[string]any{
		"error": map[string]any{"message": message, "type": "invalid_request_error", "code": code},
	})
}

// AnthropicError 返回 Anthropic 形态的错误体
func AnthropicError(errType, message string) string {
	return mustJSON(map[string]any{
		"type":  "error",
		"error": map[string]any{"type": errType, "message": message},
	})
}

// OllamaError 返回 Ollama 形态的错误体
func OllamaError(message string) string {
	return mustJSON(map[string]any{"error": message})
}

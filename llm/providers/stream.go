package providers

import (
	"strings"

	"github.com/tidwall/gjson"
)

const doneSentinel = "[DONE]"

// StreamPayload 从一行流式数据中取出 JSON 负载。
// 支持 SSE 的 "data:" 前缀与裸 JSON 行；"data: [DONE]" 对所有 Provider 都表示结束。
// ok=false 表示空行、事件行、注释行或无效 JSON，调用方应直接跳过。
func StreamPayload(line string) (payload string, done bool, ok bool) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return "", false, false
	case strings.HasPrefix(trimmed, "data:"):
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
		if trimmed == doneSentinel {
			return "", true, true
		}
	case strings.HasPrefix(trimmed, "{"):
	default:
		return "", false, false
	}
	if !gjson.Valid(trimmed) {
		return "", false, false
	}
	return trimmed, false, true
}

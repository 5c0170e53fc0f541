package llm

// Adapter 隔离某个 Provider 的全部协议细节：请求构建、响应解析、流式行解析。
// 每次调用只选择一次 Adapter，调用过程中不再按 Provider 分支。
type Adapter interface {
	// Provider 返回该 Adapter 服务的 Provider 标识
	Provider() ProviderID

	// BuildRequest 构建完整的 HTTP 请求（endpoint、headers、JSON body）
	BuildRequest(prompt, systemPrompt string, stream bool, s Settings) (*Request, error)

	// ParseResponse 解析非流式响应体；字段缺失时降级为空字符串，从不报错
	ParseResponse(body []byte) Response

	// ParseStreamLine 解析一行完整的流式数据；ok=false 表示该行不产生任何 chunk
	ParseStreamLine(line string) (chunk StreamChunk, ok bool)
}

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

包 providers 是所有具体 Provider Adapter 的公共基础层。各服务商子包
（openaicompat、openai、anthropic、ollama）依赖本包完成请求体序列化、
认证 header 构建与错误分类。

# 核心类型

  - OpenAICompat* 系列 — OpenAI 兼容 API 的请求/消息结构体

# 核心函数

  - ClassifyHTTPError — 将 HTTP 状态码 + 错误体映射为语义化的 llm.Error（含 Retryable、RetryAfter）
  - ClassifyTransportError — 将取消、超时、连接失败等传输层错误映射为 llm.Error
  - ReadErrorMessage — 从 OpenAI / Anthropic / Ollama 错误体中提取消息
  - ParseRetryAfter — 从 "try again in N seconds" 类文本中提取等待秒数
  - BearerTokenHeaders / JSONHeaders / MarshalRequest — 请求构建辅助

# 错误映射

  - 401/403 → INVALID_API_KEY；402 或带 insufficient_quota/billing 标记 → QUOTA_EXCEEDED
  - 404 → MODEL_NOT_FOUND；429 → RATE_LIMIT（可重试）
  - 400 + 上下文超长标记 → CONTEXT_LENGTH_EXCEEDED
  - 5xx（含 529）→ SERVER_ERROR（可重试）；其余 4xx → UNKNOWN
*/
package providers

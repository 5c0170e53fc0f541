// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Wonderland HTTP API 的请求处理器实现。

# 概述

handlers 包实现了所有 HTTP 端点的请求处理逻辑，包括文本生成、
设置管理、健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - GenerateHandler  — 非流式生成、SSE 流式生成、批量生成与连接测试
  - SettingsHandler  — 读取/局部更新生成设置、Provider 目录、用量统计
  - HealthHandler    — 存活、就绪与版本（/health, /healthz, /ready, /readyz, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、friendly_message、retryable 与 retry_after
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，支持 Flush
  - HealthCheck      — 就绪检查项（FuncCheck、SettingsCheck），并发执行

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - llm.ErrorCode → HTTP 状态码自动映射，限流错误附带 Retry-After
  - SSE 流式输出：首个片段之前失败返回 JSON 错误，之后失败发送 error 事件
  - 设置热更新：合并后校验通过才生效，进行中的调用不受影响
*/
package handlers

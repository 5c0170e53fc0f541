// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

包 llm 定义生成引擎的公共模型：Provider 标识与静态 Profile 表、调用方设置
Settings、响应 Response、流式 StreamChunk，以及统一错误 Error。各 Provider
子包（openaicompat、openai、anthropic、ollama）实现 Adapter 接口，
factory 包负责按 Provider 选择 Adapter，aiservice 包负责发请求、重试与流式解码。

# 核心类型

  - Settings — 单次调用的不可变设置（provider、api key、endpoint、model、max tokens、temperature）
  - ProviderProfile — 默认 endpoint 与可选模型列表
  - Adapter — 请求构建 / 响应解析 / 流式行解析三件套
  - Error — 带错误码、可重试标记与 retry-after 提示的错误

# 错误处理

  - 配置错误（CONFIGURATION_ERROR）在任何网络请求之前返回，不可重试
  - FriendlyMessage 把任意错误转换为面向用户的一句话
*/
package llm

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

包 anthropic 提供 Anthropic Messages API 的 Adapter 实现。

# 协议差异

  - 认证使用 x-api-key 请求头（非 Bearer Token），并携带 anthropic-version
  - system 提示词单独传递到 system 字段，messages 只含 user 消息
  - 流式 SSE 事件结构独立：content_block_delta 携带 delta.text，message_stop 表示结束
*/
package anthropic

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

包 openai 提供 OpenAI Chat Completions 的 Adapter 实现。请求总是发往固定的
https://api.openai.com/v1/chat/completions，settings 中的 endpoint 覆盖被忽略。

# 核心结构体

  - Adapter — 嵌入 openaicompat.Adapter，固定 Bearer 认证
  - WithOrganization — 可选 OpenAI-Organization header
*/
package openai

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 提供面向 LLM 流式输出的行缓冲解码器。

# 概述

上游的 SSE（OpenAI、Anthropic、OpenAI 兼容端点）与 NDJSON（Ollama）都以
"一行一个事件"的方式到达，但网络分片可能在任意字节处断开。Decoder 负责：

  - 按 '\n' 切分，保留不完整的尾部直到下一次 Feed。
  - 去掉行尾 '\r'，跳过空行。
  - 把完整行交给 Provider 的 LineParser，按顺序输出 StreamChunk。
  - 收到结束信号后停止解析；EOF 时由 Flush 处理最后一段残留数据。

# 核心接口

  - LineParser — 单行解析，llm.Adapter 满足该接口。
  - Decoder — 单次调用内使用的解码状态机，输出与分片方式无关。
*/
package streaming

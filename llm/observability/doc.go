// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 observability 提供生成调用的可观测性能力，涵盖指标采集、
分布式追踪与成本核算。

# 概述

本包基于 OpenTelemetry 标准，为每一次生成请求记录 Span 与指标：
延迟、Token 消耗、错误码、重试次数与流式片段数。

# 核心接口

  - Metrics：基于 OpenTelemetry Meter 的指标收集器，提供请求计数、
    Token 计数、重试计数、延迟直方图、成本直方图与活跃请求数。
  - CostCalculator：成本计算器，内置 OpenAI 与 Anthropic 模型价格表，支持动态更新。
  - CostTracker：进程级成本追踪器，实时汇总 Token 与费用统计。

# 主要能力

  - 每个请求一个 Span（llm.generate / llm.generate_stream），重试记录为 Span 事件。
  - 错误按 llm.ErrorCode 维度计数，Span 状态置为 Error。
  - Ollama 与自定义端点不计费。
*/
package observability

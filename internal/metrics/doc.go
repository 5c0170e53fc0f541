// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP 入口
与生成请求两个维度。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 向量指标。
    NewCollector 注册到默认 Registerer，NewCollectorWith 可注入独立
    Registry（测试中避免重复注册）。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 生成指标：请求总数（generate/stream）、耗时、Token 用量、
    估算成本、按错误码分组的错误数与重试数、流式片段数。
*/
package metrics

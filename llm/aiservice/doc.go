// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 aiservice 是文本生成的进程内入口，把 Provider Adapter、请求引擎、
重试控制与流式解码组合成 Generate / GenerateStream 两个调用。

# 调用流程

	Service.Generate -> retry.Retryer -> engine.do -> Adapter.BuildRequest
	  -> http.Client.Do -> providers.ClassifyHTTPError | Adapter.ParseResponse

	Service.GenerateStream -> engine.stream -> streaming.Decoder
	  -> onChunk ... -> onComplete（成功时恰好一次）

# 约定

  - 每次调用读取一份 Settings 快照（atomic.Pointer），UpdateSettings
    不影响进行中的调用。
  - 配置错误（缺少 API Key、模型、移动端 Ollama 等）在任何网络请求之前以
    CONFIGURATION_ERROR 返回。
  - 返回的错误总是 *llm.Error；流式调用不重试。
  - 网络调用、退避等待、流式读取与出站限流都响应 context 取消；
    Options.RequestTimeout 为每次请求（或整个流）设置截止时间。
  - GenerateAll 通过 errgroup 限制并发，结果与输入一一对应。
*/
package aiservice

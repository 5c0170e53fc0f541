// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 Wonderland 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - HTTP 辅助: RedirectClient 把固定 endpoint 的请求导向 httptest 服务端
  - 流式辅助: StreamRecorder 记录 onChunk / onComplete 回调顺序与次数
  - 断言与数据工具: AssertJSONEqual / AssertEventuallyTrue / MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider，基于 httptest 的 Provider 端点模拟，
    支持 Builder 模式、脚本化响应、流式分片与错误注入
  - testutil/fixtures: 各 Provider 的原始响应体、流式行与错误体样例

# 使用示例

	provider := mocks.NewMockProvider().
		WithResponse(fixtures.OpenAIResponse("hello")).
		Start(t)
	svc := aiservice.New(settings, aiservice.Options{HTTPClient: provider.Client()})
	resp, err := svc.Generate(testutil.TestContext(t), "hi", "")
*/
package testutil

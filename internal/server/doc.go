// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 Wonderland 的 API 端口与 metrics 端口的监听生命周期。

Manager 包装 net/http.Server：Start/StartTLS 先同步完成 Listen，
端口冲突等错误直接返回给调用方，随后在后台 goroutine 中 Serve，
运行期错误通过 Errors() 通道上报。

关闭时先在 ShutdownTimeout 内等待请求排空；超时后取消所有请求
context 的共同父 context。SSE 流式生成因此会收到取消信号并停止读取
上游，而不会让进程一直等到流自然结束。

WaitForShutdown 阻塞直到 SIGINT/SIGTERM 或服务异常退出。
*/
package server

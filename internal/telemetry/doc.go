// Package telemetry 负责 OpenTelemetry SDK 的初始化与关闭。
// 生成请求的 span 与 meter 都从这里的 Providers 取得；
// 未启用时返回 noop 实现，不会连接 collector。
package telemetry

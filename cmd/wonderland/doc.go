// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 Wonderland 服务端与命令行入口。

# 概述

cmd/wonderland 既是 HTTP API 服务，也是直接调用 Provider 的命令行工具。
配置来自 YAML 文件与 WONDERLAND_ 前缀的环境变量，日志使用 zap，
指标通过 Prometheus 暴露，追踪通过 OpenTelemetry 导出。

# 核心类型

  - Server      — 主服务器，管理 API 与 Metrics 两个端口、热更新及优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、generate、stream、ping、providers、health、version
  - 中间件链：Recovery、RequestID、OTelTracing、MetricsMiddleware、
    SecurityHeaders、RequestLogger、CORS、RateLimiter（基于 IP）、
    Authenticate（X-API-Key 或 HS256 Bearer JWT）
  - 配置热更新：ai、retry 段与日志级别在文件变更后直接生效
  - Metrics 服务器：独立端口暴露 /metrics，端口为 0 时关闭
  - 优雅关闭：信号监听 → 停止热更新 → 关闭 API → 关闭 Metrics → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main

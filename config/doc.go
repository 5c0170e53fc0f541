// Package config 提供 Wonderland 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → WONDERLAND_* 环境变量 的顺序合并，
// 覆盖生成设置、重试策略、宿主网络能力、HTTP 服务、鉴权、日志与遥测。
// HotReloadManager 轮询配置文件，变更后重新加载并通知回调，
// AI 设置与重试策略可以在运行中生效。
package config

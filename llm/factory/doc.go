// Package factory 提供 Adapter 的集中式工厂，
// 按 Provider 标识选择 Adapter，打破 llm 包与各 provider 子包之间的循环依赖。
package factory

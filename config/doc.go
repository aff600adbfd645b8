// Package config 提供 StepFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → STEPFLOW_* 环境变量 的顺序叠加，
// 最后运行注册的验证器。Config.Validate 汇总所有错误一次返回。
package config

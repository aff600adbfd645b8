// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 是 stepflow 工作流引擎的命令行入口。

# 子命令

  - serve      启动 API 服务器与 Metrics 服务器，收到 SIGINT/SIGTERM 后优雅关闭
  - run        执行一次模板，把实例快照以 JSON 输出到 stdout
  - templates  列出已加载的模板，或以 YAML/JSON 导出单个模板
  - health     请求运行中服务的 /health
  - version    打印构建信息（Version、BuildTime、GitCommit 由 ldflags 注入）

# 装配

buildRuntime 按配置创建 Provider 注册表、探活监控、资源采样器、
调用指标记录器（可选 GORM 归档）、Provider 调度器、通知 Sink
（log / webhook / redis）与工作流引擎。serve 额外挂接 Prometheus
Collector 与 OpenTelemetry tracer。

# 中间件

API 服务器的处理链依次为 Recovery、RequestID、SecurityHeaders、
OTelTracing、RequestLogger、MetricsMiddleware。
*/
package main

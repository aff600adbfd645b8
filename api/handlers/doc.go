// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 stepflow HTTP API 的请求处理器实现。

# 概述

所有 Handler 均遵循标准 net/http 接口，路由由 cmd/stepflow 使用
Go 1.22 的方法 + 路径模式注册。响应统一为 Response 结构，
错误经 types.Error 的错误码映射为 HTTP 状态码。

# 核心类型

  - HealthHandler：/health, /healthz, /ready, /version
  - MetricsHandler：/v1/metrics/summary 与 /v1/metrics/calls
  - WorkflowHandler：模板列表、实例状态查询，以及 POST /v1/templates/{id}/run 同步执行
  - HealthCheck：可插拔就绪检查，NewFuncCheck / NewProviderCheck
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码与字节数
*/
package handlers

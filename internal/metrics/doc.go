// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 把 stepflow 进程内的事件导出为 Prometheus 指标。

# 概述

Collector 通过 promauto 注册指标，默认注册到全局 Registry，
也可通过 NewCollectorWith 指定 Registerer。所有指标按 namespace 隔离。
Collector 的方法签名与各事件回调对齐，服务启动时直接挂接：

  - ObserveCall    → observability.Recorder.OnCall
  - ObserveAlert   → observability.Recorder.OnAlert
  - ObserveProbe   → llm.HealthMonitor.SetObserver
  - ObserveWorkflow / ObserveStep → workflow.WithObserver

# 指标分组

  - HTTP：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - Provider 调用：调用总数（success/error）、延迟、Token 用量、估算成本。
  - 探活：provider_up Gauge 与探测延迟。
  - 告警与健康：告警计数、四级健康分类 Gauge。
  - 工作流：实例执行终态与耗时、步骤执行按类型计数与耗时。
  - 数据库：连接池 Gauge 与查询耗时。
*/
package metrics

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 stepflow 的 HTTP/HTTPS 监听生命周期。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与异步
错误传播。serve 命令为 API 与 Prometheus 指标各启动一个 Manager。
配置了证书时使用 tlsutil 的加固 TLS 设置以 HTTPS 启动。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与错误通道，
    提供 Start/Shutdown/Wait 生命周期方法。
  - Config：监听地址、读写与空闲超时、请求头上限、关闭超时与证书路径。
    FromServerConfig 从应用配置派生。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内排空请求。
  - 等待退出：Wait 在 ctx 结束（通常由 signal.NotifyContext 触发）
    或服务异常退出时关闭服务器。
  - 状态查询：Name/Addr/ListenAddr/IsRunning。
*/
package server

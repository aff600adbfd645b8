// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package notify 定义通知渠道能力 Sink 及其实现。

  - LogSink：写入 zap 日志
  - WebhookSink：JSON POST，非 2xx 视为拒绝
  - RedisSink：PUBLISH 到频道，可选保留最近 N 条历史

Registry 按名称解析 Sink，名称为空时使用默认 Sink。
发送失败以错误返回，由调用方（通知步骤）视为步骤失败。
*/
package notify

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package openaicompat 提供 OpenAI 兼容 Chat Completions API 的 HTTP 后端。

API Key 以引用形式配置（env:NAME / file:/path），每次请求时解析；
健康检查调用 /v1/models。上游错误按 HTTP 状态映射为 types.Error。
*/
package openaicompat

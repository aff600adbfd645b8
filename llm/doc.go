// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、有序注册表、
调度器（选择 + 单次回退）、主动探活与 API Key 引用解析。

# Provider 抽象

核心接口是 [Provider]，包含 Completion / HealthCheck / Name。
具体后端见 llm/providers/openaicompat。

# 调度策略

[Dispatcher.Generate] 按以下顺序选择后端：

 1. GenerateOptions.PreferredProvider（已注册且可达）
 2. TaskHint 静态映射（creative → claude，analytical/coding → openai）
 3. 注册顺序中第一个可达的 Provider

所选后端失败（或无可选后端）时，回退到注册顺序中的下一个 Provider，
仅一次，不重试同一后端，不做退避。两次都失败返回 NO_PROVIDER_AVAILABLE。
每次尝试（无论成败）都会上报给 [MetricsRecorder]。

# 可达性

[HealthMonitor] 周期性调用各后端的 HealthCheck；最近一次探活失败的
Provider 视为不可达，从未探活的 Provider 视为可达。

# API Key 引用

[ProviderConfig].APIKeyRef 支持 env:NAME 与 file:/path，
由 [ResolveAPIKey] 在每次请求时解析。
*/
package llm

// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供基于模板的工作流编排与执行引擎。

# 概述

模板（Template）声明一组带依赖关系的步骤；实例化器（Instantiator）将调用方
变量代入步骤配置中的 {{variable}} 占位符，生成处于 pending 状态的实例；
调度器（Scheduler）按轮次执行实例：每一轮并发执行所有依赖已满足的步骤，
整批完成后才进入下一轮。

# 核心类型

  - Template / StepDescriptor：工作流模板与步骤声明
  - StepConfig：按步骤类型区分的配置（ProviderCallConfig、
    TransformConfig、ValidateConfig、NotifyConfig）
  - TemplateRegistry：模板注册表（注册时校验，无更新接口）
  - Instantiator：变量代入（默认宽松，可选严格模式）
  - Instance / StepResult：运行实例与步骤结果
  - Scheduler：轮次调度器（errgroup 并发 + 可选并发上限）
  - Executors：provider_call / data_transform / validate / notify 执行器
  - Engine：控制面（RegisterTemplate、Instantiate、Execute、
    GetStatus、ListRunning）

# 占位符

实例化阶段只替换调用方提供的变量；未知的 {{key}} 原样保留。执行阶段
{{step}} 渲染为前序步骤的 Output，{{step.field}} 渲染为其 Fields 中的字段。

# 内置模板

  - emotion-analysis：preprocess → analyze / risk-assess（并行）→ insight
  - journal-summary：clean → summarize → validate-summary → notify
*/
package workflow

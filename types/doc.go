// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 stepflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、llm、notify
等上层模块提供统一的错误体系与 context 传播工具，避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误，含 Step、Provider、HTTPStatus、Retryable
  - NewStepError：步骤失败包装（携带失败步骤名与原因）

# 主要能力

  - 错误工具链：AsError / IsCode / GetErrorCode / IsRetryable
  - Context 传播：WithTraceID / WithWorkflowID / WithStepName
*/
package types

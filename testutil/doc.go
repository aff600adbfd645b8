// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 stepflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 日志: TestLogger（zaptest）
  - 组件装配: NewProviderStack 以 mock providers 构建注册表、记录器与调度器
  - 异步断言: AssertEventuallyTrue / WaitFor

# 子包

  - testutil/mocks: MockProvider（llm.Provider）与 MockSink（notify.Sink），
    均支持 Builder 模式与错误注入
*/
package testutil

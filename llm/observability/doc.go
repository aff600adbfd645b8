// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 observability 提供 Provider 调用的指标记录、成本核算与健康分类。

# 核心类型

  - Recorder：线程安全的调用记录器。RecordCall 追加 CallMetric，
    Summary(window) 汇总调用数、平均延迟、token、成本、错误率与健康等级，
    Prune(retention) 按保留窗口裁剪（默认 7 天，周期执行）。
  - CostCalculator：按模型 ID 的每 token 价格表，
    成本 = tokens * (输入单价 + 输出单价) / 2；未知模型成本为 0。
  - ResourceSampler：周期采集 CPU 与内存使用，健康等级按
    max(cpu, mem) 分为 excellent / good / warning / critical。
  - GormArchive：将裁剪掉的指标写入关系数据库。

# 告警

延迟超过 10s 或最近窗口错误率超过 5% 的样本会立即通过
OnAlert 注册的回调上报。
*/
package observability

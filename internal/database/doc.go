// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 按配置打开 GORM 数据库并管理连接池，为调用指标归档提供存储。

# 概述

Open 根据 config.DatabaseConfig.Driver 选择方言（postgres、mysql，
或纯 Go 的 glebarez/sqlite），随后由 PoolManager 统一设置连接池参数、
运行后台健康检查，并把连接池统计推给 StatsObserver（serve 命令
将其接到 Prometheus 的 db_connections_* 指标）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB/Ping/Stats/Close。
  - PoolConfig：最大空闲与打开连接数、生命周期、空闲超时、健康检查间隔。
  - PoolStats：友好格式的连接池统计。
*/
package database

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 Provider 调用
与会话回合两个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter 与 Histogram 向量指标，
    同时实现 conversation.Observer，由回合循环直接驱动。

# 主要能力

  - Provider 指标：请求总数、请求耗时，按 provider/model/status 分组。
  - 重试指标：额外重试次数计数，按 agent 分组。
  - Token 指标：prompt/completion 用量，按 agent 分组。
  - 会话指标：回合结果计数（completed/failed）、状态转换计数。
*/
package metrics

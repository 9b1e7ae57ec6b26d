/*
Package workflow 提供带类型状态的有向无环图执行引擎，以及获客工作流的装配。

# 核心类型

  - StateGraph[S]：构建器，AddNode / AddEdge（START、END 为虚拟节点）
  - CompiledGraph[S]：Compile 校验后的图，Invoke 按拓扑顺序执行节点
  - Channel[T]：带版本号的状态值，更新经 Reducer 合并
  - Reducer[T]：LastValueReducer、AppendReducer、OrReducer

# 校验规则

Compile 拒绝：空图、缺少 START 出边、未知或重复节点、环、从 START 不可达的节点、
无法到达 END 的节点。所有问题一次性报告，错误链包含 ErrInvalidGraph。

# 获客工作流

NewLeadGraph 编译 START → leadbot → emailagent → END。leadbot 节点驱动一轮对话并
写入 latest_lead / lead_saved；emailagent 节点在存在 latest_lead 时发信并写入
emails_sent。投递失败只记录日志，不中断工作流。
*/
package workflow

// Package leadbot 实现获客对话 Agent。
//
// 每轮对话依次执行：关键词意图识别、LLM 目标判定、姓名与邮箱抽取、回复生成。
// 目标达成且已知邮箱时先发确认问题，用户确认没有其他需求后生成摘要并写入线索库。
// 所有 LLM 失败都降级为固定回复，不会让请求失败。
package leadbot

// Package emailagent 根据线索摘要生成个性化营销邮件并通过 SMTP 发送。
//
// 单条发送（SendToLead）在投递后回写 SENT 或 FAILED；批量营销（RunCampaign）
// 以有界并发遍历线索库，成功的标记为 "Email Sent"。模型失败时使用固定的兜底邮件。
package emailagent

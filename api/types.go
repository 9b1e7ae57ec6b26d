package api

import (
	"github.com/technosurge/leadflow/types"
)

// RootMessage GET / 的固定回复
const RootMessage = "🚀 Technosurge Multi-Agent Workflow API is running!"

// =============================================================================
// 💬 对话
// =============================================================================

// ChatRequest POST /chat/{session_id} 请求体
// @Description 访客发送的一条消息
type ChatRequest struct {
	Message string `json:"message" example:"Hi, I'm Ana. We need an AI receptionist."`
}

// ChatReply POST /chat/{session_id} 响应体，保持与聊天组件约定的扁平结构
type ChatReply struct {
	Status     string     `json:"status" example:"ok"`
	AIReply    string     `json:"ai_reply"`
	Lead       types.Lead `json:"lead"`
	LeadSaved  bool       `json:"lead_saved"`
	EmailsSent bool       `json:"emails_sent"`
	// Ended 对话是否已收尾
	Ended bool `json:"ended"`
}

// =============================================================================
// 🔀 工作流
// =============================================================================

// WorkflowRunRequest POST /workflow/run 请求体
type WorkflowRunRequest struct {
	Messages   []types.Message `json:"messages"`
	LatestLead *types.Lead     `json:"latest_lead,omitempty"`
}

// WorkflowRunResponse 工作流最终状态
type WorkflowRunResponse struct {
	Messages   []types.Message `json:"messages"`
	LeadSaved  bool            `json:"lead_saved"`
	EmailsSent bool            `json:"emails_sent"`
	LatestLead *types.Lead     `json:"latest_lead"`
	Ended      bool            `json:"ended"`
}

// =============================================================================
// 📣 批量营销
// =============================================================================

// CampaignResponse POST /api/v1/campaign 响应数据
type CampaignResponse struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

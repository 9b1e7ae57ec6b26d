package workflow

import (
	"context"

	"github.com/technosurge/leadflow/agent/leadbot"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// 获客工作流的图名与节点名
const (
	LeadGraphName  = "leadflow"
	NodeLeadBot    = "leadbot"
	NodeEmailAgent = "emailagent"
)

// LeadState 获客工作流状态。节点只返回增量，由 MergeLeadState 合并。
type LeadState struct {
	Messages   []types.Message `json:"messages"`
	LeadSaved  bool            `json:"lead_saved"`
	EmailsSent bool            `json:"emails_sent"`
	LatestLead *types.Lead     `json:"latest_lead"`
	Ended      bool            `json:"ended"`
}

// MergeLeadState 消息追加，标志位一旦置位保持，线索取最新的非空值
func MergeLeadState(current, update LeadState) LeadState {
	out := current
	out.Messages = AppendReducer[types.Message]()(current.Messages, update.Messages)
	flag := OrReducer()
	out.LeadSaved = flag(current.LeadSaved, update.LeadSaved)
	out.EmailsSent = flag(current.EmailsSent, update.EmailsSent)
	out.Ended = flag(current.Ended, update.Ended)
	if update.LatestLead != nil {
		lead := *update.LatestLead
		out.LatestLead = &lead
	}
	return out
}

// Conversationalist 从完整消息列表驱动一轮对话，leadbot.Bot 实现了它
type Conversationalist interface {
	RunFromMessages(ctx context.Context, messages []types.Message, prev *types.Lead) leadbot.Reply
}

// LeadMailer 给单条线索发信，emailagent.Agent 实现了它
type LeadMailer interface {
	SendToLead(ctx context.Context, lead types.Lead) (bool, error)
}

// NewLeadGraph 编译 START → leadbot → emailagent → END
func NewLeadGraph(bot Conversationalist, mailer LeadMailer, logger *zap.Logger, opts ...CompileOption) (*CompiledGraph[LeadState], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "workflow"))

	leadbotNode := func(ctx context.Context, s LeadState) (LeadState, error) {
		log.Info("leadbot agent started", zap.Int("messages", len(s.Messages)))
		r := bot.RunFromMessages(ctx, s.Messages, s.LatestLead)
		lead := r.Lead
		return LeadState{
			Messages:   []types.Message{types.NewAssistantMessage(r.Text)},
			LeadSaved:  r.Saved,
			LatestLead: &lead,
			Ended:      r.Ended,
		}, nil
	}

	emailNode := func(ctx context.Context, s LeadState) (LeadState, error) {
		log.Info("email agent started")
		if s.LatestLead == nil {
			log.Warn("no latest lead found, skipping email")
			return LeadState{}, nil
		}
		sent, err := mailer.SendToLead(ctx, *s.LatestLead)
		if err != nil {
			log.Error("email delivery failed", zap.String("email", s.LatestLead.Email), zap.Error(err))
		}
		return LeadState{EmailsSent: sent}, nil
	}

	opts = append([]CompileOption{WithLogger(logger)}, opts...)
	return NewStateGraph[LeadState](LeadGraphName).
		WithReducer(MergeLeadState).
		AddNode(NodeLeadBot, leadbotNode).
		AddNode(NodeEmailAgent, emailNode).
		AddEdge(START, NodeLeadBot).
		AddEdge(NodeLeadBot, NodeEmailAgent).
		AddEdge(NodeEmailAgent, END).
		Compile(opts...)
}

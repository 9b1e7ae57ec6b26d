package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/technosurge/leadflow/api"
	"github.com/technosurge/leadflow/types"
	"github.com/technosurge/leadflow/workflow"
	"go.uber.org/zap"
)

// GraphRunner 执行一次获客工作流，*workflow.CompiledGraph[workflow.LeadState] 实现了它
type GraphRunner interface {
	Invoke(ctx context.Context, state workflow.LeadState) (workflow.LeadState, error)
}

// WorkflowHandler 处理 POST /workflow/run
type WorkflowHandler struct {
	graph  GraphRunner
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(graph GraphRunner, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{graph: graph, logger: logger.With(zap.String("handler", "workflow"))}
}

func validateMessages(msgs []types.Message) *types.Error {
	for i, m := range msgs {
		switch m.Role {
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
		default:
			return types.NewInvalidRequestError(fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role))
		}
	}
	return nil
}

// HandleRun 用请求中的消息运行一次 leadbot → emailagent 并返回最终状态
func (h *WorkflowHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req api.WorkflowRunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateMessages(req.Messages); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	out, err := h.graph.Invoke(r.Context(), workflow.LeadState{
		Messages:   req.Messages,
		LatestLead: req.LatestLead,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			WriteError(w, types.NewError(types.ErrUpstreamTimeout, "workflow run timed out").WithCause(err), h.logger)
			return
		}
		WriteError(w, types.NewInternalError("workflow run failed", err), h.logger)
		return
	}

	WriteSuccess(w, api.WorkflowRunResponse{
		Messages:   out.Messages,
		LeadSaved:  out.LeadSaved,
		EmailsSent: out.EmailsSent,
		LatestLead: out.LatestLead,
		Ended:      out.Ended,
	})
}

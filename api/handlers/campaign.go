package handlers

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/technosurge/leadflow/agent/emailagent"
	"github.com/technosurge/leadflow/api"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// CampaignRunner 执行批量营销，emailagent.Agent 实现了它
type CampaignRunner interface {
	RunCampaign(ctx context.Context) (emailagent.CampaignResult, error)
}

// CampaignHandler 处理 POST /api/v1/campaign，同一时间只允许一次批量发送
type CampaignHandler struct {
	runner  CampaignRunner
	running atomic.Bool
	logger  *zap.Logger
}

// NewCampaignHandler 创建批量营销处理器
func NewCampaignHandler(runner CampaignRunner, logger *zap.Logger) *CampaignHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignHandler{runner: runner, logger: logger.With(zap.String("handler", "campaign"))}
}

// HandleRun 同步执行批量发送并返回统计
func (h *CampaignHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		WriteErrorMessage(w, http.StatusConflict, types.ErrInvalidRequest, "a campaign is already running", h.logger)
		return
	}
	defer h.running.Store(false)

	res, err := h.runner.RunCampaign(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	h.logger.Info("campaign completed via API",
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	WriteSuccess(w, api.CampaignResponse{
		Total:   res.Total,
		Sent:    res.Sent,
		Failed:  res.Failed,
		Skipped: res.Skipped,
	})
}

package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/technosurge/leadflow/agent/leadbot"
	"github.com/technosurge/leadflow/api"
	"github.com/technosurge/leadflow/internal/session"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// 会话 ID 与单条消息的长度上限
const (
	maxSessionIDLen = 128
	maxMessageLen   = 4000
)

// 每轮对话的结果标签
const (
	TurnContinued = "continued"
	TurnEnded     = "ended"
	TurnSaved     = "saved"
)

// =============================================================================
// 💬 Chat Handler
// =============================================================================

// ChatBot 处理一轮对话，leadbot.Bot 实现了它
type ChatBot interface {
	Respond(ctx context.Context, userMsg string, prev *types.Lead, history []types.Message) leadbot.Reply
}

// LeadEmailer 对话收尾后给线索发信，emailagent.Agent 实现了它
type LeadEmailer interface {
	SendToLead(ctx context.Context, lead types.Lead) (bool, error)
}

// ChatRecorder 接收对话指标，metrics.Collector 实现了它
type ChatRecorder interface {
	RecordChatTurn(outcome string)
	SetActiveSessions(n int)
}

// ChatHandler 处理 /chat 与 /ws/chat
type ChatHandler struct {
	sessions session.Store
	locker   *session.Locker
	bot      ChatBot
	mailer   LeadEmailer
	recorder ChatRecorder
	origins  []string
	logger   *zap.Logger
}

// ChatOption ChatHandler 选项
type ChatOption func(*ChatHandler)

// WithChatRecorder 设置对话指标接收方
func WithChatRecorder(r ChatRecorder) ChatOption {
	return func(h *ChatHandler) { h.recorder = r }
}

// WithAllowedOrigins 设置 websocket 允许的来源（与 CORS 配置一致）
func WithAllowedOrigins(origins []string) ChatOption {
	return func(h *ChatHandler) { h.origins = origins }
}

// NewChatHandler 创建对话处理器
func NewChatHandler(sessions session.Store, bot ChatBot, mailer LeadEmailer, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{
		sessions: sessions,
		locker:   session.NewLocker(),
		bot:      bot,
		mailer:   mailer,
		logger:   logger.With(zap.String("handler", "chat")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleChat 处理 POST /chat/{session_id}
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	reply, err := h.Turn(r.Context(), r.PathValue("session_id"), req.Message)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, reply)
}

func validateSessionID(sessionID string) *types.Error {
	switch {
	case sessionID == "":
		return types.NewInvalidRequestError("session_id is required")
	case len(sessionID) > maxSessionIDLen:
		return types.NewInvalidRequestError("session_id is too long")
	}
	return nil
}

func validateTurn(sessionID, message string) *types.Error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	switch {
	case message == "":
		return types.NewInvalidRequestError("message is required")
	case utf8.RuneCountInString(message) > maxMessageLen:
		return types.NewInvalidRequestError("message is too long")
	}
	return nil
}

// Turn 执行一轮对话：加载会话、调用 LeadBot、保存会话，收尾时发信。
// 同一会话的并发请求按到达顺序串行执行。
func (h *ChatHandler) Turn(ctx context.Context, sessionID, message string) (api.ChatReply, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if err := validateTurn(sessionID, message); err != nil {
		return api.ChatReply{}, err
	}
	ctx = types.WithSessionID(ctx, sessionID)
	log := h.logger.With(zap.String("session_id", sessionID))
	if id, ok := types.RequestID(ctx); ok {
		log = log.With(zap.String("request_id", id))
	}

	unlock := h.locker.Lock(sessionID)
	defer unlock()

	sess, ok, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return api.ChatReply{}, types.NewError(types.ErrServiceUnavailable, "session store unavailable").WithCause(err)
	}
	if !ok {
		sess = session.New(sessionID)
		log.Info("new chat session")
	}

	prev := sess.Lead
	prev.SessionID = sessionID
	reply := h.bot.Respond(ctx, message, &prev, sess.Messages)

	sess.Lead = reply.Lead
	sess.Messages = reply.Messages
	sess.Ended = reply.Ended

	emailsSent := false
	if reply.Ended && reply.Lead.HasEmail() && h.mailer != nil {
		sent, err := h.mailer.SendToLead(ctx, reply.Lead)
		if err != nil {
			log.Error("follow-up email failed", zap.String("email", reply.Lead.Email), zap.Error(err))
		}
		emailsSent = sent
		sess.EmailSent = sess.EmailSent || sent
	}

	sess.UpdatedAt = time.Now().UTC()
	if err := h.sessions.Save(ctx, sess); err != nil {
		// 回复已生成，会话丢失只影响下一轮的上下文
		log.Error("failed to save session", zap.Error(err))
	}
	h.observe(ctx, reply)

	return api.ChatReply{
		Status:     "ok",
		AIReply:    reply.Text,
		Lead:       reply.Lead,
		LeadSaved:  reply.Saved,
		EmailsSent: emailsSent,
		Ended:      reply.Ended,
	}, nil
}

func (h *ChatHandler) observe(ctx context.Context, reply leadbot.Reply) {
	if h.recorder == nil {
		return
	}
	outcome := TurnContinued
	switch {
	case reply.Saved:
		outcome = TurnSaved
	case reply.Ended:
		outcome = TurnEnded
	}
	h.recorder.RecordChatTurn(outcome)
	if n, err := h.sessions.Count(ctx); err == nil {
		h.recorder.SetActiveSessions(n)
	}
}

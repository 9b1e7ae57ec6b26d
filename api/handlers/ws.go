package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/technosurge/leadflow/api"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// wsReadLimit 单帧上限
const wsReadLimit = 64 << 10

// wsWriteTimeout 单帧写超时
const wsWriteTimeout = 10 * time.Second

// originPatterns 把 CORS 来源（含协议）转换为 websocket 的 host 匹配模式
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case o == "*":
			return []string{"*"}
		case strings.Contains(o, "://"):
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				out = append(out, u.Host)
			}
		default:
			out = append(out, o)
		}
	}
	return out
}

// HandleWebSocket 处理 GET /ws/chat/{session_id}。
// 每个文本帧 {"message": "..."} 对应一个 ChatReply 帧；校验失败回一个错误帧并继续。
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("session_id"))
	if err := validateSessionID(sessionID); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.origins),
	})
	if err != nil {
		// Accept 已写出响应
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	log := h.logger.With(zap.String("session_id", sessionID))
	log.Debug("websocket connected")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				log.Debug("websocket closed by client")
			} else {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		var req api.ChatRequest
		if typ != websocket.MessageText || json.Unmarshal(data, &req) != nil {
			// 坏帧不断开连接
			if err := h.writeFrame(ctx, conn, errorFrame(types.NewInvalidRequestError("expected a JSON text frame"))); err != nil {
				return
			}
			continue
		}

		var frame any
		reply, err := h.Turn(ctx, sessionID, req.Message)
		if err != nil {
			apiErr, ok := types.AsError(err)
			if !ok {
				apiErr = types.NewInternalError("internal error", err)
			}
			log.Warn("websocket turn failed", zap.String("code", string(apiErr.Code)), zap.Error(err))
			frame = errorFrame(apiErr)
		} else {
			frame = reply
		}
		if err := h.writeFrame(ctx, conn, frame); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *ChatHandler) writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func errorFrame(err *types.Error) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
	}
}

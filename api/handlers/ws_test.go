package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/api"
	"github.com/technosurge/leadflow/internal/session"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

func dialChat(t *testing.T, h *ChatHandler, sessionID string) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(newChatMux(h))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + sessionID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn, ctx
}

func TestChatHandler_WebSocketTurns(t *testing.T) {
	store := session.NewMemoryStore(0, nil)
	emailer := &fakeEmailer{}
	conn, ctx := dialChat(t, NewChatHandler(store, &fakeBot{}, emailer, zap.NewNop()), "ws1")

	require.NoError(t, wsjson.Write(ctx, conn, api.ChatRequest{Message: "ana@example.com"}))
	var first api.ChatReply
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "echo: ana@example.com", first.AIReply)
	assert.False(t, first.Ended)

	require.NoError(t, wsjson.Write(ctx, conn, api.ChatRequest{Message: "bye"}))
	var second api.ChatReply
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.True(t, second.Ended)
	assert.True(t, second.EmailsSent)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	sess, ok, err := store.Get(context.Background(), "ws1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, sess.Messages, 4)
}

func TestChatHandler_WebSocketBadFrameKeepsConnection(t *testing.T) {
	conn, ctx := dialChat(t, NewChatHandler(session.NewMemoryStore(0, nil), &fakeBot{}, nil, zap.NewNop()), "ws2")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	var bad Response
	require.NoError(t, wsjson.Read(ctx, conn, &bad))
	assert.False(t, bad.Success)
	require.NotNil(t, bad.Error)
	assert.Equal(t, string(types.ErrInvalidRequest), bad.Error.Code)

	require.NoError(t, wsjson.Write(ctx, conn, api.ChatRequest{Message: ""}))
	var empty Response
	require.NoError(t, wsjson.Read(ctx, conn, &empty))
	require.NotNil(t, empty.Error)
	assert.Equal(t, "message is required", empty.Error.Message)

	// 错误之后同一连接仍可继续对话
	require.NoError(t, wsjson.Write(ctx, conn, api.ChatRequest{Message: "hello"}))
	var ok api.ChatReply
	require.NoError(t, wsjson.Read(ctx, conn, &ok))
	assert.Equal(t, "echo: hello", ok.AIReply)
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		want    []string
	}{
		{name: "nil", origins: nil, want: nil},
		{name: "wildcard wins", origins: []string{"https://a.example", "*"}, want: []string{"*"}},
		{name: "urls become hosts", origins: []string{"https://a.example", "http://b.example:8080"}, want: []string{"a.example", "b.example:8080"}},
		{name: "bare patterns kept", origins: []string{" *.example.com ", ""}, want: []string{"*.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, originPatterns(tt.origins))
		})
	}
}

// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
//
//	ctx := testutil.TestContext(t)
//	history := testutil.Conversation("hi", "Hello! How can I help?", "I need a chatbot")
//
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/technosurge/leadflow/types"
)

// TestContext 返回 30 秒超时、随测试结束取消的上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Conversation 按 user / assistant 交替构造对话，第一条为 user
func Conversation(contents ...string) []types.Message {
	out := make([]types.Message, len(contents))
	for i, c := range contents {
		if i%2 == 0 {
			out[i] = types.NewUserMessage(c)
		} else {
			out[i] = types.NewAssistantMessage(c)
		}
	}
	return out
}

// Package tokenizer 提供 token 计数与对话记忆裁剪。
package tokenizer

import (
	"github.com/technosurge/leadflow/types"
)

// 每条消息的固定开销（角色标记、分隔符）与对话结束开销
const (
	perMessageOverhead = 4
	conversationEnd    = 3
)

// Counter 统一的 token 计数接口
type Counter interface {
	// CountTokens 返回文本的 token 数
	CountTokens(text string) int
	// Name 返回计数器名称
	Name() string
}

// CountMessages 返回消息列表的总 token 数（含每条消息开销）
func CountMessages(c Counter, messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += messageTokens(c, m)
	}
	return total + conversationEnd
}

func messageTokens(c Counter, m types.Message) int {
	return c.CountTokens(m.Content) + c.CountTokens(string(m.Role)) + perMessageOverhead
}

// TrimHistory 从最新的消息往前保留，直到超出 budget。
// 最后一条消息总是保留；budget <= 0 表示不裁剪。
func TrimHistory(c Counter, messages []types.Message, budget int) []types.Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}

	used := conversationEnd
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := messageTokens(c, messages[i])
		if start < len(messages) && used+cost > budget {
			break
		}
		used += cost
		start = i
	}

	out := make([]types.Message, len(messages)-start)
	copy(out, messages[start:])
	return out
}

package leadbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/technosurge/leadflow/agent"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/leadstore"
	"github.com/technosurge/leadflow/internal/telemetry"
	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/llm/tokenizer"
	"github.com/technosurge/leadflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Intent 用户消息意图
type Intent string

const (
	IntentEnd     Intent = "end"
	IntentGeneral Intent = "general"
)

// LLM 调用用途
const (
	PurposeExtract = "extract"
	PurposeGoal    = "end_check"
	PurposeReply   = "reply"
	PurposeSummary = "summary"
)

// Reply 一轮对话的结果
type Reply struct {
	Text  string
	Lead  types.Lead
	Ended bool
	// Saved 本轮是否把线索写入了存储
	Saved bool
	// Messages 本轮结束后的完整对话（含本轮用户消息与回复）
	Messages []types.Message
}

// Bot 获客对话 Agent
type Bot struct {
	*agent.BaseAgent
	store        leadstore.Store
	counter      tokenizer.Counter
	cfg          config.AgentConfig
	systemPrompt string
}

// Option Bot 选项
type Option func(*Bot)

// WithCounter 替换对话记忆裁剪用的 token 计数器
func WithCounter(c tokenizer.Counter) Option {
	return func(b *Bot) { b.counter = c }
}

// New 创建 LeadBot。store 为 nil 时对话照常进行，但不会保存线索。
func New(provider llm.Provider, store leadstore.Store, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) *Bot {
	base := agent.NewBaseAgent(agent.Config{
		Type:        agent.TypeLeadBot,
		Name:        "LeadBot",
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
	}, provider, logger)

	if len(cfg.EndKeywords) == 0 {
		cfg.EndKeywords = config.DefaultAgentConfig().EndKeywords
	}
	if cfg.IntentThreshold <= 0 {
		cfg.IntentThreshold = 1
	}
	b := &Bot{
		BaseAgent:    base,
		store:        store,
		cfg:          cfg,
		systemPrompt: cfg.SystemPrompt,
	}
	if b.systemPrompt == "" {
		b.systemPrompt = SalesPrompt
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.counter == nil {
		b.counter = tokenizer.NewTiktoken(cfg.Model, logger)
	}
	return b
}

// DetectIntent 关键词子串匹配，命中数达到阈值即为结束意图
func (b *Bot) DetectIntent(text string) Intent {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range b.cfg.EndKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	if hits >= b.cfg.IntentThreshold {
		return IntentEnd
	}
	return IntentGeneral
}

type extraction struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Refused bool    `json:"refused"`
}

// pick 空值与字面量 "null" 视为没有新信息
func pick(v *string, prev string) string {
	if v == nil {
		return prev
	}
	s := strings.TrimSpace(*v)
	if s == "" || strings.EqualFold(s, "null") {
		return prev
	}
	return s
}

// AnalyzeDetails 从用户消息中抽取姓名与邮箱，没有新信息时保留 prev 的值。
// 模型调用或解析失败时原样返回 prev（prev 为 nil 时返回 Unknown/NULL）。
func (b *Bot) AnalyzeDetails(ctx context.Context, text string, prev *types.Lead) types.Lead {
	fallback := types.Lead{Name: types.UnknownName, Email: types.NullEmail}
	prevName, prevEmail := "none", "none"
	var base types.Lead
	if prev != nil {
		fallback = *prev
		base = *prev
		if prev.Name != "" && prev.Name != types.UnknownName {
			prevName = prev.Name
		}
		if prev.HasEmail() {
			prevEmail = prev.Email
		}
	}

	var out extraction
	raw, err := b.CompleteJSON(ctx, []types.Message{
		types.NewSystemMessage(extractPrompt),
		types.NewUserMessage(fmt.Sprintf("Previous name: %s, Previous email: %s. User input: %s", prevName, prevEmail, text)),
	}, agent.CompletionOptions{Purpose: PurposeExtract}, &out)
	if err != nil {
		b.Logger().Warn("lead extraction failed", zap.String("raw", raw), zap.Error(err))
		return fallback
	}
	if out.Refused {
		b.Logger().Info("user refused to provide details")
	}

	lead := base
	lead.Name = pick(out.Name, base.Name)
	lead.Email = pick(out.Email, base.Email)
	if lead.Name == "" {
		lead.Name = types.UnknownName
	}
	if lead.Email == "" {
		lead.Email = types.NullEmail
	}
	return lead
}

// DetectGoal 询问模型对话是否已达成目标；解析失败视为未结束
func (b *Bot) DetectGoal(ctx context.Context, memory []types.Message) (bool, string) {
	convo, err := json.Marshal(tokenizer.TrimHistory(b.counter, memory, b.cfg.MemoryTokenLimit))
	if err != nil {
		return false, ""
	}
	var out struct {
		Ended  bool   `json:"ended"`
		Reason string `json:"reason"`
	}
	raw, err := b.CompleteJSON(ctx, []types.Message{
		types.NewSystemMessage(goalPrompt),
		types.NewUserMessage(string(convo)),
	}, agent.CompletionOptions{Purpose: PurposeGoal}, &out)
	if err != nil {
		b.Logger().Warn("goal detection failed", zap.String("raw", raw), zap.Error(err))
		return false, ""
	}
	if out.Ended {
		b.Logger().Info("conversation objective reached", zap.String("reason", out.Reason))
	}
	return out.Ended, out.Reason
}

// askedConfirmation 之前的助手消息是否已经问过"还有别的吗"
func askedConfirmation(memory []types.Message) bool {
	for _, m := range memory {
		if m.Role == types.RoleAssistant && strings.Contains(strings.ToLower(m.Content), confirmationMarker) {
			return true
		}
	}
	return false
}

// awaitingConfirmation 上一条助手消息就是确认问题
func awaitingConfirmation(history []types.Message) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == types.RoleAssistant {
			return strings.Contains(strings.ToLower(history[i].Content), confirmationMarker)
		}
	}
	return false
}

// declines 用户表示没有其他需求
func declines(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "that's all") || strings.Contains(lower, "nothing else") {
		return true
	}
	words := strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' })
	for _, w := range words {
		if w == "no" || w == "nope" {
			return true
		}
	}
	return false
}

// Respond 处理一条用户消息。history 为本轮之前的对话。
func (b *Bot) Respond(ctx context.Context, userMsg string, prev *types.Lead, history []types.Message) Reply {
	ctx, span := telemetry.Tracer().Start(ctx, "leadbot.respond")
	defer span.End()

	memory := make([]types.Message, 0, len(history)+2)
	memory = append(memory, history...)
	memory = append(memory, types.NewUserMessage(userMsg))

	intent := b.DetectIntent(userMsg)
	ended := false
	switch {
	case intent == IntentEnd:
		ended = true
	case awaitingConfirmation(history) && declines(userMsg):
		// 已经问过确认问题，简短的拒绝直接收尾
		ended = true
	default:
		ended, _ = b.DetectGoal(ctx, memory)
	}

	lead := b.AnalyzeDetails(ctx, userMsg, prev)
	span.SetAttributes(
		attribute.String("leadbot.intent", string(intent)),
		attribute.Bool("leadbot.goal_reached", ended),
		attribute.Bool("leadbot.has_email", lead.HasEmail()),
	)

	reply := func(text string, ended, saved bool) Reply {
		return Reply{
			Text:     text,
			Lead:     lead,
			Ended:    ended,
			Saved:    saved,
			Messages: append(memory, types.NewAssistantMessage(text)),
		}
	}

	if ended && lead.HasEmail() {
		if !askedConfirmation(memory) {
			return reply(ConfirmationQuestion, false, false)
		}
		if declines(userMsg) {
			var saved bool
			lead, saved = b.SaveLead(ctx, lead, memory)
			return reply(fmt.Sprintf(thankYouFormat, lead.DisplayName()), true, saved)
		}
		// 用户还有别的需求，继续对话
		ended = false
	}

	return reply(b.generateReply(ctx, memory), ended, false)
}

func (b *Bot) generateReply(ctx context.Context, memory []types.Message) string {
	trimmed := tokenizer.TrimHistory(b.counter, memory, b.cfg.MemoryTokenLimit)
	msgs := make([]types.Message, 0, len(trimmed)+1)
	msgs = append(msgs, types.NewSystemMessage(b.systemPrompt))
	msgs = append(msgs, trimmed...)

	text, err := b.ChatCompletion(ctx, msgs, agent.CompletionOptions{
		Purpose:     PurposeReply,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: float32(b.cfg.Temperature),
	})
	if err != nil || text == "" {
		return FallbackReply
	}
	return text
}

// SaveLead 生成对话摘要并追加线索。摘要失败时使用占位摘要，写入失败返回 false。
func (b *Bot) SaveLead(ctx context.Context, lead types.Lead, memory []types.Message) (types.Lead, bool) {
	if b.store == nil {
		b.Logger().Warn("cannot save lead: no lead store configured")
		return lead, false
	}

	summary := types.NoSummaryProvided
	if convo, err := json.Marshal(memory); err == nil {
		text, err := b.ChatCompletion(ctx, []types.Message{
			types.NewSystemMessage(summaryPrompt),
			types.NewUserMessage(string(convo)),
		}, agent.CompletionOptions{Purpose: PurposeSummary})
		if err != nil {
			b.Logger().Warn("conversation summary failed", zap.Error(err))
		} else if text != "" {
			summary = text
		}
	}
	lead.Summary = summary

	if err := b.store.Append(ctx, lead); err != nil {
		b.Logger().Error("failed to save lead",
			zap.String("backend", b.store.Backend()),
			zap.String("email", lead.Email),
			zap.Error(err),
		)
		return lead, false
	}
	b.Logger().Info("lead saved", zap.String("backend", b.store.Backend()), zap.String("email", lead.Email))
	return lead, true
}

// RunFromMessages 以完整消息列表驱动一轮对话（工作流节点入口）。
// 没有用户消息时返回问候语。
func (b *Bot) RunFromMessages(ctx context.Context, messages []types.Message, prev *types.Lead) Reply {
	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		lead := types.NewUnknownLead()
		if prev != nil {
			lead = *prev
		}
		return Reply{
			Text:     Greeting,
			Lead:     lead,
			Messages: append(append([]types.Message(nil), messages...), types.NewAssistantMessage(Greeting)),
		}
	}
	return b.Respond(ctx, messages[last].Content, prev, messages[:last])
}

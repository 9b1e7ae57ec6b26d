package agent

import (
	"context"
	"time"

	"github.com/technosurge/leadflow/internal/telemetry"
	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// AgentType 定义 Agent 类型
type AgentType string

const (
	TypeLeadBot    AgentType = "leadbot"    // 对话获客
	TypeEmailAgent AgentType = "emailagent" // 营销邮件
)

// Config Agent 配置
type Config struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        AgentType `json:"type"`
	Model       string    `json:"model"`                 // LLM 模型
	MaxTokens   int       `json:"max_tokens,omitempty"`  // 最大 token
	Temperature float32   `json:"temperature,omitempty"` // 温度
}

// BaseAgent 提供身份、LLM 调用与日志的公共实现
type BaseAgent struct {
	config   Config
	provider llm.Provider
	logger   *zap.Logger
}

// NewBaseAgent 创建基础 Agent
func NewBaseAgent(cfg Config, provider llm.Provider, logger *zap.Logger) *BaseAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ID == "" {
		cfg.ID = string(cfg.Type)
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Type)
	}
	return &BaseAgent{
		config:   cfg,
		provider: provider,
		logger:   logger.With(zap.String("agent_id", cfg.ID), zap.String("agent_type", string(cfg.Type))),
	}
}

func (b *BaseAgent) ID() string             { return b.config.ID }
func (b *BaseAgent) Name() string           { return b.config.Name }
func (b *BaseAgent) Type() AgentType        { return b.config.Type }
func (b *BaseAgent) Config() Config         { return b.config }
func (b *BaseAgent) Logger() *zap.Logger    { return b.logger }
func (b *BaseAgent) Provider() llm.Provider { return b.provider }

// CompletionOptions 单次调用的参数覆盖
type CompletionOptions struct {
	// Purpose 调用用途，写入日志、span 与指标
	Purpose     string
	MaxTokens   int
	Temperature float32
	JSON        bool
}

// ChatCompletion 调用 LLM 并返回去除首尾空白的文本。
// 模型取自 Agent 配置，采样参数由调用方按用途指定。
func (b *BaseAgent) ChatCompletion(ctx context.Context, messages []types.Message, opts CompletionOptions) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "agent.completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.type", string(b.config.Type)),
		attribute.String("llm.model", b.config.Model),
		attribute.String("llm.purpose", opts.Purpose),
	)

	req := &llm.ChatRequest{
		Model:       b.config.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Purpose:     opts.Purpose,
	}
	if opts.JSON {
		req.ResponseFormat = llm.FormatJSON
	}

	start := time.Now()
	content, err := llm.Complete(ctx, b.provider, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Warn("completion failed",
			zap.String("purpose", opts.Purpose),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}
	b.logger.Debug("completion done",
		zap.String("purpose", opts.Purpose),
		zap.Duration("duration", time.Since(start)),
		zap.Int("chars", len(content)),
	)
	return content, nil
}

// CompleteJSON 调用 LLM 并把输出解析为 JSON 对象
func (b *BaseAgent) CompleteJSON(ctx context.Context, messages []types.Message, opts CompletionOptions, v any) (string, error) {
	opts.JSON = true
	raw, err := b.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return raw, llm.DecodeJSON(raw, v)
}

package emailagent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/technosurge/leadflow/agent"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/leadstore"
	"github.com/technosurge/leadflow/internal/mailer"
	"github.com/technosurge/leadflow/internal/telemetry"
	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PurposeEmail 邮件生成调用的用途
const PurposeEmail = "email"

// 投递结果，写入指标标签
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Draft 生成的邮件
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Recorder 接收投递结果，metrics.Collector 实现了它
type Recorder interface {
	RecordEmail(status string)
}

// Agent 营销邮件 Agent：生成个性化邮件、发送并回写线索状态
type Agent struct {
	*agent.BaseAgent
	mailer   mailer.Mailer
	store    leadstore.Store
	cfg      config.EmailConfig
	recorder Recorder
}

// Option Agent 选项
type Option func(*Agent)

// WithRecorder 设置投递指标接收方
func WithRecorder(r Recorder) Option {
	return func(a *Agent) { a.recorder = r }
}

// New 创建 EmailAgent。store 为 nil 时不回写状态，RunCampaign 不可用。
func New(provider llm.Provider, m mailer.Mailer, store leadstore.Store, cfg config.EmailConfig, logger *zap.Logger, opts ...Option) *Agent {
	def := config.DefaultEmailConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.CampaignConcurrency <= 0 {
		cfg.CampaignConcurrency = def.CampaignConcurrency
	}

	a := &Agent{
		BaseAgent: agent.NewBaseAgent(agent.Config{
			Type:        agent.TypeEmailAgent,
			Name:        "EmailAgent",
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
		}, provider, logger),
		mailer: m,
		store:  store,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) record(status string) {
	if a.recorder != nil {
		a.recorder.RecordEmail(status)
	}
}

// salutation 名字缺失或为占位值时称呼 "there"
func salutation(name string) string {
	n := strings.TrimSpace(name)
	if n == "" || n == types.UnknownName {
		return "there"
	}
	return n
}

// GenerateEmail 让模型按线索摘要写邮件；任何失败都返回兜底邮件
func (a *Agent) GenerateEmail(ctx context.Context, name, summary string) Draft {
	greet := salutation(name)

	var d Draft
	raw, err := a.CompleteJSON(ctx, []types.Message{
		types.NewUserMessage(emailPrompt(greet, summary)),
	}, agent.CompletionOptions{
		Purpose:     PurposeEmail,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: float32(a.cfg.Temperature),
	}, &d)
	if err != nil {
		a.Logger().Warn("email generation failed, using fallback", zap.String("raw", raw), zap.Error(err))
		return FallbackDraft(greet)
	}
	// 主题是单行邮件头，换行会被拆成伪造的头部
	d.Subject = strings.Join(strings.Fields(d.Subject), " ")
	d.Body = strings.TrimSpace(d.Body)
	if d.Subject == "" || d.Body == "" {
		a.Logger().Warn("email generation returned empty fields, using fallback")
		return FallbackDraft(greet)
	}
	return d
}

// SendEmail 发送一封纯文本邮件
func (a *Agent) SendEmail(ctx context.Context, to, subject, body string) error {
	if a.mailer == nil {
		return mailer.ErrNotConfigured
	}
	a.Logger().Info("sending email", zap.String("to", to))
	return a.mailer.Send(ctx, mailer.Message{To: to, Subject: subject, Body: body})
}

// SendToLead 给单条线索发信并回写 SENT / FAILED。
// 邮箱缺失时返回 (false, nil)；投递失败返回 DELIVERY_FAILED 错误。
func (a *Agent) SendToLead(ctx context.Context, lead types.Lead) (bool, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "emailagent.send_to_lead")
	defer span.End()

	if !lead.HasEmail() {
		a.Logger().Info("no valid email for this lead, skipping", zap.String("name", lead.Name))
		a.record(StatusSkipped)
		span.SetAttributes(attribute.String("email.status", StatusSkipped))
		return false, nil
	}
	summary := strings.TrimSpace(lead.Summary)
	if summary == "" {
		summary = types.NoSummaryProvided
	}

	d := a.GenerateEmail(ctx, lead.Name, summary)
	if err := a.SendEmail(ctx, lead.Email, d.Subject, d.Body); err != nil {
		a.Logger().Error("failed to send email", zap.String("to", lead.Email), zap.Error(err))
		a.record(StatusFailed)
		span.SetAttributes(attribute.String("email.status", StatusFailed))
		a.markStatus(ctx, lead.Email, types.LeadStatusFailed)
		return false, types.NewError(types.ErrDeliveryFailed, "failed to send email to lead").WithCause(err)
	}

	a.Logger().Info("email sent", zap.String("to", lead.Email))
	a.record(StatusSent)
	span.SetAttributes(attribute.String("email.status", StatusSent))
	a.markStatus(ctx, lead.Email, types.LeadStatusSent)
	return true, nil
}

// markStatus 回写状态；失败只记日志
func (a *Agent) markStatus(ctx context.Context, email string, status types.LeadStatus) {
	if a.store == nil {
		return
	}
	err := a.store.UpdateStatus(ctx, email, status)
	switch {
	case err == nil:
		a.Logger().Info("lead status updated", zap.String("email", email), zap.String("status", string(status)))
	case errors.Is(err, leadstore.ErrNotFound):
		a.Logger().Debug("no stored lead for email", zap.String("email", email))
	default:
		a.Logger().Warn("could not update lead status",
			zap.String("email", email),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// =============================================================================
// 📣 批量营销
// =============================================================================

// CampaignResult 一次批量发送的统计
type CampaignResult struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// RunCampaign 给线索库中每条带邮箱的线索发信，成功的标记为 "Email Sent"。
// 单封失败只计数；ctx 取消时停止派发并返回 ctx 错误。
func (a *Agent) RunCampaign(ctx context.Context) (CampaignResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "emailagent.campaign")
	defer span.End()

	if a.store == nil {
		return CampaignResult{}, errors.New("campaign requires a lead store")
	}
	leads, err := a.store.List(ctx)
	if err != nil {
		return CampaignResult{}, types.NewError(types.ErrStorageFailure, "failed to list leads").WithCause(err)
	}
	a.Logger().Info("leads fetched", zap.Int("count", len(leads)))

	var sent, failed atomic.Int64
	result := CampaignResult{Total: len(leads)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.CampaignConcurrency)
	for _, lead := range leads {
		if !lead.HasEmail() {
			result.Skipped++
			a.record(StatusSkipped)
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary := strings.TrimSpace(lead.Summary)
			if summary == "" {
				summary = types.NoSummaryProvided
			}
			a.Logger().Info("processing lead", zap.String("name", lead.Name), zap.String("email", lead.Email))

			d := a.GenerateEmail(gctx, lead.Name, summary)
			if err := a.SendEmail(gctx, lead.Email, d.Subject, d.Body); err != nil {
				failed.Add(1)
				a.record(StatusFailed)
				a.Logger().Error("failed to send campaign email", zap.String("to", lead.Email), zap.Error(err))
				return nil
			}
			sent.Add(1)
			a.record(StatusSent)
			a.markStatus(gctx, lead.Email, types.LeadStatusCampaign)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	result.Sent = int(sent.Load())
	result.Failed = int(failed.Load())
	span.SetAttributes(
		attribute.Int("campaign.total", result.Total),
		attribute.Int("campaign.sent", result.Sent),
		attribute.Int("campaign.failed", result.Failed),
	)
	a.Logger().Info("campaign finished",
		zap.Int("total", result.Total),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)
	return result, err
}

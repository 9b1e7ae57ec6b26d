package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/technosurge/leadflow/agent/emailagent"
	"github.com/technosurge/leadflow/agent/leadbot"
	"github.com/technosurge/leadflow/api/handlers"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/database"
	"github.com/technosurge/leadflow/internal/imagebuild"
	"github.com/technosurge/leadflow/internal/leadstore"
	"github.com/technosurge/leadflow/internal/mailer"
	"github.com/technosurge/leadflow/internal/metrics"
	"github.com/technosurge/leadflow/internal/migration"
	"github.com/technosurge/leadflow/internal/session"
	"github.com/technosurge/leadflow/llm"
	"github.com/technosurge/leadflow/llm/circuitbreaker"
	"github.com/technosurge/leadflow/llm/providers/openaicompat"
	"github.com/technosurge/leadflow/llm/retry"
	"github.com/technosurge/leadflow/workflow"
)

// =============================================================================
// 📦 应用注册表
// =============================================================================

// Runtime 组装应用所需的进程级依赖
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
}

// NewRuntime 创建带独立 Registry 的运行时
func NewRuntime(cfg *config.Config, logger *zap.Logger) *Runtime {
	reg := prometheus.NewRegistry()
	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.NewCollectorWithRegistry("leadflow", reg, logger),
		Registry: reg,
	}
}

// appFactory 组装一个可挂载的 HTTP 应用
type appFactory func(ctx context.Context, rt *Runtime) (*App, error)

// registry module -> attribute -> factory，serve --app 按 module:attribute 查找
var registry = map[string]map[string]appFactory{
	"workflow": {"app": NewWorkflowApp},
}

// resolveApp 解析入口。模块或属性不存在时返回错误，serve 以退出码 1 结束。
func resolveApp(entry string) (appFactory, error) {
	ep, err := imagebuild.ParseEntrypoint(entry)
	if err != nil {
		return nil, err
	}
	attrs, ok := registry[ep.Module]
	if !ok {
		return nil, fmt.Errorf("could not import module %q", ep.Module)
	}
	factory, ok := attrs[ep.Attribute]
	if !ok {
		return nil, fmt.Errorf("attribute %q not found in module %q", ep.Attribute, ep.Module)
	}
	return factory, nil
}

// =============================================================================
// 🧩 组件装配
// =============================================================================

// components 对话与营销共用的依赖
type components struct {
	provider llm.Provider
	db       *database.PoolManager
	leads    leadstore.Store
	sessions session.Store
	mailer   mailer.Mailer
	bot      *leadbot.Bot
	email    *emailagent.Agent

	closers []func() error
}

func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newProvider OpenAI 兼容 Provider，外层包重试、熔断与指标
func newProvider(cfg config.LLMConfig, model string, rt *Runtime) llm.Provider {
	logger := rt.Logger
	if cfg.APIKey == "" {
		logger.Warn("LLM API key not configured, agents will answer with fallback replies")
	}
	base := openaicompat.New(openaicompat.Config{
		ProviderName: "openai",
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: model,
		Timeout:      cfg.Timeout,
	}, logger)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.ShouldRetry = llm.ShouldRetry

	return llm.NewResilientProvider(base, logger,
		llm.WithRetryer(retry.New(policy, logger)),
		llm.WithBreaker(circuitbreaker.New(circuitbreaker.Config{
			Threshold:    cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerResetTimeout,
			IsFailure:    llm.CountsAsFailure,
		}, logger)),
		llm.WithObserver(rt.Metrics),
	)
}

// openDatabase database 后端：按需执行迁移后打开连接池
func openDatabase(dc config.DatabaseConfig, rt *Runtime) (*database.PoolManager, error) {
	if dc.AutoMigrate {
		m, err := migration.NewFromConfig(dc)
		if err != nil {
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		err = m.Up(context.Background())
		if cerr := m.Close(); cerr != nil {
			rt.Logger.Warn("failed to close migrator", zap.Error(cerr))
		}
		if err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		rt.Logger.Info("database migrations applied", zap.String("driver", dc.Driver))
	}
	return database.Open(dc, rt.Logger, database.WithStatsRecorder(rt.Metrics))
}

func buildComponents(ctx context.Context, rt *Runtime) (_ *components, err error) {
	cfg := rt.Config
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.close()
		}
	}()

	if cfg.LeadStore.Backend == "database" {
		if c.db, err = openDatabase(cfg.Database, rt); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.db.Close)
	}

	store, err := leadstore.Open(ctx, cfg, c.gormDB(), rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("open lead store: %w", err)
	}
	c.leads = leadstore.Instrument(store, rt.Metrics)

	if c.sessions, err = session.Open(cfg, rt.Logger); err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	c.closers = append(c.closers, c.sessions.Close)

	if cfg.SMTP.Username == "" || cfg.SMTP.Password == "" {
		rt.Logger.Warn("SMTP credentials not configured, follow-up emails will fail")
	}
	c.mailer = mailer.New(cfg.SMTP, rt.Logger)

	c.provider = newProvider(cfg.LLM, cfg.Agent.Model, rt)
	c.bot = leadbot.New(c.provider, c.leads, cfg.Agent, rt.Logger)
	c.email = emailagent.New(c.provider, c.mailer, c.leads, cfg.Email, rt.Logger,
		emailagent.WithRecorder(rt.Metrics))
	return c, nil
}

func (c *components) gormDB() *gorm.DB {
	if c.db == nil {
		return nil
	}
	return c.db.DB()
}

// =============================================================================
// 🌐 workflow:app
// =============================================================================

// App 已装配的 HTTP 应用
type App struct {
	Handler http.Handler
	Graph   *workflow.CompiledGraph[workflow.LeadState]
	Email   *emailagent.Agent

	comps     *components
	closeOnce sync.Once
	closeErr  error
}

// Close 释放数据库、会话存储等资源，可重复调用
func (a *App) Close() error {
	if a == nil || a.comps == nil {
		return nil
	}
	a.closeOnce.Do(func() { a.closeErr = a.comps.close() })
	return a.closeErr
}

// NewWorkflowApp 组装 leadbot → emailagent 应用及其全部路由
func NewWorkflowApp(ctx context.Context, rt *Runtime) (*App, error) {
	comps, err := buildComponents(ctx, rt)
	if err != nil {
		return nil, err
	}
	app, err := newWorkflowApp(rt, comps)
	if err != nil {
		_ = comps.close()
		return nil, err
	}
	return app, nil
}

func newWorkflowApp(rt *Runtime, c *components) (*App, error) {
	cfg := rt.Config
	logger := rt.Logger

	graph, err := workflow.NewLeadGraph(c.bot, c.email, logger,
		workflow.WithLogger(logger),
		workflow.WithRecorder(rt.Metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("compile workflow: %w", err)
	}

	health := handlers.NewHealthHandler(logger)
	if c.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", c.db.Ping))
	}
	if p, ok := c.sessions.(interface{ Ping(context.Context) error }); ok {
		health.RegisterCheck(handlers.NewPingCheck("session_store", p.Ping))
	}

	chat := handlers.NewChatHandler(c.sessions, c.bot, c.email, logger,
		handlers.WithChatRecorder(rt.Metrics),
		handlers.WithAllowedOrigins(cfg.Server.CORSAllowedOrigins),
	)
	run := handlers.NewWorkflowHandler(graph, logger)
	campaign := handlers.NewCampaignHandler(c.email, logger)

	adminAuth := RequireAuth(logger,
		APIKeyAuthenticator(cfg.Server.APIKeys, cfg.Server.AllowQueryAPIKey),
		JWTAuthenticator(cfg.Server.JWTSecret, cfg.Server.JWTIssuer, logger),
	)
	if len(cfg.Server.APIKeys) == 0 && cfg.Server.JWTSecret == "" {
		logger.Warn("no API keys or JWT secret configured, admin routes are unauthenticated")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", health.HandleRoot)
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /chat/{session_id}", chat.HandleChat)
	mux.HandleFunc("GET /ws/chat/{session_id}", chat.HandleWebSocket)
	mux.HandleFunc("POST /workflow/run", run.HandleRun)
	mux.Handle("POST /api/v1/campaign", adminAuth(http.HandlerFunc(campaign.HandleRun)))

	// 未开启独立 metrics 端口时挂在 API 端口上
	if cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	}

	logger.Info("workflow app assembled",
		zap.String("lead_store", c.leads.Backend()),
		zap.String("session_store", cfg.Session.Backend),
		zap.Strings("nodes", graph.Nodes()),
	)
	return &App{Handler: mux, Graph: graph, Email: c.email, comps: c}, nil
}

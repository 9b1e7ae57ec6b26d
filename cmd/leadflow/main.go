// =============================================================================
// LeadFlow 主入口
// =============================================================================
// Technosurge 多 Agent 获客服务：HTTP API、批量营销、镜像构建与数据库迁移
//
// 使用方法:
//
//	leadflow serve                                  # 0.0.0.0:8000 上启动 workflow:app
//	leadflow serve --config config.yaml --port 9000
//	leadflow campaign                               # 给全部线索发信
//	leadflow image dockerfile                       # 输出 Dockerfile
//	leadflow image build --publish ttl.sh/leadflow  # 用 Dagger 构建并推送
//	leadflow migrate up                             # 运行数据库迁移
//	leadflow version
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "serve":
		code = runServe(os.Args[2:])
	case "campaign":
		code = runCampaign(os.Args[2:])
	case "image":
		code = runImage(os.Args[2:])
	case "migrate":
		code = runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		code = runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		code = 1
	}
	os.Exit(code)
}

// defaultConfigPath LEADFLOW_HOME 下的 config.yaml，文件不存在时只用默认值与环境变量
func defaultConfigPath() string {
	home := config.HomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, "config.yaml")
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.NewLoader().WithConfigPath(path).Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	host := fs.String("host", "", "Bind host (default from config, 0.0.0.0)")
	port := fs.Int("port", 0, "Bind port (default from config, 8000)")
	appRef := fs.String("app", "", "Application entrypoint module:attribute (default workflow:app)")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		if *port < 0 || *port > 65535 {
			fmt.Fprintf(os.Stderr, "Invalid port: %d\n", *port)
			return 1
		}
		cfg.Server.HTTPPort = *port
	}
	if *appRef == "" {
		*appRef = cfg.Image.Entrypoint
	}

	factory, err := resolveApp(*appRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading app %q: %v\n", *appRef, err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting LeadFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("app", *appRef),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	rt := NewRuntime(cfg, logger)
	app, err := factory(context.Background(), rt)
	if err != nil {
		logger.Error("failed to assemble app", zap.Error(err))
		return 1
	}

	srv := NewServer(rt, app, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		_ = app.Close()
		return 1
	}
	if err := srv.WaitForShutdown(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("LeadFlow stopped")
	return 0
}

// =============================================================================
// 📧 campaign 命令
// =============================================================================

func runCampaign(args []string) int {
	fs := flag.NewFlagSet("campaign", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(ctx, NewRuntime(cfg, logger))
	if err != nil {
		logger.Error("failed to assemble campaign", zap.Error(err))
		return 1
	}
	defer func() { _ = comps.close() }()

	res, err := comps.email.RunCampaign(ctx)
	fmt.Printf("Campaign finished: total=%d sent=%d failed=%d skipped=%d\n",
		res.Total, res.Sent, res.Failed, res.Skipped)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Campaign failed: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8000", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("LeadFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`LeadFlow - Technosurge Multi-Agent Workflow API

Usage:
  leadflow <command> [options]

Commands:
  serve     Start the API server
  campaign  Email every stored lead once
  image     Render the Dockerfile or build the image with Dagger
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)
  --host <host>     Bind host (default 0.0.0.0)
  --port <port>     Bind port (default 8000)
  --app <ref>       Application entrypoint (default workflow:app)

Examples:
  leadflow serve
  leadflow serve --host 0.0.0.0 --port 8000 --app workflow:app
  leadflow campaign --config /app/config.yaml
  leadflow image build --publish registry.example.com/leadflow:latest
  leadflow migrate up
  leadflow health --addr http://localhost:8000`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/technosurge/leadflow/internal/imagebuild"
)

// =============================================================================
// 🐳 image 命令
// =============================================================================

// runImage 处理 image dockerfile / dockerignore 与 image build [--publish ref]
func runImage(args []string) int {
	if len(args) < 1 {
		printImageUsage()
		return 1
	}

	fs := flag.NewFlagSet("image "+args[0], flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	publish := fs.String("publish", "", "Registry reference to publish to (default image.registry)")
	_ = fs.Parse(args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	plan, err := imagebuild.NewPlan(cfg.Image)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid image plan: %v\n", err)
		return 1
	}

	switch args[0] {
	case "dockerfile":
		fmt.Print(plan.Dockerfile())
		return 0
	case "dockerignore":
		fmt.Print(plan.DockerIgnore())
		return 0
	case "build":
	default:
		fmt.Fprintf(os.Stderr, "Unknown image subcommand: %s\n", args[0])
		printImageUsage()
		return 1
	}

	ref := *publish
	if ref == "" {
		ref = cfg.Image.Registry
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder, closeClient, err := imagebuild.Connect(ctx, os.Stderr, logger)
	if err != nil {
		logger.Error("dagger engine unavailable", zap.Error(err))
		return 1
	}
	defer func() { _ = closeClient() }()

	out, err := builder.Build(ctx, plan, ref)
	if err != nil {
		logger.Error("image build failed", zap.Error(err))
		return 1
	}
	if out != "" {
		fmt.Println(out)
	}
	return 0
}

func printImageUsage() {
	fmt.Println(`Image Commands

Usage:
  leadflow image dockerfile [--config path]
  leadflow image dockerignore [--config path]
  leadflow image build [--config path] [--publish ref]

'build' runs the image build sequence through the Dagger engine. Without a
publish reference (flag or image.registry) the image is built but not pushed.`)
}

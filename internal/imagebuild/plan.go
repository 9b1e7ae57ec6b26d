package imagebuild

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/technosurge/leadflow/config"
)

// StepKind 构建步骤类型，对应 Dockerfile 指令
type StepKind string

const (
	StepFrom    StepKind = "FROM"
	StepRun     StepKind = "RUN"
	StepWorkdir StepKind = "WORKDIR"
	StepCopy    StepKind = "COPY"
	StepExpose  StepKind = "EXPOSE"
	StepEnv     StepKind = "ENV"
	StepCmd     StepKind = "CMD"
)

// Step 单个构建步骤
type Step struct {
	Kind StepKind
	Args []string
}

// EnvVar 环境变量
type EnvVar struct {
	Name  string
	Value string
}

// Plan 镜像构建计划。步骤顺序固定，任意一步失败即中止构建。
type Plan struct {
	BaseImage      string
	Toolchains     []string
	ManifestFiles  []string
	InstallCommand []string
	WorkDir        string
	SourceDir      string
	Port           int
	SearchPath     EnvVar
	Entrypoint     Entrypoint
	Command        []string
}

// Entrypoint module:attribute 形式的应用入口
type Entrypoint struct {
	Module    string
	Attribute string
}

func (e Entrypoint) String() string { return e.Module + ":" + e.Attribute }

// ParseEntrypoint 解析 module:attribute
func ParseEntrypoint(s string) (Entrypoint, error) {
	mod, attr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || mod == "" || attr == "" || strings.Contains(attr, ":") {
		return Entrypoint{}, fmt.Errorf("entrypoint %q must have the form module:attribute", s)
	}
	return Entrypoint{Module: mod, Attribute: attr}, nil
}

// installCommand 下载依赖后清空构建缓存，镜像内不保留本地缓存
var installCommand = []string{"sh", "-c", "go mod download && go clean -cache"}

// NewPlan 根据配置生成并校验构建计划
func NewPlan(cfg config.ImageConfig) (*Plan, error) {
	var errs []error

	if strings.TrimSpace(cfg.BaseImage) == "" {
		errs = append(errs, errors.New("base image is required"))
	}
	if len(cfg.Toolchains) != 2 {
		errs = append(errs, fmt.Errorf("exactly two toolchains are required, got %d", len(cfg.Toolchains)))
	}
	for _, tc := range cfg.Toolchains {
		if strings.TrimSpace(tc) == "" || strings.ContainsAny(tc, " \t;&|") {
			errs = append(errs, fmt.Errorf("invalid toolchain package %q", tc))
		}
	}
	if len(cfg.ManifestFiles) == 0 {
		errs = append(errs, errors.New("at least one dependency manifest file is required"))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", cfg.Port))
	}
	workdir := cfg.WorkDir
	if workdir == "" {
		workdir = "/app"
	}
	if !path.IsAbs(workdir) {
		errs = append(errs, fmt.Errorf("workdir %q must be absolute", workdir))
	}
	envName := cfg.SearchPathEnv
	if envName == "" {
		errs = append(errs, errors.New("search path env name is required"))
	}
	entry, err := ParseEntrypoint(cfg.Entrypoint)
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid image plan: %w", errors.Join(errs...))
	}

	source := cfg.SourceDir
	if source == "" {
		source = "."
	}
	port := strconv.Itoa(cfg.Port)
	return &Plan{
		BaseImage:      cfg.BaseImage,
		Toolchains:     append([]string(nil), cfg.Toolchains...),
		ManifestFiles:  append([]string(nil), cfg.ManifestFiles...),
		InstallCommand: append([]string(nil), installCommand...),
		WorkDir:        path.Clean(workdir),
		SourceDir:      source,
		Port:           cfg.Port,
		SearchPath:     EnvVar{Name: envName, Value: path.Clean(workdir)},
		Entrypoint:     entry,
		Command: []string{
			"go", "run", "./cmd/leadflow", "serve",
			"--host", "0.0.0.0",
			"--port", port,
			"--app", entry.String(),
		},
	}, nil
}

// toolchainCommand 安装系统编译工具链，清理 apt 索引
func (p *Plan) toolchainCommand() []string {
	return []string{"sh", "-c", "apt-get update && apt-get install -y --no-install-recommends " +
		strings.Join(p.Toolchains, " ") + " && rm -rf /var/lib/apt/lists/*"}
}

// Steps 返回有序构建步骤：清单复制在依赖安装之前，依赖安装在源码复制之前
func (p *Plan) Steps() []Step {
	manifest := append(append([]string(nil), p.ManifestFiles...), "./")
	return []Step{
		{Kind: StepFrom, Args: []string{p.BaseImage}},
		{Kind: StepRun, Args: p.toolchainCommand()},
		{Kind: StepWorkdir, Args: []string{p.WorkDir}},
		{Kind: StepCopy, Args: manifest},
		{Kind: StepRun, Args: append([]string(nil), p.InstallCommand...)},
		{Kind: StepCopy, Args: []string{".", "."}},
		{Kind: StepExpose, Args: []string{strconv.Itoa(p.Port)}},
		{Kind: StepEnv, Args: []string{p.SearchPath.Name, p.SearchPath.Value}},
		{Kind: StepCmd, Args: append([]string(nil), p.Command...)},
	}
}

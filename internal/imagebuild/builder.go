package imagebuild

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"

	"dagger.io/dagger"
	"go.uber.org/zap"
)

// Container 构建器驱动的容器操作，dagger.Container 经 daggerContainer 适配
type Container interface {
	From(ref string) Container
	WithExec(args []string) Container
	WithWorkdir(dir string) Container
	WithHostFile(dst, src string) Container
	WithHostDirectory(dst, src string, exclude []string) Container
	WithExposedPort(port int) Container
	WithEnvVariable(name, value string) Container
	WithDefaultArgs(args []string) Container
	Sync(ctx context.Context) error
	Publish(ctx context.Context, ref string) (string, error)
}

// sourceExcludes 复制源码时跳过的路径
var sourceExcludes = []string{".git", ".dagger", "_examples", "*.db", ".env"}

// Builder 按计划逐步构建镜像
type Builder struct {
	newContainer func() Container
	logger       *zap.Logger
}

// NewBuilder 基于已连接的 dagger 客户端创建构建器
func NewBuilder(client *dagger.Client, logger *zap.Logger) *Builder {
	return NewBuilderWith(func() Container {
		return &daggerContainer{client: client, c: client.Container()}
	}, logger)
}

// NewBuilderWith 使用自定义容器实现（测试用）
func NewBuilderWith(newContainer func() Container, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{newContainer: newContainer, logger: logger.With(zap.String("component", "imagebuild"))}
}

// Connect 连接 dagger engine，返回构建器与关闭函数
func Connect(ctx context.Context, logOutput io.Writer, logger *zap.Logger) (*Builder, func() error, error) {
	client, err := dagger.Connect(ctx, dagger.WithLogOutput(logOutput))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to dagger engine: %w", err)
	}
	return NewBuilder(client, logger), client.Close, nil
}

// Build 执行计划。publishRef 非空时推送并返回带 digest 的地址，否则只同步构建结果返回空字符串。
func (b *Builder) Build(ctx context.Context, p *Plan, publishRef string) (string, error) {
	c := b.newContainer()
	for i, step := range p.Steps() {
		b.logger.Debug("build step", zap.Int("index", i+1), zap.String("kind", string(step.Kind)))
		if isSourceCopy(step) {
			// dagger 惰性求值：在复制源码前落地依赖安装，安装失败不会触发源码上传
			if err := c.Sync(ctx); err != nil {
				return "", fmt.Errorf("step %d (%s): install dependencies: %w", i, StepRun, err)
			}
		}
		var err error
		c, err = b.apply(c, p, step)
		if err != nil {
			return "", fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
		}
	}

	if publishRef == "" {
		if err := c.Sync(ctx); err != nil {
			return "", fmt.Errorf("build image: %w", err)
		}
		b.logger.Info("image built", zap.String("base", p.BaseImage), zap.Int("port", p.Port))
		return "", nil
	}

	ref, err := c.Publish(ctx, publishRef)
	if err != nil {
		return "", fmt.Errorf("publish image %s: %w", publishRef, err)
	}
	b.logger.Info("image published", zap.String("ref", ref))
	return ref, nil
}

func isSourceCopy(s Step) bool {
	return s.Kind == StepCopy && len(s.Args) == 2 && s.Args[0] == "."
}

func (b *Builder) apply(c Container, p *Plan, s Step) (Container, error) {
	switch s.Kind {
	case StepFrom:
		return c.From(s.Args[0]), nil
	case StepRun:
		return c.WithExec(s.Args), nil
	case StepWorkdir:
		return c.WithWorkdir(s.Args[0]), nil
	case StepCopy:
		if isSourceCopy(s) {
			return c.WithHostDirectory(p.WorkDir, p.SourceDir, sourceExcludes), nil
		}
		for _, f := range s.Args[:len(s.Args)-1] {
			c = c.WithHostFile(path.Join(p.WorkDir, path.Base(filepath.ToSlash(f))), filepath.Join(p.SourceDir, f))
		}
		return c, nil
	case StepExpose:
		port, err := strconv.Atoi(s.Args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", s.Args[0], err)
		}
		return c.WithExposedPort(port), nil
	case StepEnv:
		return c.WithEnvVariable(s.Args[0], s.Args[1]), nil
	case StepCmd:
		return c.WithDefaultArgs(s.Args), nil
	default:
		return nil, fmt.Errorf("unsupported step kind %q", s.Kind)
	}
}

// =============================================================================
// 🐳 dagger 适配
// =============================================================================

type daggerContainer struct {
	client *dagger.Client
	c      *dagger.Container
}

func (d *daggerContainer) with(c *dagger.Container) Container {
	return &daggerContainer{client: d.client, c: c}
}

func (d *daggerContainer) From(ref string) Container          { return d.with(d.c.From(ref)) }
func (d *daggerContainer) WithExec(args []string) Container   { return d.with(d.c.WithExec(args)) }
func (d *daggerContainer) WithWorkdir(dir string) Container   { return d.with(d.c.WithWorkdir(dir)) }
func (d *daggerContainer) WithExposedPort(port int) Container { return d.with(d.c.WithExposedPort(port)) }

func (d *daggerContainer) WithDefaultArgs(args []string) Container {
	return d.with(d.c.WithDefaultArgs(args))
}

func (d *daggerContainer) WithEnvVariable(name, value string) Container {
	return d.with(d.c.WithEnvVariable(name, value))
}

func (d *daggerContainer) WithHostFile(dst, src string) Container {
	return d.with(d.c.WithFile(dst, d.client.Host().File(src)))
}

func (d *daggerContainer) WithHostDirectory(dst, src string, exclude []string) Container {
	dir := d.client.Host().Directory(src, dagger.HostDirectoryOpts{Exclude: exclude})
	return d.with(d.c.WithDirectory(dst, dir))
}

func (d *daggerContainer) Sync(ctx context.Context) error {
	_, err := d.c.Sync(ctx)
	return err
}

func (d *daggerContainer) Publish(ctx context.Context, ref string) (string, error) {
	return d.c.Publish(ctx, ref)
}

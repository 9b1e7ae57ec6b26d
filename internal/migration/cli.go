package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把 Migrator 的结果格式化输出，供 `leadflow migrate` 子命令使用
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 默认输出到 stdout
func NewCLI(m Migrator) *CLI {
	return &CLI{migrator: m, out: os.Stdout}
}

// SetOutput 替换输出目标
func (c *CLI) SetOutput(w io.Writer) { c.out = w }

// Run 执行一个迁移动作: up, down, steps, force, version, status
func (c *CLI) Run(ctx context.Context, action string, arg int) error {
	switch action {
	case "up":
		return c.RunUp(ctx)
	case "down":
		return c.RunDown(ctx)
	case "steps":
		return c.RunSteps(ctx, arg)
	case "force":
		return c.RunForce(ctx, arg)
	case "version":
		return c.RunVersion(ctx)
	case "status", "":
		return c.RunStatus(ctx)
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

// RunUp 应用全部待执行迁移
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.out, "Running migrations...")
	if err := c.migrator.Up(ctx); err != nil {
		return err
	}
	return c.printVersion(ctx, "Migrations complete.")
}

// RunDown 回滚一步
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back last migration...")
	if err := c.migrator.Down(ctx); err != nil {
		return err
	}
	return c.printVersion(ctx, "Rollback complete.")
}

// RunSteps 前进或回滚 n 步
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n == 0 {
		return fmt.Errorf("steps requires a non-zero count")
	}
	if err := c.migrator.Steps(ctx, n); err != nil {
		return err
	}
	return c.printVersion(ctx, fmt.Sprintf("Applied %+d step(s).", n))
}

// RunForce 强制设置版本
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Version forced to %d\n", version)
	return nil
}

// RunVersion 输出当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	v, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Fprintln(c.out, "No migrations applied yet.")
		return nil
	}
	if dirty {
		fmt.Fprintf(c.out, "Current version: %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(c.out, "Current version: %d\n", v)
	return nil
}

// RunStatus 以表格输出每个迁移的状态
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nTotal: %d, Applied: %d, Pending: %d\n", info.Total, info.Applied, info.Pending)
	return nil
}

func (c *CLI) printVersion(ctx context.Context, prefix string) error {
	v, _, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s Current version: %d\n", prefix, v)
	return nil
}

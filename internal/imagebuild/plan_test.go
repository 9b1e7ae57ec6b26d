package imagebuild

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/config"
	"pgregory.net/rapid"
)

func defaultPlan(t *testing.T) *Plan {
	t.Helper()
	p, err := NewPlan(config.DefaultImageConfig())
	require.NoError(t, err)
	return p
}

func indexOf(steps []Step, match func(Step) bool) int {
	for i, s := range steps {
		if match(s) {
			return i
		}
	}
	return -1
}

func TestNewPlan_Defaults(t *testing.T) {
	p := defaultPlan(t)

	assert.Equal(t, "golang:1.24-bookworm", p.BaseImage)
	assert.Equal(t, []string{"gcc", "g++"}, p.Toolchains)
	assert.Equal(t, "/app", p.WorkDir)
	assert.Equal(t, EnvVar{Name: "LEADFLOW_HOME", Value: "/app"}, p.SearchPath)
	assert.Equal(t, Entrypoint{Module: "workflow", Attribute: "app"}, p.Entrypoint)
	assert.Equal(t, []string{
		"go", "run", "./cmd/leadflow", "serve",
		"--host", "0.0.0.0", "--port", "8000", "--app", "workflow:app",
	}, p.Command)
}

func TestPlan_StepOrder(t *testing.T) {
	steps := defaultPlan(t).Steps()

	kinds := make([]StepKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []StepKind{
		StepFrom, StepRun, StepWorkdir, StepCopy, StepRun, StepCopy, StepExpose, StepEnv, StepCmd,
	}, kinds)

	manifestCopy := indexOf(steps, func(s Step) bool { return s.Kind == StepCopy && s.Args[0] == "go.mod" })
	install := indexOf(steps, func(s Step) bool {
		return s.Kind == StepRun && strings.Contains(strings.Join(s.Args, " "), "go mod download")
	})
	sourceCopy := indexOf(steps, func(s Step) bool { return s.Kind == StepCopy && s.Args[0] == "." })
	require.NotEqual(t, -1, manifestCopy)
	assert.Less(t, manifestCopy, install, "manifest copy precedes install")
	assert.Less(t, install, sourceCopy, "install precedes source copy")
}

func TestPlan_InstallLeavesNoCache(t *testing.T) {
	p := defaultPlan(t)
	assert.Contains(t, strings.Join(p.InstallCommand, " "), "go clean -cache")
	assert.NotContains(t, p.Dockerfile(), "--mount=type=cache")
}

func TestPlan_Dockerfile(t *testing.T) {
	want := `# syntax=docker/dockerfile:1
# Generated by ` + "`leadflow image dockerfile`" + `.
FROM golang:1.24-bookworm
RUN apt-get update && apt-get install -y --no-install-recommends gcc g++ && rm -rf /var/lib/apt/lists/*
WORKDIR /app
COPY go.mod go.sum ./
RUN go mod download && go clean -cache
COPY . .
EXPOSE 8000
ENV LEADFLOW_HOME=/app
CMD ["go","run","./cmd/leadflow","serve","--host","0.0.0.0","--port","8000","--app","workflow:app"]
`
	assert.Equal(t, want, defaultPlan(t).Dockerfile())
}

func TestPlan_DockerIgnoreMatchesSourceExcludes(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(defaultPlan(t).DockerIgnore(), "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.Equal(t, sourceExcludes, lines[1:])
}

// 仓库根目录提交的构建文件必须与默认计划的渲染一致
func TestCommittedBuildFilesMatchDefaultPlan(t *testing.T) {
	p := defaultPlan(t)
	for name, want := range map[string]string{
		"Dockerfile":    p.Dockerfile(),
		".dockerignore": p.DockerIgnore(),
	} {
		got, err := os.ReadFile("../../" + name)
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), "%s is stale, regenerate with `leadflow image %s`", name, strings.ToLower(strings.TrimPrefix(name, ".")))
	}
}

func TestNewPlan_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.ImageConfig)
		errMsg string
	}{
		{"missing base image", func(c *config.ImageConfig) { c.BaseImage = " " }, "base image"},
		{"one toolchain", func(c *config.ImageConfig) { c.Toolchains = []string{"gcc"} }, "exactly two toolchains"},
		{"three toolchains", func(c *config.ImageConfig) { c.Toolchains = []string{"gcc", "g++", "make"} }, "exactly two toolchains"},
		{"shell in toolchain", func(c *config.ImageConfig) { c.Toolchains = []string{"gcc", "g++; rm -rf /"} }, "invalid toolchain"},
		{"no manifest", func(c *config.ImageConfig) { c.ManifestFiles = nil }, "manifest"},
		{"port zero", func(c *config.ImageConfig) { c.Port = 0 }, "out of range"},
		{"port too large", func(c *config.ImageConfig) { c.Port = 65536 }, "out of range"},
		{"relative workdir", func(c *config.ImageConfig) { c.WorkDir = "app" }, "absolute"},
		{"no env name", func(c *config.ImageConfig) { c.SearchPathEnv = "" }, "search path"},
		{"bad entrypoint", func(c *config.ImageConfig) { c.Entrypoint = "workflow" }, "module:attribute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultImageConfig()
			tt.mutate(&cfg)
			_, err := NewPlan(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseEntrypoint(t *testing.T) {
	e, err := ParseEntrypoint(" workflow:app ")
	require.NoError(t, err)
	assert.Equal(t, "workflow:app", e.String())

	for _, bad := range []string{"", ":", "workflow:", ":app", "a:b:c", "workflow"} {
		_, err := ParseEntrypoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestPlan_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := config.DefaultImageConfig()
		cfg.Port = rapid.IntRange(1, 65535).Draw(rt, "port")
		cfg.WorkDir = "/" + rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "workdir")
		cfg.ManifestFiles = rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}\.(mod|sum|lock)`), 1, 4).Draw(rt, "manifests")

		p, err := NewPlan(cfg)
		if err != nil {
			rt.Fatalf("NewPlan: %v", err)
		}
		df := p.Dockerfile()

		// 恰好一个 EXPOSE，且与 CMD 端口一致
		if n := strings.Count(df, "\nEXPOSE "); n != 1 {
			rt.Fatalf("expected one EXPOSE, got %d", n)
		}
		port := strconv.Itoa(cfg.Port)
		if !strings.Contains(df, "\nEXPOSE "+port+"\n") {
			rt.Fatalf("EXPOSE does not carry port %s", port)
		}
		if !strings.Contains(df, `"--port","`+port+`"`) {
			rt.Fatalf("CMD does not carry port %s", port)
		}
		if !strings.Contains(df, "ENV LEADFLOW_HOME="+cfg.WorkDir+"\n") {
			rt.Fatalf("search path env not rooted at workdir")
		}

		again, err := NewPlan(cfg)
		if err != nil {
			rt.Fatalf("NewPlan: %v", err)
		}
		if again.Dockerfile() != df {
			rt.Fatalf("Dockerfile rendering is not deterministic")
		}
	})
}

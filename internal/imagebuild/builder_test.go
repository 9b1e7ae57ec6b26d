package imagebuild

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingContainer 记录调用序列，不连接 engine
type recordingContainer struct {
	ops        *[]string
	syncErr    error
	publishErr error
}

func newRecorder() (*[]string, func() Container) {
	ops := &[]string{}
	return ops, func() Container { return &recordingContainer{ops: ops} }
}

func (r *recordingContainer) add(format string, args ...any) Container {
	*r.ops = append(*r.ops, fmt.Sprintf(format, args...))
	return r
}

func (r *recordingContainer) From(ref string) Container { return r.add("from %s", ref) }

func (r *recordingContainer) WithExec(args []string) Container {
	return r.add("exec %s", strings.Join(args, " "))
}

func (r *recordingContainer) WithWorkdir(dir string) Container { return r.add("workdir %s", dir) }

func (r *recordingContainer) WithHostFile(dst, src string) Container {
	return r.add("file %s <- %s", dst, src)
}

func (r *recordingContainer) WithHostDirectory(dst, src string, exclude []string) Container {
	return r.add("dir %s <- %s exclude=%s", dst, src, strings.Join(exclude, ","))
}

func (r *recordingContainer) WithExposedPort(port int) Container { return r.add("expose %d", port) }

func (r *recordingContainer) WithEnvVariable(name, value string) Container {
	return r.add("env %s=%s", name, value)
}

func (r *recordingContainer) WithDefaultArgs(args []string) Container {
	return r.add("cmd %s", strings.Join(args, " "))
}

func (r *recordingContainer) Sync(context.Context) error {
	r.add("sync")
	return r.syncErr
}

func (r *recordingContainer) Publish(_ context.Context, ref string) (string, error) {
	r.add("publish %s", ref)
	if r.publishErr != nil {
		return "", r.publishErr
	}
	return ref + "@sha256:abc", nil
}

func TestBuilder_BuildAppliesStepsInOrder(t *testing.T) {
	ops, factory := newRecorder()
	b := NewBuilderWith(factory, zap.NewNop())

	ref, err := b.Build(context.Background(), defaultPlan(t), "")
	require.NoError(t, err)
	assert.Empty(t, ref)

	assert.Equal(t, []string{
		"from golang:1.24-bookworm",
		"exec sh -c apt-get update && apt-get install -y --no-install-recommends gcc g++ && rm -rf /var/lib/apt/lists/*",
		"workdir /app",
		"file /app/go.mod <- go.mod",
		"file /app/go.sum <- go.sum",
		"exec sh -c go mod download && go clean -cache",
		"sync",
		"dir /app <- . exclude=.git,.dagger,_examples,*.db,.env",
		"expose 8000",
		"env LEADFLOW_HOME=/app",
		"cmd go run ./cmd/leadflow serve --host 0.0.0.0 --port 8000 --app workflow:app",
		"sync",
	}, *ops)
}

func TestBuilder_Publish(t *testing.T) {
	ops, factory := newRecorder()
	b := NewBuilderWith(factory, nil)

	ref, err := b.Build(context.Background(), defaultPlan(t), "ghcr.io/technosurge/leadflow:latest")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/technosurge/leadflow:latest@sha256:abc", ref)
	assert.Equal(t, "publish ghcr.io/technosurge/leadflow:latest", (*ops)[len(*ops)-1])
	// 只有安装检查点一次 sync
	syncs := 0
	for _, op := range *ops {
		if op == "sync" {
			syncs++
		}
	}
	assert.Equal(t, 1, syncs)
}

func TestBuilder_Failures(t *testing.T) {
	boom := errors.New("exit code 100")

	b := NewBuilderWith(func() Container {
		return &recordingContainer{ops: &[]string{}, syncErr: boom}
	}, zap.NewNop())
	_, err := b.Build(context.Background(), defaultPlan(t), "")
	assert.ErrorIs(t, err, boom)

	b = NewBuilderWith(func() Container {
		return &recordingContainer{ops: &[]string{}, publishErr: boom}
	}, zap.NewNop())
	_, err = b.Build(context.Background(), defaultPlan(t), "registry/x:1")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "registry/x:1")
}

func TestBuilder_InstallFailureStopsBeforeSourceCopy(t *testing.T) {
	ops := &[]string{}
	unresolvable := errors.New(`go: github.com/nope/missing@v0.0.0: reading: 404 Not Found`)
	b := NewBuilderWith(func() Container {
		return &recordingContainer{ops: ops, syncErr: unresolvable}
	}, zap.NewNop())

	_, err := b.Build(context.Background(), defaultPlan(t), "")
	require.ErrorIs(t, err, unresolvable)
	assert.Contains(t, err.Error(), "install dependencies")

	for _, op := range *ops {
		assert.False(t, strings.HasPrefix(op, "dir "), "source copied after failed install: %s", op)
	}
	assert.Equal(t, "sync", (*ops)[len(*ops)-1])
}

func TestBuilder_RejectsUnknownStep(t *testing.T) {
	_, factory := newRecorder()
	b := NewBuilderWith(factory, zap.NewNop())
	_, err := b.apply(factory(), defaultPlan(t), Step{Kind: "HEALTHCHECK"})
	assert.Error(t, err)
}

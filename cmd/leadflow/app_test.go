package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosurge/leadflow/agent/emailagent"
	"github.com/technosurge/leadflow/agent/leadbot"
	"github.com/technosurge/leadflow/api"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/leadstore"
	"github.com/technosurge/leadflow/internal/session"
	"github.com/technosurge/leadflow/llm/tokenizer"
	"github.com/technosurge/leadflow/testutil/mocks"
	"github.com/technosurge/leadflow/types"
)

func TestResolveApp(t *testing.T) {
	tests := []struct {
		entry   string
		wantErr string
	}{
		{entry: "workflow:app"},
		{entry: "missing:app", wantErr: `could not import module "missing"`},
		{entry: "workflow:missing", wantErr: `attribute "missing" not found in module "workflow"`},
		{entry: "workflow", wantErr: "module:attribute"},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			f, err := resolveApp(tt.entry)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, f)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunServe_UnknownEntrypointExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LEADFLOW_HOME", dir)
	missing := filepath.Join(dir, "config.yaml")

	assert.Equal(t, 1, runServe([]string{"--config", missing, "--app", "missing:app"}))
	assert.Equal(t, 1, runServe([]string{"--config", missing, "--app", "workflow:nope"}))
	assert.Equal(t, 1, runServe([]string{"--config", missing, "--port", "70000"}))
}

func TestMigrateArg(t *testing.T) {
	n, err := migrateArg("steps", []string{"-2"})
	require.NoError(t, err)
	assert.Equal(t, -2, n)

	_, err = migrateArg("force", nil)
	assert.Error(t, err)
	_, err = migrateArg("force", []string{"x"})
	assert.Error(t, err)
	_, err = migrateArg("sideways", nil)
	assert.Error(t, err)

	n, err = migrateArg("up", []string{"ignored"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenDatabase_SQLiteResolvedAgainstHome(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("LEADFLOW_HOME", home)
	t.Chdir(work)

	cfg := config.DefaultConfig()
	rt := NewRuntime(cfg, zap.NewNop())
	pm, err := openDatabase(cfg.Database, rt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	// 迁移建的表必须在连接池打开的同一个文件里
	ctx := context.Background()
	store := leadstore.NewSQLStore(pm.DB(), zap.NewNop())
	require.NoError(t, store.Append(ctx, types.Lead{Name: "Ana", Email: "ana@example.com", Summary: "Wants a chatbot"}))
	leads, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	_, err = os.Stat(filepath.Join(home, cfg.Database.Name))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(work, cfg.Database.Name))
	assert.True(t, os.IsNotExist(err), "no database file in the working directory")
}

// newTestApp 用 mock 组件装配 workflow:app
func newTestApp(t *testing.T, mutate func(*config.Config), leads ...types.Lead) (*App, *mocks.MockMailer) {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	rt := NewRuntime(cfg, zap.NewNop())

	provider := mocks.NewMockProvider().
		WithPurposeResponse(emailagent.PurposeEmail, `{"subject":"Hello","body":"Let's talk"}`)
	store := mocks.NewMockLeadStore().WithLeads(leads...)
	mailer := mocks.NewMockMailer()

	c := &components{
		provider: provider,
		leads:    store,
		sessions: session.NewMemoryStore(0, nil),
		mailer:   mailer,
		bot:      leadbot.New(provider, store, cfg.Agent, zap.NewNop(), leadbot.WithCounter(tokenizer.NewEstimator())),
		email:    emailagent.New(provider, mailer, store, cfg.Email, zap.NewNop()),
	}
	c.closers = append(c.closers, c.sessions.Close)

	app, err := newWorkflowApp(rt, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app, mailer
}

func TestWorkflowApp_Routes(t *testing.T) {
	app, _ := newTestApp(t, nil)
	srv := NewServer(NewRuntime(config.DefaultConfig(), zap.NewNop()), app, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := srv.Handler(ctx)

	tests := []struct {
		method, path string
		wantStatus   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodGet, "/chat/s1", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestWorkflowApp_RootBanner(t *testing.T) {
	app, _ := newTestApp(t, nil)

	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, api.RootMessage, body["message"])
}

func TestWorkflowApp_WorkflowRunGreets(t *testing.T) {
	app, _ := newTestApp(t, nil)

	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/workflow/run", strings.NewReader(`{"messages":[]}`)))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data api.WorkflowRunResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data.Messages, 1)
	assert.Equal(t, types.RoleAssistant, resp.Data.Messages[0].Role)
	assert.False(t, resp.Data.LeadSaved)
	// leadbot 总会给出 latest_lead，emailagent 因邮箱缺失跳过发信
	assert.False(t, resp.Data.EmailsSent)
}

func TestWorkflowApp_CampaignRequiresKey(t *testing.T) {
	app, mailer := newTestApp(t, func(c *config.Config) {
		c.Server.APIKeys = []string{"admin-key"}
	},
		types.Lead{Name: "Ana", Email: "ana@example.com", Summary: "chatbots"},
		types.Lead{Name: "Bo", Email: types.NullEmail},
	)

	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/campaign", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, mailer.Sent())

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/campaign", nil)
	r.Header.Set("X-API-Key", "admin-key")
	app.Handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data api.CampaignResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, api.CampaignResponse{Total: 2, Sent: 1, Skipped: 1}, resp.Data)
	require.Len(t, mailer.Sent(), 1)
	assert.Equal(t, "ana@example.com", mailer.Sent()[0].To)
}

func TestServer_StartAndShutdown(t *testing.T) {
	app, _ := newTestApp(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.HTTPPort = 0
	})
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0
	srv := NewServer(NewRuntime(cfg, zap.NewNop()), app, nil)

	require.NoError(t, srv.Start())
	defer srv.Shutdown()

	resp, err := http.Get("http://" + srv.httpManager.BoundAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

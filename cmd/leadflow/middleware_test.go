package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/technosurge/leadflow/types"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = types.RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get("X-Request-ID")
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("client id kept", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "abc-123")
		handler.ServeHTTP(w, r)
		assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "abc-123", seen)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(okHandler(), mw("a"), mw("b"), mw("c")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestRecovery(t *testing.T) {
	handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "https://site.example", method: http.MethodPost, wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "listed origin", allowed: []string{"https://site.example"}, origin: "https://site.example", method: http.MethodPost, wantOrigin: "https://site.example", wantStatus: http.StatusOK},
		{name: "unlisted origin", allowed: []string{"https://site.example"}, origin: "https://evil.example", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "preflight allowed", allowed: []string{"*"}, origin: "https://site.example", method: http.MethodOptions, wantOrigin: "*", wantStatus: http.StatusNoContent},
		{name: "preflight rejected", allowed: nil, origin: "https://site.example", method: http.MethodOptions, wantStatus: http.StatusForbidden},
		{name: "same origin", allowed: nil, method: http.MethodGet, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, "/chat/s1", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			CORS(tt.allowed)(okHandler()).ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// 其他 IP 有独立的配额
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"
	handler := RequireAuth(zap.NewNop(),
		APIKeyAuthenticator([]string{"key-1", " "}, true),
		JWTAuthenticator(secret, "leadflow", zap.NewNop()),
	)(okHandler())

	valid := signToken(t, secret, jwt.MapClaims{"iss": "leadflow", "exp": time.Now().Add(time.Hour).Unix()})
	expired := signToken(t, secret, jwt.MapClaims{"iss": "leadflow", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongIssuer := signToken(t, secret, jwt.MapClaims{"iss": "other", "exp": time.Now().Add(time.Hour).Unix()})
	wrongKey := signToken(t, "nope", jwt.MapClaims{"iss": "leadflow", "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name       string
		target     string
		header     map[string]string
		wantStatus int
	}{
		{name: "no credentials", target: "/api/v1/campaign", wantStatus: http.StatusUnauthorized},
		{name: "api key header", target: "/api/v1/campaign", header: map[string]string{"X-API-Key": "key-1"}, wantStatus: http.StatusOK},
		{name: "api key query", target: "/api/v1/campaign?api_key=key-1", wantStatus: http.StatusOK},
		{name: "wrong api key", target: "/api/v1/campaign", header: map[string]string{"X-API-Key": "key-2"}, wantStatus: http.StatusUnauthorized},
		{name: "blank key is not a key", target: "/api/v1/campaign", header: map[string]string{"X-API-Key": " "}, wantStatus: http.StatusUnauthorized},
		{name: "valid jwt", target: "/api/v1/campaign", header: map[string]string{"Authorization": "Bearer " + valid}, wantStatus: http.StatusOK},
		{name: "expired jwt", target: "/api/v1/campaign", header: map[string]string{"Authorization": "Bearer " + expired}, wantStatus: http.StatusUnauthorized},
		{name: "wrong issuer", target: "/api/v1/campaign", header: map[string]string{"Authorization": "Bearer " + wrongIssuer}, wantStatus: http.StatusUnauthorized},
		{name: "wrong signing key", target: "/api/v1/campaign", header: map[string]string{"Authorization": "Bearer " + wrongKey}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, tt.target, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireAuth_NothingConfiguredPassesThrough(t *testing.T) {
	handler := RequireAuth(zap.NewNop(), APIKeyAuthenticator(nil, false), JWTAuthenticator("", "", zap.NewNop()))(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/campaign", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type httpRecord struct {
	method, path string
	status       int
}

type fakeHTTPRecorder struct{ records []httpRecord }

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, _ int64) {
	f.records = append(f.records, httpRecord{method, path, status})
}

func TestMetricsMiddleware_NormalizesPaths(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	handler := MetricsMiddleware(rec)(okHandler())

	for _, p := range []string{"/chat/abc", "/ws/chat/xyz", "/workflow/run", "/wp-admin.php"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, p, nil))
	}

	require.Len(t, rec.records, 4)
	assert.Equal(t, "/chat/{session_id}", rec.records[0].path)
	assert.Equal(t, "/ws/chat/{session_id}", rec.records[1].path)
	assert.Equal(t, "/workflow/run", rec.records[2].path)
	assert.Equal(t, "other", rec.records[3].path)
	assert.Equal(t, http.StatusOK, rec.records[0].status)
}

package main

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/technosurge/leadflow/api/handlers"
	"github.com/technosurge/leadflow/types"
)

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					handlers.WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 沿用客户端传入的 X-Request-ID，否则生成一个，写入响应头与 context
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(handlers.RequestIDHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(handlers.RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
		})
	}
}

// SecurityHeaders adds common security response headers to every request.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 请求日志中间件
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id := w.Header().Get(handlers.RequestIDHeader); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			logger.Info("request", fields...)
		})
	}
}

// CORS 跨域中间件。"*" 允许任意来源；未配置时不设置任何 CORS 头。
func CORS(allowedOrigins []string) Middleware {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
		}
		originSet[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := false
			switch {
			case origin == "":
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			default:
				if _, ok := originSet[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
					allowed = true
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions && origin != "" {
				if !allowed {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter 基于 IP 的请求限流中间件，ctx 结束时停止清理 goroutine
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	// 后台清理过期 visitor
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, v := range visitors {
					if time.Since(v.lastSeen) > 3*time.Minute {
						delete(visitors, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			mu.Lock()
			v, exists := visitors[ip]
			if !exists {
				v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				visitors[ip] = v
			}
			v.lastSeen = time.Now()
			mu.Unlock()
			if !v.limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				handlers.WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrRateLimited, "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 🔐 管理接口认证
// =============================================================================

// Authenticator 判断请求是否携带有效凭据；nil 表示该方式未启用
type Authenticator func(r *http.Request) bool

// APIKeyAuthenticator X-API-Key 头（可选 api_key 查询参数）认证
func APIKeyAuthenticator(validKeys []string, allowQueryAPIKey bool) Authenticator {
	var keys [][]byte
	for _, k := range validKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		key := r.Header.Get("X-API-Key")
		if allowQueryAPIKey && key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" {
			return false
		}
		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(key), k) == 1 {
				return true
			}
		}
		return false
	}
}

// JWTAuthenticator Authorization: Bearer 认证，仅接受 HS256
func JWTAuthenticator(secret, issuer string, logger *zap.Logger) Authenticator {
	if secret == "" {
		return nil
	}
	key := []byte(secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(r *http.Request) bool {
		tokenStr, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || tokenStr == "" {
			return false
		}
		token, err := jwt.Parse(tokenStr, keyFunc, opts...)
		if err != nil {
			logger.Debug("JWT validation failed", zap.Error(err))
			return false
		}
		return token.Valid
	}
}

// RequireAuth 任一认证方式通过即放行；没有启用任何方式时直接放行
func RequireAuth(logger *zap.Logger, auths ...Authenticator) Middleware {
	var active []Authenticator
	for _, a := range auths {
		if a != nil {
			active = append(active, a)
		}
	}
	return func(next http.Handler) http.Handler {
		if len(active) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, a := range active {
				if a(r) {
					next.ServeHTTP(w, r)
					return
				}
			}
			handlers.WriteErrorMessage(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid or missing credentials", logger)
		})
	}
}

// =============================================================================
// 📊 指标与追踪
// =============================================================================

// HTTPRecorder 接收 HTTP 指标，metrics.Collector 实现了它
type HTTPRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64)
}

// MetricsMiddleware 记录请求耗时、状态码与大小。路径按路由归一，避免会话 ID 进入标签。
func MetricsMiddleware(recorder HTTPRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}
			recorder.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.StatusCode,
				time.Since(start), requestSize, rw.Bytes)
		})
	}
}

// normalizePath 把动态路径折叠成路由模板，未知路径统一为 "other"
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/version", "/metrics", "/workflow/run", "/api/v1/campaign":
		return path
	}
	switch {
	case strings.HasPrefix(path, "/chat/"):
		return "/chat/{session_id}"
	case strings.HasPrefix(path, "/ws/chat/"):
		return "/ws/chat/{session_id}"
	}
	return "other"
}

// OTelTracing 为每个请求创建 server span，并把 trace id 放入 context
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := otel.Tracer("leadflow/http").Start(ctx, fmt.Sprintf("%s %s", r.Method, normalizePath(r.URL.Path)),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				ctx = types.WithTraceID(ctx, sc.TraceID().String())
			}

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
		})
	}
}

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/wonderland/api/handlers"
	"github.com/BaSui01/wonderland/config"
	"github.com/BaSui01/wonderland/internal/ctxkeys"
	"github.com/BaSui01/wonderland/internal/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestIDFromContext returns the request ID injected by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctxkeys.RequestID(ctx)
	return id
}

// SubjectFromContext returns the authenticated caller, or "" for anonymous requests.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctxkeys.Subject(ctx)
	return sub
}

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个中间件在最外层
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
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestIDFromContext(r.Context())),
						zap.Stack("stack"),
					)
					handlers.WriteErrorMessage(w, handlers.ErrInternalError, "internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID adds a request ID to each request via the X-Request-ID header and
// the request context. A client-supplied ID is kept when it looks sane.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 128 || strings.ContainsAny(id, "\r\n") {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := ctxkeys.WithRequestID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
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
				zap.Int64("bytes", rw.BytesWritten),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			}
			if sub := SubjectFromContext(r.Context()); sub != "" {
				fields = append(fields, zap.String("subject", sub))
			}
			logger.Info("request", fields...)
		})
	}
}

// =============================================================================
// 📊 MetricsMiddleware
// =============================================================================

// knownRoutes 是 path 标签允许出现的值，其余路径归为 "other" 以限制基数
var knownRoutes = map[string]struct{}{
	"/health": {}, "/healthz": {}, "/ready": {}, "/readyz": {}, "/version": {},
	"/v1/generate": {}, "/v1/generate/stream": {}, "/v1/generate/batch": {},
	"/v1/connection/test": {}, "/v1/settings": {}, "/v1/providers": {}, "/v1/usage": {},
}

func normalizePath(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}

// MetricsMiddleware records HTTP request duration, status and sizes via the collector.
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)

			next.ServeHTTP(rw, r)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}
			collector.RecordHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				rw.StatusCode,
				time.Since(start),
				requestSize,
				rw.BytesWritten,
			)
		})
	}
}

// =============================================================================
// 🔭 OTelTracing
// =============================================================================

// OTelTracing creates a server span for each HTTP request, continuing any
// trace context carried by the incoming headers.
func OTelTracing(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer("wonderland/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			route := normalizePath(r.URL.Path)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🔐 鉴权
// =============================================================================

// Authenticate 校验 X-API-Key 或 Authorization: Bearer <JWT>，任一通过即可。
// 未配置任何凭据时不做校验；skipPaths 中的路径（健康检查等）始终放行。
func Authenticate(cfg config.AuthConfig, skipPaths []string, logger *zap.Logger) Middleware {
	keySet := make(map[string]struct{}, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keySet[k] = struct{}{}
		}
	}
	skipSet := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = struct{}{}
	}
	verify := newJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	return func(next http.Handler) http.Handler {
		if len(keySet) == 0 && verify == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipSet[r.URL.Path]; skip || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" && cfg.AllowQueryAPIKey {
				key = r.URL.Query().Get("api_key")
			}
			if key != "" {
				if _, ok := keySet[key]; ok {
					ctx := ctxkeys.WithSubject(r.Context(), "api-key")
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && verify != nil {
				sub, err := verify(token)
				if err == nil {
					ctx := ctxkeys.WithSubject(r.Context(), sub)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				logger.Debug("JWT validation failed", zap.Error(err))
			}

			handlers.WriteErrorMessage(w, handlers.ErrUnauthorized, "invalid or missing credentials", logger)
		})
	}
}

// newJWTVerifier 返回 HS256 令牌校验函数，secret 为空时返回 nil
func newJWTVerifier(secret, issuer string) func(token string) (string, error) {
	if secret == "" {
		return nil
	}
	key := []byte(secret)
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(tokenStr string) (string, error) {
		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			return "", err
		}
		if !token.Valid {
			return "", errors.New("invalid token")
		}
		if claims.Subject == "" {
			return "jwt", nil
		}
		return claims.Subject, nil
	}
}

// =============================================================================
// 🚦 限流与跨域
// =============================================================================

// RateLimiter 基于 IP 的请求限流中间件，rps <= 0 时不限流。
// ctx 结束时停止清理过期 visitor 的后台 goroutine。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}

	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
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
				handlers.WriteErrorMessage(w, handlers.ErrRateLimited, "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS 跨域中间件。allowedOrigins 为空时不设置任何 CORS 头，预检请求返回 403。
func CORS(allowedOrigins []string) Middleware {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, allowed := originSet[origin]
			if !allowed {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization, X-Request-ID")
			h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
			h.Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

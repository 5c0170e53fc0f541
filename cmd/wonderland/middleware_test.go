package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/wonderland/config"
	"github.com/BaSui01/wonderland/internal/metrics"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	handler := Chain(okHandler(), SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(okHandler(), mark("a"), mark("b"), mark("c")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

// =============================================================================
// 🧪 RequestID / Recovery
// =============================================================================

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get("X-Request-ID")
		assert.Len(t, id, 36)
		assert.Equal(t, id, seen)
	})

	t.Run("client supplied is kept", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", "trace-abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, "trace-abc", w.Header().Get("X-Request-ID"))
		assert.Equal(t, "trace-abc", seen)
	})

	t.Run("oversized is replaced", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	})
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, SubjectFromContext(context.Background()))
}

func TestRecovery(t *testing.T) {
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), Recovery(zap.NewNop()), RequestID())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", gjson.Get(w.Body.String(), "error.code").String())
	assert.NotContains(t, w.Body.String(), "boom")
}

// =============================================================================
// 🧪 Authenticate
// =============================================================================

func TestAuthenticate_APIKey(t *testing.T) {
	auth := config.AuthConfig{APIKeys: []string{"key-1", "key-2"}}
	handler := Authenticate(auth, []string{"/health"}, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		path   string
		header string
		query  string
		want   int
	}{
		{"valid key", "/v1/generate", "key-2", "", http.StatusOK},
		{"missing key", "/v1/generate", "", "", http.StatusUnauthorized},
		{"wrong key", "/v1/generate", "nope", "", http.StatusUnauthorized},
		{"query key disabled", "/v1/generate", "", "key-1", http.StatusUnauthorized},
		{"skip path", "/health", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := tt.path
			if tt.query != "" {
				target += "?api_key=" + tt.query
			}
			r := httptest.NewRequest(http.MethodPost, target, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", gjson.Get(w.Body.String(), "error.code").String())
			}
		})
	}
}

func TestAuthenticate_QueryKeyAllowed(t *testing.T) {
	auth := config.AuthConfig{APIKeys: []string{"key-1"}, AllowQueryAPIKey: true}
	handler := Authenticate(auth, nil, zap.NewNop())(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/settings?api_key=key-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_Disabled(t *testing.T) {
	handler := Authenticate(config.AuthConfig{}, nil, zap.NewNop())(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/generate", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_JWT(t *testing.T) {
	const secret = "jwt-secret"
	auth := config.AuthConfig{JWTSecret: secret, JWTIssuer: "wonderland"}

	var subject string
	handler := Authenticate(auth, nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
	}))

	now := time.Now()
	valid := jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    "wonderland",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", signToken(t, secret, valid), http.StatusOK},
		{"expired", signToken(t, secret, expired), http.StatusUnauthorized},
		{"wrong issuer", signToken(t, secret, wrongIssuer), http.StatusUnauthorized},
		{"missing expiry", signToken(t, secret, noExpiry), http.StatusUnauthorized},
		{"wrong secret", signToken(t, "other-secret", valid), http.StatusUnauthorized},
		{"garbage", "not.a.token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject = ""
			r := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
			r.Header.Set("Authorization", "Bearer "+tt.token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "user-42", subject)
			}
		})
	}
}

func TestAuthenticate_NoneAlgorithmRejected(t *testing.T) {
	handler := Authenticate(config.AuthConfig{JWTSecret: "s"}, nil, zap.NewNop())(okHandler())

	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// 🧪 RateLimiter / CORS
// =============================================================================

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	send := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)

	limited := send("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "RATE_LIMITED", gjson.Get(limited.Body.String(), "error.code").String())
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	// 其他 IP 不受影响
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := RateLimiter(context.Background(), 0, 0, zap.NewNop())(okHandler())
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
	})

	t.Run("allowed preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("foreign preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("same origin request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

// =============================================================================
// 🧪 指标与追踪
// =============================================================================

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/v1/generate", normalizePath("/v1/generate"))
	assert.Equal(t, "/health", normalizePath("/health"))
	assert.Equal(t, "other", normalizePath("/v1/generate/12345"))
	assert.Equal(t, "other", normalizePath("/wp-admin"))
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWith("mw_test", reg, zap.NewNop())
	handler := MetricsMiddleware(collector)(okHandler())

	for _, path := range []string{"/v1/generate", "/v1/generate", "/random/thing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	count, err := promtest.GatherAndCount(reg, "mw_test_http_requests_total")
	require.NoError(t, err)
	// 两个标签组合：/v1/generate 与 other
	assert.Equal(t, 2, count)
}

func TestOTelTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	handler := OTelTracing(tp)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/generate", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /v1/generate", spans[0].Name())

	var status int64
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(http.StatusBadGateway), status)
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}

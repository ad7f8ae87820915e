package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/resilience-plane/internal/auth"
	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/internal/throttle"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAdmitter struct {
	result throttle.AdmitResult
	rules  []string
}

func (s *stubAdmitter) AdmitRule(_ context.Context, rule, _ string) throttle.AdmitResult {
	s.rules = append(s.rules, rule)
	return s.result
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdmission(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		result     throttle.AdmitResult
		code       int
		retryAfter string
	}{
		{name: "admitted", result: throttle.AdmitResult{Allowed: true, Limit: 10, Remaining: 9}, code: http.StatusOK},
		{name: "delayed", result: throttle.AdmitResult{Allowed: true, Limit: 10, Remaining: 1, DelayMs: 5}, code: http.StatusOK},
		{name: "rejected", result: throttle.AdmitResult{Limit: 10, ResetAt: now.Add(1500 * time.Millisecond)}, code: http.StatusTooManyRequests, retryAfter: "2"},
		{name: "reset already passed", result: throttle.AdmitResult{Limit: 10, ResetAt: now.Add(-time.Second)}, code: http.StatusTooManyRequests, retryAfter: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitter := &stubAdmitter{result: tt.result}
			r := gin.New()
			r.Use(Admission(admitter, func() time.Time { return now }))
			r.GET("/api/v1/status", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			assert.Equal(t, []string{"/api/v1/status"}, admitter.rules)
		})
	}
}

func TestAdmission_DelayHonorsCancellation(t *testing.T) {
	admitter := &stubAdmitter{result: throttle.AdmitResult{Allowed: true, Limit: 10, DelayMs: 10_000}}
	r := gin.New()
	r.Use(Admission(admitter, nil))
	r.GET("/slow", func(c *gin.Context) { c.Status(http.StatusOK) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx)

	assert.Equal(t, http.StatusServiceUnavailable, serve(r, req).Code)
}

func TestLoginRateLimit(t *testing.T) {
	r := gin.New()
	r.POST("/auth/login", LoginRateLimit(NewIPRateLimiter(1, 2)), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, httptest.NewRequest(http.MethodPost, "/auth/login", nil)).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestJWTAuth(t *testing.T) {
	svc := auth.NewService("secret", time.Hour, auth.Operator{})
	token, err := svc.GenerateToken("ops")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", JWTAuth(svc), func(c *gin.Context) {
		c.String(http.StatusOK, GetUsername(c))
	})

	tests := []struct {
		name   string
		header string
		cookie string
		code   int
	}{
		{name: "bearer", header: "Bearer " + token, code: http.StatusOK},
		{name: "cookie", cookie: token, code: http.StatusOK},
		{name: "missing", code: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", code: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			if tt.header != "" {
				req.Header.Set(AuthorizationHeader, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AuthCookie, Value: tt.cookie})
			}
			w := serve(r, req)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}

func TestTraceID(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetTraceID(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))
	assert.Equal(t, w.Header().Get(TraceIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceIDHeader, "abc-123")
	assert.Equal(t, "abc-123", serve(r, req).Body.String())
}

func TestRequestMetrics(t *testing.T) {
	sink := metrics.NewMemorySink()
	recorder := collector.NewRequestRecorder(time.Minute)

	r := gin.New()
	r.Use(RequestMetrics(recorder, sink))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))

	stats := recorder.Stats()
	assert.Equal(t, 0.5, stats.ErrorRate)
	assert.Equal(t, 1.0, sink.Counter("http_requests", map[string]string{"route": "/ok", "method": "GET", "status": "200"}))
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(true), RequestSizeLimit(8))
	r.POST("/api/v1/scale", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, w.Header().Get("Cache-Control"))

	w = serve(r, httptest.NewRequest(http.MethodPost, "/api/v1/scale", strings.NewReader(`{"target_replicas":4}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/core/tenant"
	"ledgercore/internal/infrastructure/cache"
)

func newTestRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, host, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if host != "" {
		req.Host = host
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHostGateExact(t *testing.T) {
	r := newTestRouter(HostGate([]string{"api.example.com"}))

	assert.Equal(t, http.StatusOK, doRequest(r, "api.example.com", "/ping").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "api.example.com:8443", "/ping").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "evil.example.org", "/ping").Code)
}

func TestHostGatePinnedPort(t *testing.T) {
	r := newTestRouter(HostGate([]string{"api.example.com:8443"}))

	assert.Equal(t, http.StatusOK, doRequest(r, "api.example.com:8443", "/ping").Code)
	// Pinned entries match only that port.
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "api.example.com", "/ping").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "api.example.com:9000", "/ping").Code)
}

func TestHostGateWildcard(t *testing.T) {
	r := newTestRouter(HostGate([]string{".example.com"}))

	assert.Equal(t, http.StatusOK, doRequest(r, "acme.example.com", "/ping").Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "deep.acme.example.com", "/ping").Code)
	// The wildcard never matches the apex.
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "example.com", "/ping").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(r, "notexample.com", "/ping").Code)
}

func TestHostGateHealthBypass(t *testing.T) {
	r := newTestRouter(HostGate([]string{"api.example.com"}))

	assert.Equal(t, http.StatusOK, doRequest(r, "10.0.0.5", "/health/live").Code)
}

func TestHostGateCaseInsensitive(t *testing.T) {
	r := newTestRouter(HostGate([]string{"API.Example.COM"}))

	assert.Equal(t, http.StatusOK, doRequest(r, "api.example.com", "/ping").Code)
}

func TestRateLimitRefusesOverBudget(t *testing.T) {
	limiter := cache.NewMemoryLimiter(time.Minute)
	r := newTestRouter(RateLimit(limiter, 3))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doRequest(r, "", "/ping").Code)
	}

	w := doRequest(r, "", "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimitExemptsHealth(t *testing.T) {
	limiter := cache.NewMemoryLimiter(time.Minute)
	r := newTestRouter(RateLimit(limiter, 1))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(r, "", "/health/live").Code)
	}
}

func TestAuthRateLimitSeparateBudget(t *testing.T) {
	limiter := cache.NewMemoryLimiter(time.Minute)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(RateLimit(limiter, 10))
	r.POST("/auth/login", AuthRateLimit(limiter, 2), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	// The general ladder still has budget for other routes.
	assert.Equal(t, http.StatusOK, doRequest(r, "", "/ping").Code)
}

func TestSecurityHeaders(t *testing.T) {
	r := newTestRouter(SecurityHeaders(true))

	w := doRequest(r, "", "/ping")
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "preload")
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestTraceGeneratesRequestID(t *testing.T) {
	r := newTestRouter(Trace())

	w := doRequest(r, "", "/ping")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, w.Header().Get(HeaderTraceID))
}

func TestTraceEchoesSuppliedRequestID(t *testing.T) {
	r := newTestRouter(Trace())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-abc-123", w.Header().Get(HeaderRequestID))
}

func TestOnboardingGateHonorsExemptPrefixes(t *testing.T) {
	pending := &tenant.Tenant{
		ID: "t1", Slug: "acme", Active: true,
		OnboardingStatus: tenant.OnboardingInProgress,
	}
	inject := func(c *gin.Context) { c.Set(tenantKey, pending) }

	// A prefix from the configured exemption list passes through.
	r := newTestRouter(inject, Onboarding([]string{"/ping"}))
	assert.Equal(t, http.StatusOK, doRequest(r, "", "/ping").Code)

	// Without the exemption the gate refuses until setup completes.
	r = newTestRouter(inject, Onboarding(nil))
	resp := doRequest(r, "", "/ping")
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Contains(t, resp.Body.String(), "ONBOARDING_INCOMPLETE")
}

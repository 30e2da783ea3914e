package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "leaderbus/pkg/api/middleware"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BlocksBeyondBurst(t *testing.T) {
	r := gin.New()
	r.POST("/depart", RateLimit(RateLimitConfig{RequestsPerMinute: 1, BurstSize: 2}), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	for i := 0; i < 2; i++ {
		if w := serve(r, httptest.NewRequest(http.MethodPost, "/depart", nil)); w.Code != http.StatusAccepted {
			t.Errorf("request %d should be allowed, got %d", i+1, w.Code)
		}
	}
	if w := serve(r, httptest.NewRequest(http.MethodPost, "/depart", nil)); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
}

func TestRequestID_KeepsIncomingHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := serve(r, req)

	if w.Header().Get("X-Request-ID") != "abc" || w.Body.String() != "abc" {
		t.Errorf("request id not propagated: header=%q body=%q", w.Header().Get("X-Request-ID"), w.Body.String())
	}
}

func TestRequestID_Generates(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("expected a uuid request id, got %q", w.Header().Get("X-Request-ID"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestTracing_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Tracing("test"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusTeapot {
		t.Errorf("expected handler status, got %d", w.Code)
	}
}

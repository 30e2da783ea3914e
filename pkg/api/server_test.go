package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"leaderbus/pkg/api"
	"leaderbus/pkg/api/middleware"
	"leaderbus/pkg/broadcast/memory"
	"leaderbus/pkg/elector"
	"leaderbus/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T) (*api.Server, *elector.Elector) {
	t.Helper()
	e := elector.New(memory.NewChannel(),
		elector.WithToken("node-1"),
		elector.WithLogger(zap.NewNop()),
		elector.WithResponseWindow(10*time.Millisecond),
	)
	t.Cleanup(func() { e.Close() })

	s := api.NewServer(api.Config{
		Port:        "0",
		Participant: e,
		Transport:   "memory",
		Logger:      zap.NewNop(),
	})
	return s, e
}

func do(s *api.Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, e := newServer(t)

	w := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["transport"])

	require.NoError(t, e.Close())
	w = do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetElector(t *testing.T) {
	s, e := newServer(t)
	require.True(t, e.TryApply(context.Background()))

	w := do(s, http.MethodGet, "/api/v1/elector")
	require.Equal(t, http.StatusOK, w.Code)

	var state elector.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, elector.State{Token: "node-1", IsLeader: true}, state)
}

func TestDepart(t *testing.T) {
	s, e := newServer(t)
	require.True(t, e.TryApply(context.Background()))

	w := do(s, http.MethodPost, "/api/v1/elector/depart")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, e.IsDead())
	assert.False(t, e.IsLeader())

	w = do(s, http.MethodPost, "/api/v1/elector/depart")
	assert.Contains(t, []int{http.StatusConflict, http.StatusTooManyRequests}, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t)
	do(s, http.MethodGet, "/api/v1/elector")

	w := do(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "leaderbus_http_requests_total")
}

func TestLogLevel(t *testing.T) {
	e := elector.New(memory.NewChannel(), elector.WithLogger(zap.NewNop()))
	t.Cleanup(func() { e.Close() })
	s := api.NewServer(api.Config{
		Port:        "0",
		Participant: e,
		Logger:      zap.NewNop(),
		RateLimit:   middleware.RateLimitConfig{RequestsPerMinute: 600, BurstSize: 10},
	})
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	put := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/api/v1/log/level", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		s.Handler().ServeHTTP(w, req)
		return w
	}

	w := put(`{"level":"debug"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "debug", logger.Level())

	w = do(s, http.MethodGet, "/api/v1/log/level")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"level":"debug"}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, put(`{"level":"loud"}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{}`).Code)
	assert.Equal(t, "debug", logger.Level(), "rejected requests leave the level alone")
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func serve(h HealthService, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestLiveness(t *testing.T) {
	w := serve(ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	h := &health{
		checks: []pinger{
			{name: "ok", ping: func(context.Context) error { return nil }},
			{name: "down", ping: func(context.Context) error { return errors.New("connection refused") }},
		},
		timeout: defaultTestTimeout,
	}

	w := serve(h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, statusUnhealthy, body.Status)
	require.Len(t, body.Deps, 2)
	require.Equal(t, statusHealthy, body.Deps[0].Status)
	require.Equal(t, "connection refused", body.Deps[1].Message)
}

func TestReadinessAllHealthy(t *testing.T) {
	h := &health{
		checks:  []pinger{{name: "ok", ping: func(context.Context) error { return nil }}},
		timeout: defaultTestTimeout,
	}
	w := serve(h, "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
}

const defaultTestTimeout = time.Second

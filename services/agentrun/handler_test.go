package agentrun

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"openpaws/pkg/middleware"
	"openpaws/pkg/tenancy"
	"openpaws/services/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(h *harness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(h.w)

	r := gin.New()
	r.Use(middleware.Error())
	r.Use(func(c *gin.Context) {
		scope, _ := tenancy.FromContext(h.ctx)
		c.Request = c.Request.WithContext(tenancy.WithScope(c.Request.Context(), scope))
		c.Next()
	})
	r.POST("/agents/runs", handler.Trigger)
	r.GET("/agents/runs", handler.List)
	r.GET("/agents/runs/:id", handler.Get)
	r.POST("/agents/runs/:id/approve", handler.Approve)
	r.POST("/agents/runs/:id/reject", handler.Reject)
	return r
}

func send(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerTriggerAndConflict(t *testing.T) {
	client := &fakeLLM{blockOn: pipeline.NodePlanner, blocked: make(chan struct{})}
	h := newHarness(t, client, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})
	r := newRouter(h)

	w := send(r, http.MethodPost, "/agents/runs",
		`{"agent_type":"content_pipeline","input_data":{"topic":"Launch","platforms":["twitter"]}}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var run AgentRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.Equal(t, StatusRunning, run.Status)
	require.Equal(t, "org-1", run.OrganizationID)
	require.Equal(t, "u-editor", run.TriggeredBy)
	<-client.blocked

	w = send(r, http.MethodPost, "/agents/runs/"+run.ID+"/approve", "")
	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "CONFLICT", body.Error.Code)
	require.Equal(t, "current_status", body.Error.Details[0].Field)
	require.Equal(t, "running", body.Error.Details[0].Message)

	w = send(r, http.MethodPost, "/agents/runs/"+run.ID+"/reject", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodGet, "/agents/runs?status=bogus", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodGet, "/agents/runs/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerRejectsUnknownAgentType(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{})
	r := newRouter(h)

	w := send(r, http.MethodPost, "/agents/runs", `{"agent_type":"nope","input_data":{}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

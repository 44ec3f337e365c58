package post

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"openpaws/pkg/middleware"
	"openpaws/pkg/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(h *harness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(h.svc)

	r := gin.New()
	r.Use(middleware.Error())
	r.Use(func(c *gin.Context) {
		ctx := tenancy.WithScope(c.Request.Context(), tenancy.Scope{TenantID: "org-1", CallerID: "u1", Role: "admin"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/posts", handler.Create)
	r.GET("/posts", handler.List)
	r.GET("/posts/:id", handler.Get)
	r.POST("/posts/:id/approve", handler.Approve)
	r.POST("/posts/:id/schedule", handler.Schedule)
	return r
}

func send(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerCreateApprove(t *testing.T) {
	h := newHarness(t)
	r := newRouter(h)

	w := send(r, http.MethodPost, "/posts", `{"platform":"twitter","content":"hi","social_account_id":"acct-tw"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var p Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Equal(t, StatusDraft, p.Status)

	w = send(r, http.MethodPost, "/posts/"+p.ID+"/approve", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Equal(t, StatusScheduled, p.Status)

	w = send(r, http.MethodPost, "/posts/"+p.ID+"/approve", "")
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerValidation(t *testing.T) {
	h := newHarness(t)
	r := newRouter(h)

	w := send(r, http.MethodPost, "/posts", `{"platform":"myspace","content":"hi"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodPost, "/posts", `{"platform":"twitter","content":"hi","media_urls":["not a url"]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodGet, "/posts?status=lost", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodPost, "/posts/123/schedule", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodGet, "/posts/123", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

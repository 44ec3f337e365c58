package agentrun

import (
	"context"
	"net/http"

	"openpaws/pkg/httpapi"
	"openpaws/pkg/tenancy"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	workflow *Workflow
}

func NewHandler(w *Workflow) *Handler {
	return &Handler{workflow: w}
}

func (h *Handler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	run, err := h.workflow.Trigger(c.Request.Context(), req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

func (h *Handler) List(c *gin.Context) {
	page, ok := httpapi.Page(c)
	if !ok {
		return
	}
	var q ListRunsQuery
	if !httpapi.BindQuery(c, &q) {
		return
	}
	out, err := h.workflow.List(c.Request.Context(), q, page)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c *gin.Context) {
	run, err := h.workflow.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) Approve(c *gin.Context) {
	scope, err := tenancy.Require(c.Request.Context())
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	run, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), scope.CallerID)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) Reject(c *gin.Context) {
	h.review(c, h.workflow.Reject)
}

func (h *Handler) RequestRevision(c *gin.Context) {
	h.review(c, h.workflow.RequestRevision)
}

func (h *Handler) review(c *gin.Context, decide func(ctx context.Context, id, reviewer, feedback string) (*AgentRun, error)) {
	scope, err := tenancy.Require(c.Request.Context())
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	var req ReviewRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	run, err := decide(c.Request.Context(), c.Param("id"), scope.CallerID, req.Feedback)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) Cancel(c *gin.Context) {
	run, err := h.workflow.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

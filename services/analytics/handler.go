package analytics

import (
	"net/http"

	"openpaws/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Record(c *gin.Context) {
	var req RecordRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	out, err := h.svc.Record(c.Request.Context(), c.Param("post_id"), req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ForPost(c *gin.Context) {
	out, err := h.svc.ForPost(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Summary(c *gin.Context) {
	var q SummaryQuery
	if !httpapi.BindQuery(c, &q) {
		return
	}
	out, err := h.svc.Summary(c.Request.Context(), q)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

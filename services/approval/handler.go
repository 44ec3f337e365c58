package approval

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

func (h *Handler) List(c *gin.Context) {
	page, ok := httpapi.Page(c)
	if !ok {
		return
	}
	var q ListQuery
	if !httpapi.BindQuery(c, &q) {
		return
	}
	out, err := h.svc.List(c.Request.Context(), q, page)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c *gin.Context) {
	out, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Review(c *gin.Context) {
	var req ReviewRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	out, err := h.svc.Review(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

package organization

import (
	"net/http"

	"openpaws/pkg/errutil"
	"openpaws/pkg/httpapi"
	"openpaws/services/identity"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func caller(c *gin.Context) (*identity.Identity, bool) {
	id, ok := identity.FromContext(c.Request.Context())
	if !ok {
		httpapi.Abort(c, errutil.Unauthorized("missing caller identity", nil))
	}
	return id, ok
}

func (h *Handler) Create(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req CreateOrganizationRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	org, err := h.svc.Create(c.Request.Context(), id.ID, req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (h *Handler) ListMine(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	out, err := h.svc.ListForUser(c.Request.Context(), id.ID)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *Handler) Current(c *gin.Context) {
	org, err := h.svc.Get(c.Request.Context())
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

func (h *Handler) ListMembers(c *gin.Context) {
	page, ok := httpapi.Page(c)
	if !ok {
		return
	}
	out, err := h.svc.ListMembers(c.Request.Context(), page)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMember(c *gin.Context) {
	var req UpdateMemberRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	m, err := h.svc.UpdateMemberRole(c.Request.Context(), c.Param("user_id"), req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handler) RemoveMember(c *gin.Context) {
	if err := h.svc.RemoveMember(c.Request.Context(), c.Param("user_id")); err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package identity

import (
	"net/http"

	"openpaws/pkg/errutil"
	"openpaws/pkg/httpapi"
	"openpaws/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserProfile struct {
	ID           string         `json:"id"`
	Email        string         `json:"email,omitempty"`
	FullName     string         `json:"full_name,omitempty"`
	AvatarURL    string         `json:"avatar_url,omitempty"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" binding:"omitempty,min=1,max=255"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,url"`
}

func profileOf(id *Identity) UserProfile {
	meta := id.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	p := UserProfile{ID: id.ID, Email: id.Email, UserMetadata: meta}
	p.FullName, _ = meta["full_name"].(string)
	p.AvatarURL, _ = meta["avatar_url"].(string)
	return p
}

// Handler serves the caller's own profile. It needs no organization.
type Handler struct {
	profiles ProfileStore
}

func NewHandler(profiles ProfileStore) *Handler {
	if profiles == nil {
		profiles = unconfiguredProfiles{}
	}
	return &Handler{profiles: profiles}
}

func (h *Handler) Me(c *gin.Context) {
	id, ok := FromContext(c.Request.Context())
	if !ok {
		httpapi.Abort(c, errutil.Unauthorized("missing caller identity", nil))
		return
	}
	c.JSON(http.StatusOK, profileOf(id))
}

func (h *Handler) UpdateMe(c *gin.Context) {
	id, ok := FromContext(c.Request.Context())
	if !ok {
		httpapi.Abort(c, errutil.Unauthorized("missing caller identity", nil))
		return
	}
	var req UpdateProfileRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}

	data := map[string]any{}
	if req.FullName != nil {
		data["full_name"] = *req.FullName
	}
	if req.AvatarURL != nil {
		data["avatar_url"] = *req.AvatarURL
	}
	if len(data) == 0 {
		httpapi.Abort(c, errutil.BadRequest("no fields to update", nil))
		return
	}

	updated, err := h.profiles.UpdateMetadata(c.Request.Context(), bearer(c.GetHeader("Authorization")), data)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	logger.FromContext(c.Request.Context(), zap.String("user_id", id.ID)).Info("profile updated")
	c.JSON(http.StatusOK, profileOf(updated))
}

// Package media hands out presigned object storage URLs so clients upload
// images and videos directly, without streaming them through the API.
package media

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"openpaws/pkg/config"
	"openpaws/pkg/errutil"
	"openpaws/pkg/httpapi"
	"openpaws/pkg/logger"
	"openpaws/pkg/minio"
	"openpaws/pkg/tenancy"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("media.module",
	fx.Provide(
		NewService,
		NewHandler,
	),
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type UploadRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required,max=100"`
}

type Upload struct {
	UploadURL string    `json:"upload_url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	store  minio.Storage
	node   *snowflake.Node
	expiry time.Duration
	now    func() time.Time
}

type ServiceParams struct {
	fx.In

	Config  *config.Config
	Storage minio.Storage
	Node    *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	expiry := p.Config.Minio.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Service{store: p.Storage, node: p.Node, expiry: expiry, now: time.Now}
}

// objectKey places every object under the organization's prefix.
func objectKey(org, id, filename string) string {
	name := unsafeName.ReplaceAllString(path.Base(filename), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return fmt.Sprintf("%s/%s/%s", org, id, name)
}

func (s *Service) CreateUpload(ctx context.Context, req UploadRequest) (*Upload, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	ct := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "video/") {
		return nil, errutil.ValidationFailed("unsupported media type", nil,
			errutil.WithDetails(errutil.Detail{Field: "content_type", Message: "must be image/* or video/*"}))
	}

	key := objectKey(scope.TenantID, s.node.Generate().String(), req.Filename)
	u, err := s.store.PresignPut(ctx, key, s.expiry)
	if err != nil {
		logger.FromContext(ctx).Error("failed to presign upload", zap.String("object_key", key), zap.Error(err))
		return nil, errutil.BadGateway("object storage unavailable", err)
	}
	return &Upload{UploadURL: u.String(), ObjectKey: key, ExpiresAt: s.now().Add(s.expiry).UTC()}, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateUpload(c *gin.Context) {
	var req UploadRequest
	if !httpapi.BindJSON(c, &req) {
		return
	}
	out, err := h.svc.CreateUpload(c.Request.Context(), req)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"openpaws/pkg/authz"
	"openpaws/pkg/errutil"
	"openpaws/pkg/middleware"
	"openpaws/pkg/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const orgID = "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f"

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "valid" {
		return &Identity{ID: "user-1"}, nil
	}
	return nil, errutil.Unauthorized("invalid token", nil)
}

type fakeMembers struct {
	roles map[string]string
}

func (f fakeMembers) MemberRole(_ context.Context, org, user string) (string, error) {
	if role, ok := f.roles[org+"/"+user]; ok {
		return role, nil
	}
	return "", errutil.NotFound("member not found", nil)
}

func newGuardRouter(t *testing.T, role string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authz.NewEnforcer(nil)
	require.NoError(t, err)

	members := fakeMembers{roles: map[string]string{}}
	if role != "" {
		members.roles[orgID+"/user-1"] = role
	}
	g := NewGuard(fakeVerifier{}, members, enforcer)

	r := gin.New()
	r.Use(middleware.Error())
	api := r.Group("/", g.Authenticate(), g.Organization())
	api.GET("/posts", g.Authorize(authz.ResourcePosts, authz.ActionRead), func(c *gin.Context) {
		scope, _ := tenancy.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"tenant": scope.TenantID, "role": scope.Role})
	})
	api.POST("/posts/approve", g.Authorize(authz.ResourcePosts, authz.ActionApprove), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r *gin.Engine, method, path, token, org string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if org != "" {
		req.Header.Set(HeaderOrganization, org)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestGuardRejectsMissingToken(t *testing.T) {
	w := do(newGuardRouter(t, "editor"), http.MethodGet, "/posts", "", orgID)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, string(errutil.StatusUnauthorized), errorCode(t, w))
}

func TestGuardRejectsInvalidToken(t *testing.T) {
	w := do(newGuardRouter(t, "editor"), http.MethodGet, "/posts", "forged", orgID)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGuardRequiresUUIDOrganization(t *testing.T) {
	r := newGuardRouter(t, "editor")

	w := do(r, http.MethodGet, "/posts", "valid", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/posts", "valid", "acme")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGuardForbidsNonMembers(t *testing.T) {
	w := do(newGuardRouter(t, ""), http.MethodGet, "/posts", "valid", orgID)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "You are not a member of this organization")
}

func TestGuardAttachesScope(t *testing.T) {
	w := do(newGuardRouter(t, "viewer"), http.MethodGet, "/posts", "valid", orgID)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"tenant":"`+orgID+`","role":"viewer"}`, w.Body.String())
}

func TestGuardAcceptsOrganizationQuery(t *testing.T) {
	w := do(newGuardRouter(t, "viewer"), http.MethodGet, "/posts?organization_id="+orgID, "valid", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGuardAuthorizeByRole(t *testing.T) {
	w := do(newGuardRouter(t, "editor"), http.MethodPost, "/posts/approve", "valid", orgID)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = do(newGuardRouter(t, "admin"), http.MethodPost, "/posts/approve", "valid", orgID)
	require.Equal(t, http.StatusNoContent, w.Code)
}

package identity

import (
	"context"
	"strings"

	"openpaws/pkg/authz"
	"openpaws/pkg/errutil"
	"openpaws/pkg/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderOrganization = "X-Organization-ID"

// MembershipLookup resolves the caller's role inside an organization. It
// returns a NotFound error when the caller is not a member.
type MembershipLookup interface {
	MemberRole(ctx context.Context, organizationID, userID string) (string, error)
}

type Guard struct {
	verifier Verifier
	members  MembershipLookup
	enforcer *authz.Enforcer
}

func NewGuard(verifier Verifier, members MembershipLookup, enforcer *authz.Enforcer) *Guard {
	return &Guard{verifier: verifier, members: members, enforcer: enforcer}
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate requires a valid bearer credential.
func (g *Guard) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			fail(c, errutil.Unauthorized("missing bearer token", nil))
			return
		}

		id, err := g.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			fail(c, err)
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// Organization resolves the tenant scope. Non-members get a Forbidden error
// that says nothing about whether the organization exists.
func (g *Guard) Organization() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		caller, ok := FromContext(ctx)
		if !ok {
			fail(c, errutil.Unauthorized("missing caller identity", nil))
			return
		}

		raw := c.GetHeader(HeaderOrganization)
		if raw == "" {
			raw = c.Query("organization_id")
		}
		if raw == "" {
			fail(c, errutil.BadRequest("organization id is required", nil,
				errutil.WithDetails(errutil.Detail{Field: HeaderOrganization, Message: "required"})))
			return
		}
		orgID, err := uuid.Parse(raw)
		if err != nil {
			fail(c, errutil.BadRequest("invalid organization id", err,
				errutil.WithDetails(errutil.Detail{Field: HeaderOrganization, Message: "must be a UUID"})))
			return
		}

		role, err := g.members.MemberRole(ctx, orgID.String(), caller.ID)
		if err != nil {
			if errutil.IsCode(err, errutil.StatusNotFound) {
				fail(c, errutil.Forbidden("You are not a member of this organization", nil))
				return
			}
			fail(c, err)
			return
		}

		scope := tenancy.Scope{TenantID: orgID.String(), CallerID: caller.ID, Role: role}
		c.Request = c.Request.WithContext(tenancy.WithScope(ctx, scope))
		c.Next()
	}
}

// Authorize checks the scope's role against the access policy.
func (g *Guard) Authorize(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := tenancy.Require(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}

		ok, err := g.enforcer.Allow(scope.Role, obj, act)
		if err != nil {
			fail(c, errutil.Internal("authorization check failed", err))
			return
		}
		if !ok {
			fail(c, errutil.Forbidden("insufficient role", nil,
				errutil.WithDetails(errutil.Detail{Field: "role", Message: scope.Role})))
			return
		}
		c.Next()
	}
}

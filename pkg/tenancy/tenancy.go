// Package tenancy carries the resolved organization scope of a request.
//
// The scope is attached once by the organization guard and read by every
// tenant-owned repository. Code that cannot find a scope must refuse to
// touch tenant data.
package tenancy

import (
	"context"

	"openpaws/pkg/errutil"
)

type Scope struct {
	TenantID string
	CallerID string
	Role     string
}

type scopeKey struct{}

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(Scope)
	if !ok || s.TenantID == "" {
		return Scope{}, false
	}
	return s, true
}

// Require returns the scope or a Forbidden error when none is attached.
func Require(ctx context.Context) (Scope, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return Scope{}, errutil.Forbidden("organization scope required", nil)
	}
	return s, nil
}

// SystemCaller is the caller recorded for background work.
const SystemCaller = "system"

// WithSystemScope scopes ctx to tenantID on behalf of background work.
// Authorization is not applied to it; only the tenant filter is.
func WithSystemScope(ctx context.Context, tenantID string) context.Context {
	return WithScope(ctx, Scope{TenantID: tenantID, CallerID: SystemCaller})
}

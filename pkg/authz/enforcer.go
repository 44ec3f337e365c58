package authz

import (
	"fmt"

	"openpaws/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("authz",
	fx.Provide(NewEnforcer),
)

// Resources and actions checked by the HTTP layer.
const (
	ResourceOrganization   = "organization"
	ResourceMembers        = "members"
	ResourcePosts          = "posts"
	ResourceCampaigns      = "campaigns"
	ResourceCalendar       = "calendar"
	ResourceSocialAccounts = "social_accounts"
	ResourceAnalytics      = "analytics"
	ResourceApprovals      = "approvals"
	ResourceAgentRuns      = "agent_runs"
	ResourceMedia          = "media"

	ActionRead    = "read"
	ActionWrite   = "write"
	ActionApprove = "approve"
	ActionManage  = "manage"
)

// Policy subjects are minimum roles; the matcher compares them through
// Meets, so an admin satisfies every editor and viewer rule.
const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = meets(r.sub, p.sub) && keyMatch(r.obj, p.obj) && r.act == p.act
`

var defaultPolicy = [][]string{
	{RoleViewer, "*", ActionRead},
	{RoleEditor, ResourcePosts, ActionWrite},
	{RoleEditor, ResourceCampaigns, ActionWrite},
	{RoleEditor, ResourceCalendar, ActionWrite},
	{RoleEditor, ResourceMedia, ActionWrite},
	{RoleEditor, ResourceAgentRuns, ActionWrite},
	{RoleEditor, ResourceApprovals, ActionWrite},
	{RoleAdmin, ResourcePosts, ActionApprove},
	{RoleAdmin, ResourceAgentRuns, ActionApprove},
	{RoleAdmin, ResourceApprovals, ActionApprove},
	{RoleAdmin, ResourceSocialAccounts, ActionWrite},
	{RoleAdmin, ResourceAnalytics, ActionWrite},
	{RoleAdmin, ResourceMembers, ActionManage},
	{RoleOwner, ResourceOrganization, ActionManage},
}

type Enforcer struct {
	e *casbin.Enforcer
}

// NewEnforcer loads ACCESS_CONTROL.MODEL / POLICY when configured and
// falls back to the built-in model and policy table.
func NewEnforcer(cfg *config.Config) (*Enforcer, error) {
	var (
		e   *casbin.Enforcer
		err error
	)

	if cfg != nil && cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		e, err = casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
		if err != nil {
			return nil, fmt.Errorf("load access control files: %w", err)
		}
		zap.L().Info("access control loaded from files",
			zap.String("model", cfg.AccessControl.Model),
			zap.String("policy", cfg.AccessControl.Policy))
	} else {
		m, err := model.NewModelFromString(modelText)
		if err != nil {
			return nil, err
		}
		e, err = casbin.NewEnforcer(m)
		if err != nil {
			return nil, err
		}
		if _, err := e.AddPolicies(defaultPolicy); err != nil {
			return nil, err
		}
	}

	e.AddFunction("meets", meetsFunc)
	return &Enforcer{e: e}, nil
}

func meetsFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("meets expects 2 arguments, got %d", len(args))
	}
	user, _ := args[0].(string)
	required, _ := args[1].(string)
	return Meets(user, required), nil
}

// Allow reports whether role may perform act on obj.
func (a *Enforcer) Allow(role, obj, act string) (bool, error) {
	return a.e.Enforce(role, obj, act)
}

package organization

import (
	"context"
	"errors"
	"strings"

	"openpaws/pkg/authz"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/tenancy"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	orgs    repository.Repository[Organization]
	members repository.Repository[Member]
	scoped  repository.Tenanted[Member]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		orgs:    repository.ProvideStore[Organization](p.DB),
		members: repository.ProvideStore[Member](p.DB),
		scoped:  repository.ProvideTenanted[Member](p.DB, "member"),
	}
}

// Create registers an organization and makes the caller its owner.
func (s *Service) Create(ctx context.Context, callerID string, req CreateOrganizationRequest) (*Organization, error) {
	log := logger.FromContext(ctx, zap.String("caller_id", callerID))

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errutil.ValidationFailed("name is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}
	orgSlug := slug.Make(req.Slug)
	if orgSlug == "" {
		orgSlug = slug.Make(name)
	}
	if !slug.IsSlug(orgSlug) {
		return nil, errutil.ValidationFailed("invalid slug", nil,
			errutil.WithDetails(errutil.Detail{Field: "slug", Message: "must contain letters or digits"}))
	}

	org := &Organization{
		ID:      uuid.NewString(),
		Name:    name,
		Slug:    orgSlug,
		OwnerID: callerID,
	}
	owner := &Member{
		ID:             s.node.Generate().String(),
		OrganizationID: org.ID,
		UserID:         callerID,
		Role:           authz.RoleOwner,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orgs.WithTrx(tx).Create(ctx, org); err != nil {
			return err
		}
		return s.members.WithTrx(tx).Create(ctx, owner)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("organization slug already taken", err,
				errutil.WithDetails(errutil.Detail{Field: "slug", Message: orgSlug}))
		}
		log.Error("failed to create organization", zap.Error(err))
		return nil, errutil.Internal("failed to create organization", err)
	}

	log.Info("organization created", zap.String("organization_id", org.ID), zap.String("slug", org.Slug))
	return org, nil
}

// ListForUser returns every organization userID belongs to.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	members, err := s.members.Find(ctx, &Member{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to list memberships", err)
	}
	if len(members) == 0 {
		return []Membership{}, nil
	}

	ids := make([]string, 0, len(members))
	roles := make(map[string]string, len(members))
	for _, m := range members {
		ids = append(ids, m.OrganizationID)
		roles[m.OrganizationID] = m.Role
	}

	var orgs []*Organization
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at DESC").Find(&orgs).Error; err != nil {
		return nil, errutil.Internal("failed to list organizations", err)
	}

	out := make([]Membership, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, Membership{Organization: o, Role: roles[o.ID]})
	}
	return out, nil
}

// MemberRole implements the guard's membership lookup.
func (s *Service) MemberRole(ctx context.Context, organizationID, userID string) (string, error) {
	m, err := s.members.FindOne(ctx, &Member{OrganizationID: organizationID, UserID: userID})
	if err != nil {
		return "", errutil.Internal("failed to load membership", err)
	}
	if m == nil {
		return "", errutil.NotFound("member not found", nil)
	}
	return m.Role, nil
}

func (s *Service) Get(ctx context.Context) (*Organization, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.FindOne(ctx, &Organization{ID: scope.TenantID})
	if err != nil {
		return nil, errutil.Internal("failed to load organization", err)
	}
	if org == nil {
		return nil, errutil.NotFound("organization not found", nil)
	}
	return org, nil
}

func (s *Service) ListMembers(ctx context.Context, page pagination.Pagination) (*pagination.Page[Member], error) {
	items, total, err := s.scoped.List(ctx, &Member{}, page)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

// canAssign reports whether caller may hand out role. Only owners mint
// owners; everyone else is capped at their own level.
func canAssign(caller, role string) bool {
	return authz.Valid(role) && authz.Meets(caller, role)
}

func (s *Service) AddMember(ctx context.Context, req AddMemberRequest) (*Member, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !canAssign(scope.Role, req.Role) {
		return nil, errutil.Forbidden("cannot grant a role above your own", nil,
			errutil.WithDetails(errutil.Detail{Field: "role", Message: req.Role}))
	}

	invitedBy := scope.CallerID
	m := &Member{
		ID:        s.node.Generate().String(),
		UserID:    req.UserID,
		Role:      req.Role,
		InvitedBy: &invitedBy,
	}
	if err := s.scoped.Create(ctx, m); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("member added", zap.String("user_id", m.UserID), zap.String("role", m.Role))
	return m, nil
}

func (s *Service) findMember(ctx context.Context, userID string) (*Member, error) {
	items, _, err := s.scoped.List(ctx, &Member{UserID: userID}, pagination.Pagination{Page: 1, Size: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errutil.NotFound("member not found", nil)
	}
	return items[0], nil
}

func (s *Service) UpdateMemberRole(ctx context.Context, userID string, req UpdateMemberRequest) (*Member, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.findMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !canAssign(scope.Role, req.Role) || !authz.Meets(scope.Role, m.Role) {
		return nil, errutil.Forbidden("cannot change a role above your own", nil)
	}
	if m.Role == authz.RoleOwner && req.Role != authz.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, m.UserID); err != nil {
			return nil, err
		}
	}
	return s.scoped.Update(ctx, m.ID, map[string]any{"role": req.Role})
}

func (s *Service) RemoveMember(ctx context.Context, userID string) error {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return err
	}
	m, err := s.findMember(ctx, userID)
	if err != nil {
		return err
	}
	if !authz.Meets(scope.Role, m.Role) {
		return errutil.Forbidden("cannot remove a member above your own role", nil)
	}
	if m.Role == authz.RoleOwner {
		if err := s.ensureAnotherOwner(ctx, m.UserID); err != nil {
			return err
		}
	}
	return s.scoped.Delete(ctx, m.ID)
}

// ensureAnotherOwner keeps at least one owner on every organization.
func (s *Service) ensureAnotherOwner(ctx context.Context, userID string) error {
	owners, _, err := s.scoped.List(ctx, &Member{Role: authz.RoleOwner}, pagination.Pagination{Page: 1, Size: 2})
	if err != nil {
		return err
	}
	for _, o := range owners {
		if o.UserID != userID {
			return nil
		}
	}
	return errutil.Conflict("organization must keep at least one owner", nil,
		errutil.WithDetails(errutil.Detail{Field: "user_id", Message: userID}))
}

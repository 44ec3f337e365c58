package campaign

import (
	"context"
	"time"

	"openpaws/pkg/db/option"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/sequence"
	"openpaws/pkg/tenancy"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	node *snowflake.Node
	seq  sequence.Generator
	now  func() time.Time

	campaigns repository.Tenanted[Campaign]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:      p.Node,
		seq:       p.Seq,
		now:       time.Now,
		campaigns: repository.ProvideTenanted[Campaign](p.DB, "campaign"),
	}
}

func validWindow(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return errutil.ValidationFailed("end_date must not be before start_date", nil,
			errutil.WithDetails(errutil.Detail{Field: "end_date", Message: "before start_date"}))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateCampaignRequest) (*Campaign, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := validWindow(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx, scope.TenantID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to issue campaign code", zap.Error(err))
		return nil, errutil.Internal("failed to issue campaign code", err)
	}

	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	platforms := req.TargetPlatforms
	if platforms == nil {
		platforms = []string{}
	}

	c := &Campaign{
		ID:              s.node.Generate().String(),
		Code:            code,
		Name:            req.Name,
		Description:     req.Description,
		Status:          status,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		Goals:           req.Goals,
		TargetPlatforms: platforms,
		CreatedBy:       scope.CallerID,
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("campaign created", zap.String("campaign_id", c.ID), zap.String("code", c.Code))
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateCampaignRequest) (*Campaign, error) {
	current, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.Name != nil {
		values["name"] = *req.Name
	}
	if req.Description != nil {
		values["description"] = *req.Description
	}
	if req.Status != nil {
		values["status"] = *req.Status
	}
	start, end := current.StartDate, current.EndDate
	if req.StartDate != nil {
		values["start_date"] = *req.StartDate
		start = req.StartDate
	}
	if req.EndDate != nil {
		values["end_date"] = *req.EndDate
		end = req.EndDate
	}
	if err := validWindow(start, end); err != nil {
		return nil, err
	}
	if req.Goals != nil {
		values["goals"] = req.Goals
	}
	if req.TargetPlatforms != nil {
		values["target_platforms"] = datatypes.JSONSlice[string](req.TargetPlatforms)
	}
	return s.campaigns.Update(ctx, id, values)
}

func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, q ListCampaignsQuery, page pagination.Pagination) (*pagination.Page[Campaign], error) {
	filter := &Campaign{Status: Status(q.Status)}
	var opts []option.QueryOption
	if q.OnlyActive {
		now := s.now()
		filter.Status = StatusActive
		opts = append(opts, func(db *gorm.DB) *gorm.DB {
			return db.Where("(start_date IS NULL OR start_date <= ?) AND (end_date IS NULL OR end_date >= ?)", now, now)
		})
	}
	items, total, err := s.campaigns.List(ctx, filter, page, opts...)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.campaigns.Delete(ctx, id)
}

// Clone copies a campaign into a new draft with a fresh code.
func (s *Service) Clone(ctx context.Context, id string, req CloneCampaignRequest) (*Campaign, error) {
	original, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, CreateCampaignRequest{
		Name:            req.Name,
		Description:     original.Description,
		Status:          StatusDraft,
		StartDate:       original.StartDate,
		EndDate:         original.EndDate,
		Goals:           original.Goals,
		TargetPlatforms: original.TargetPlatforms,
	})
}

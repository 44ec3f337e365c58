package calendar

import (
	"context"
	"time"

	"openpaws/pkg/db/option"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/tenancy"
	"openpaws/services/campaign"
	"openpaws/services/post"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CampaignSource interface {
	Get(ctx context.Context, id string) (*campaign.Campaign, error)
}

type PostSource interface {
	Get(ctx context.Context, id string) (*post.Post, error)
}

type Service struct {
	node      *snowflake.Node
	campaigns CampaignSource
	posts     PostSource

	entries repository.Tenanted[Entry]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Campaigns CampaignSource
	Posts     PostSource
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:      p.Node,
		campaigns: p.Campaigns,
		posts:     p.Posts,
		entries:   repository.ProvideTenanted[Entry](p.DB, "calendar entry"),
	}
}

func parseDate(field, v string) (datatypes.Date, error) {
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return datatypes.Date{}, errutil.ValidationFailed("invalid date", err,
			errutil.WithDetails(errutil.Detail{Field: field, Message: "expected YYYY-MM-DD"}))
	}
	return datatypes.Date(t), nil
}

func blank(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

func (s *Service) checkRefs(ctx context.Context, campaignID, postID *string) error {
	if id := blank(campaignID); id != nil {
		if _, err := s.campaigns.Get(ctx, *id); err != nil {
			if errutil.IsCode(err, errutil.StatusNotFound) {
				return errutil.BadRequest("campaign not found", nil,
					errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: "unknown campaign"}))
			}
			return err
		}
	}
	if id := blank(postID); id != nil {
		if _, err := s.posts.Get(ctx, *id); err != nil {
			if errutil.IsCode(err, errutil.StatusNotFound) {
				return errutil.BadRequest("post not found", nil,
					errutil.WithDetails(errutil.Detail{Field: "post_id", Message: "unknown post"}))
			}
			return err
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateEntryRequest) (*Entry, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("planned_date", req.PlannedDate)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req.CampaignID, req.PostID); err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "text"
	}
	e := &Entry{
		ID:          s.node.Generate().String(),
		CampaignID:  blank(req.CampaignID),
		PostID:      blank(req.PostID),
		PlannedDate: date,
		PlannedTime: req.PlannedTime,
		Platform:    req.Platform,
		Topic:       req.Topic,
		ContentType: contentType,
		Notes:       req.Notes,
		Status:      StatusPlanned,
		CreatedBy:   scope.CallerID,
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, zap.String("entry_id", e.ID), zap.String("planned_date", req.PlannedDate)).
		Info("calendar entry created")
	return e, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpdateEntryRequest) (*Entry, error) {
	if _, err := s.entries.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req.CampaignID, req.PostID); err != nil {
		return nil, err
	}

	values := map[string]any{}
	if req.CampaignID != nil {
		values["campaign_id"] = blank(req.CampaignID)
	}
	if req.PostID != nil {
		values["post_id"] = blank(req.PostID)
	}
	if req.PlannedDate != nil {
		date, err := parseDate("planned_date", *req.PlannedDate)
		if err != nil {
			return nil, err
		}
		values["planned_date"] = date
	}
	if req.PlannedTime != nil {
		values["planned_time"] = blank(req.PlannedTime)
	}
	if req.Topic != nil {
		values["topic"] = *req.Topic
	}
	if req.ContentType != nil {
		values["content_type"] = *req.ContentType
	}
	if req.Notes != nil {
		values["notes"] = *req.Notes
	}
	if req.Status != nil {
		values["status"] = *req.Status
	}
	return s.entries.Update(ctx, id, values)
}

func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	return s.entries.Get(ctx, id)
}

// List returns entries inside the inclusive [from, to] date range, earliest
// first.
func (s *Service) List(ctx context.Context, q ListQuery, page pagination.Pagination) (*pagination.Page[Entry], error) {
	var conds []option.Condition
	var from, to datatypes.Date
	var err error
	if q.From != "" {
		if from, err = parseDate("from", q.From); err != nil {
			return nil, err
		}
		conds = append(conds, option.Condition{Field: "planned_date", Operator: option.GTE, Value: from})
	}
	if q.To != "" {
		if to, err = parseDate("to", q.To); err != nil {
			return nil, err
		}
		conds = append(conds, option.Condition{Field: "planned_date", Operator: option.LTE, Value: to})
	}
	if q.From != "" && q.To != "" && time.Time(to).Before(time.Time(from)) {
		return nil, errutil.ValidationFailed("to must not be before from", nil,
			errutil.WithDetails(errutil.Detail{Field: "to", Message: "before from"}))
	}

	filter := &Entry{Status: Status(q.Status), Platform: q.Platform}
	if q.CampaignID != "" {
		filter.CampaignID = &q.CampaignID
	}
	items, total, err := s.entries.List(ctx, filter, page,
		option.ApplyOperator(conds...),
		func(db *gorm.DB) *gorm.DB {
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "planned_date"}}).
				Order(clause.OrderByColumn{Column: clause.Column{Name: "planned_time"}})
		},
	)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.entries.Delete(ctx, id)
}

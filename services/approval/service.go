package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/tenancy"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Hook reacts to a review inside the review transaction. Returning an error
// rolls the review back.
type Hook func(ctx context.Context, tx *gorm.DB, item *Item) error

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	items repository.Tenanted[Item]

	mu    sync.RWMutex
	hooks map[string]Hook
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		now:   func() time.Time { return time.Now().UTC() },
		items: repository.ProvideTenanted[Item](p.DB, "approval item"),
		hooks: make(map[string]Hook),
	}
}

// OnReviewed registers the hook run when an item of contentType is reviewed.
func (s *Service) OnReviewed(contentType string, h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[contentType] = h
}

func (s *Service) hook(contentType string) Hook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks[contentType]
}

// Submit queues content for review. Only one pending item may exist per
// piece of content.
func (s *Service) Submit(ctx context.Context, contentType, contentID string) (*Item, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.FindPending(ctx, contentType, contentID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, errutil.Conflict(contentType+" is already awaiting review", nil,
			errutil.WithDetails(errutil.Detail{Field: "approval_id", Message: pending.ID}))
	}

	item := &Item{
		ID:          s.node.Generate().String(),
		ContentType: contentType,
		ContentID:   contentID,
		Status:      StatusPending,
		SubmittedBy: scope.CallerID,
		SubmittedAt: s.now(),
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, zap.String("approval_id", item.ID), zap.String("content_type", contentType), zap.String("content_id", contentID)).
		Info("content submitted for review")
	return item, nil
}

// FindPending returns the pending item for the content, or nil.
func (s *Service) FindPending(ctx context.Context, contentType, contentID string) (*Item, error) {
	items, _, err := s.items.List(ctx, &Item{ContentType: contentType, ContentID: contentID, Status: StatusPending},
		pagination.Pagination{Page: 1, Size: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// Review resolves a pending item. Concurrent reviews of the same item have
// a single winner; the others get Conflict.
func (s *Service) Review(ctx context.Context, id string, req ReviewRequest) (*Item, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	values := map[string]any{
		"status":      req.Status,
		"reviewed_by": scope.CallerID,
		"reviewed_at": now,
	}
	if req.Notes != "" {
		values["reviewer_notes"] = req.Notes
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.items.WithTrx(tx).Transition(ctx, id, "status", []string{string(StatusPending)}, values)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.items.WithTrx(tx).Get(ctx, id)
			if err != nil {
				return err
			}
			return errutil.Conflict(fmt.Sprintf("approval item is %s", current.Status), nil,
				errutil.WithDetails(errutil.Detail{Field: "current_status", Message: string(current.Status)}))
		}
		item.Status = req.Status
		item.ReviewedBy = &scope.CallerID
		item.ReviewedAt = &now
		if req.Notes != "" {
			item.ReviewerNotes = &req.Notes
		}
		if h := s.hook(item.ContentType); h != nil {
			return h(ctx, tx, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, zap.String("approval_id", id), zap.String("status", string(req.Status))).Info("content reviewed")
	return s.items.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	return s.items.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, q ListQuery, page pagination.Pagination) (*pagination.Page[Item], error) {
	items, total, err := s.items.List(ctx, &Item{Status: Status(q.Status), ContentType: q.ContentType}, page)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

package post

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/task"
	"openpaws/pkg/taskname"
	"openpaws/pkg/tenancy"
	"openpaws/services/approval"
	"openpaws/services/campaign"
	"openpaws/services/socialaccount"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AccountSource interface {
	Get(ctx context.Context, id string) (*socialaccount.SocialAccount, error)
	Credentials(ctx context.Context, id string) (*socialaccount.Credentials, error)
}

type CampaignSource interface {
	Get(ctx context.Context, id string) (*campaign.Campaign, error)
}

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	approvals *approval.Service
	accounts  AccountSource
	campaigns CampaignSource
	enqueuer  task.Enqueuer
	now       func() time.Time

	posts repository.Tenanted[Post]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Approvals *approval.Service
	Accounts  AccountSource
	Campaigns CampaignSource
	Enqueuer  task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		db:        p.DB,
		node:      p.Node,
		approvals: p.Approvals,
		accounts:  p.Accounts,
		campaigns: p.Campaigns,
		enqueuer:  p.Enqueuer,
		now:       func() time.Time { return time.Now().UTC() },
		posts:     repository.ProvideTenanted[Post](p.DB, "post"),
	}
	p.Approvals.OnReviewed(approval.ContentTypePost, s.onReviewed)
	return s
}

func conflict(p *Post, msg string) error {
	return errutil.Conflict(msg, nil,
		errutil.WithDetails(errutil.Detail{Field: "current_status", Message: string(p.Status)}))
}

func (s *Service) checkRefs(ctx context.Context, platform string, campaignID, accountID *string) error {
	if campaignID != nil && *campaignID != "" {
		if _, err := s.campaigns.Get(ctx, *campaignID); err != nil {
			if errutil.IsCode(err, errutil.StatusNotFound) {
				return errutil.BadRequest("campaign not found", nil,
					errutil.WithDetails(errutil.Detail{Field: "campaign_id", Message: "unknown campaign"}))
			}
			return err
		}
	}
	if accountID != nil && *accountID != "" {
		acct, err := s.accounts.Get(ctx, *accountID)
		if err != nil {
			if errutil.IsCode(err, errutil.StatusNotFound) {
				return errutil.BadRequest("social account not found", nil,
					errutil.WithDetails(errutil.Detail{Field: "social_account_id", Message: "unknown social account"}))
			}
			return err
		}
		if acct.Platform != platform {
			return errutil.BadRequest("social account belongs to another platform", nil,
				errutil.WithDetails(errutil.Detail{Field: "social_account_id", Message: "expected a " + platform + " account"}))
		}
		if !acct.IsActive {
			return errutil.BadRequest("social account is inactive", nil,
				errutil.WithDetails(errutil.Detail{Field: "social_account_id", Message: "reconnect the account"}))
		}
	}
	return nil
}

func nonEmpty(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

// normalizeHashtags strips leading '#' and drops case-insensitive duplicates.
func normalizeHashtags(tags []string) datatypes.JSONSlice[string] {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimLeft(strings.TrimSpace(t), "#")
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func (s *Service) Create(ctx context.Context, req CreatePostRequest) (*Post, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkRefs(ctx, req.Platform, req.CampaignID, req.SocialAccountID); err != nil {
		return nil, err
	}

	media := req.MediaURLs
	if media == nil {
		media = []string{}
	}
	p := &Post{
		ID:              s.node.Generate().String(),
		CampaignID:      nonEmpty(req.CampaignID),
		SocialAccountID: nonEmpty(req.SocialAccountID),
		CreatedBy:       scope.CallerID,
		Platform:        req.Platform,
		Content:         req.Content,
		MediaURLs:       media,
		Hashtags:        normalizeHashtags(req.Hashtags),
		Status:          StatusDraft,
		ScheduledAt:     utc(req.ScheduledAt),
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, err
	}
	logger.FromContext(ctx, zap.String("post_id", p.ID), zap.String("platform", p.Platform)).Info("post created")
	return p, nil
}

// Update edits a draft or failed post. Editing a failed post returns it to
// draft so it goes through review again.
func (s *Service) Update(ctx context.Context, id string, req UpdatePostRequest) (*Post, error) {
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.Editable() {
		return nil, conflict(p, fmt.Sprintf("a %s post cannot be edited", p.Status))
	}
	if err := s.checkRefs(ctx, p.Platform, req.CampaignID, req.SocialAccountID); err != nil {
		return nil, err
	}

	values := map[string]any{
		"status":        StatusDraft,
		"error_message": nil,
	}
	if req.CampaignID != nil {
		values["campaign_id"] = nonEmpty(req.CampaignID)
	}
	if req.SocialAccountID != nil {
		values["social_account_id"] = nonEmpty(req.SocialAccountID)
	}
	if req.Content != nil {
		values["content"] = *req.Content
	}
	if req.MediaURLs != nil {
		values["media_urls"] = datatypes.JSONSlice[string](*req.MediaURLs)
	}
	if req.Hashtags != nil {
		values["hashtags"] = normalizeHashtags(*req.Hashtags)
	}
	if req.ScheduledAt != nil {
		values["scheduled_at"] = req.ScheduledAt.UTC()
	}

	ok, err := s.posts.Transition(ctx, id, "status", editable, values)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflictNow(ctx, id, "post changed state while editing")
	}
	return s.posts.Get(ctx, id)
}

func (s *Service) conflictNow(ctx context.Context, id, msg string) error {
	current, err := s.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	return conflict(current, msg)
}

func (s *Service) Get(ctx context.Context, id string) (*Post, error) {
	return s.posts.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, q ListPostsQuery, page pagination.Pagination) (*pagination.Page[Post], error) {
	filter := &Post{Status: Status(q.Status), Platform: q.Platform}
	if q.CampaignID != "" {
		filter.CampaignID = &q.CampaignID
	}
	items, total, err := s.posts.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusPublishing {
		return conflict(p, "a post cannot be deleted while publishing")
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx, zap.String("post_id", id)).Info("post deleted")
	return nil
}

// Submit puts the post in the approval queue.
func (s *Service) Submit(ctx context.Context, id string) (*approval.Item, error) {
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.Editable() {
		return nil, conflict(p, fmt.Sprintf("a %s post cannot be submitted", p.Status))
	}
	return s.approvals.Submit(ctx, approval.ContentTypePost, id)
}

// Approve reviews the post's pending item, submitting it first when the post
// was never queued. Approval schedules the post.
func (s *Service) Approve(ctx context.Context, id string, req ApproveRequest) (*Post, error) {
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.Editable() {
		return nil, conflict(p, fmt.Sprintf("a %s post cannot be approved", p.Status))
	}
	item, err := s.approvals.FindPending(ctx, approval.ContentTypePost, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		if item, err = s.approvals.Submit(ctx, approval.ContentTypePost, id); err != nil {
			return nil, err
		}
	}
	if _, err := s.approvals.Review(ctx, item.ID, approval.ReviewRequest{Status: approval.StatusApproved, Notes: req.Notes}); err != nil {
		return nil, err
	}
	return s.posts.Get(ctx, id)
}

func (s *Service) Reject(ctx context.Context, id string, req RejectRequest) (*Post, error) {
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.approvals.FindPending(ctx, approval.ContentTypePost, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, conflict(p, "post has no pending review")
	}
	if _, err := s.approvals.Review(ctx, item.ID, approval.ReviewRequest{Status: approval.StatusRejected, Notes: req.Notes}); err != nil {
		return nil, err
	}
	return s.posts.Get(ctx, id)
}

// Schedule moves a scheduled or failed post to a new publish time.
func (s *Service) Schedule(ctx context.Context, id string, req ScheduleRequest) (*Post, error) {
	at := req.ScheduledAt.UTC()
	if at.Before(s.now().Add(-time.Minute)) {
		return nil, errutil.ValidationFailed("scheduled_at is in the past", nil,
			errutil.WithDetails(errutil.Detail{Field: "scheduled_at", Message: "must not be in the past"}))
	}
	p, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusScheduled && p.Status != StatusFailed {
		return nil, conflict(p, fmt.Sprintf("a %s post cannot be scheduled", p.Status))
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.schedule(ctx, tx, p, at, []string{string(StatusScheduled), string(StatusFailed)})
	})
	if err != nil {
		return nil, err
	}
	return s.posts.Get(ctx, id)
}

// onReviewed runs inside the approval transaction. An approved post is
// scheduled at its requested time, or immediately when none is set.
func (s *Service) onReviewed(ctx context.Context, tx *gorm.DB, item *approval.Item) error {
	log := logger.FromContext(ctx, zap.String("post_id", item.ContentID), zap.String("review", string(item.Status)))
	if item.Status != approval.StatusApproved {
		log.Info("post review recorded")
		return nil
	}

	p, err := s.posts.WithTrx(tx).Get(ctx, item.ContentID)
	if err != nil {
		return err
	}
	if !p.Status.Editable() {
		return conflict(p, fmt.Sprintf("a %s post cannot be approved", p.Status))
	}

	at := s.now()
	if p.ScheduledAt != nil && p.ScheduledAt.After(at) {
		at = *p.ScheduledAt
	}
	return s.schedule(ctx, tx, p, at, editable)
}

func (s *Service) schedule(ctx context.Context, tx *gorm.DB, p *Post, at time.Time, from []string) error {
	if p.SocialAccountID == nil {
		return errutil.BadRequest("post needs a social account before it can be scheduled", nil,
			errutil.WithDetails(errutil.Detail{Field: "social_account_id", Message: "required"}))
	}
	at = at.Truncate(time.Second)

	ok, err := s.posts.WithTrx(tx).Transition(ctx, p.ID, "status", from, map[string]any{
		"status":        StatusScheduled,
		"scheduled_at":  at,
		"error_message": nil,
	})
	if err != nil {
		return err
	}
	if !ok {
		current, err := s.posts.WithTrx(tx).Get(ctx, p.ID)
		if err != nil {
			return err
		}
		return conflict(current, "post changed state while scheduling")
	}

	payload, err := json.Marshal(taskname.PostPayload{OrganizationID: p.OrganizationID, PostID: p.ID, ScheduledAt: at.Unix()})
	if err != nil {
		return errutil.Internal("failed to encode publish task", err)
	}
	_, err = s.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.PostPublish, payload),
		asynq.ProcessAt(at),
		asynq.Queue(task.QueueCritical),
		asynq.TaskID(fmt.Sprintf("%s:%s:%d", taskname.PostPublish, p.ID, at.Unix())),
		asynq.MaxRetry(5),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return errutil.Internal("failed to enqueue publish task", err)
	}

	logger.FromContext(ctx, zap.String("post_id", p.ID), zap.Time("scheduled_at", at)).Info("post scheduled")
	return nil
}

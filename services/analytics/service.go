package analytics

import (
	"context"
	"time"

	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/repository"
	"openpaws/pkg/tenancy"
	"openpaws/services/post"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PostSource interface {
	Get(ctx context.Context, id string) (*post.Post, error)
}

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	posts PostSource
	now   func() time.Time

	stats repository.Tenanted[PostAnalytics]
}

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Posts PostSource
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		posts: p.Posts,
		now:   func() time.Time { return time.Now().UTC() },
		stats: repository.ProvideTenanted[PostAnalytics](p.DB, "post analytics"),
	}
}

// Record stores the latest metrics of a post, replacing any previous
// snapshot.
func (s *Service) Record(ctx context.Context, postID string, req RecordRequest) (*PostAnalytics, error) {
	p, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, err
	}

	collected := s.now()
	if req.CollectedAt != nil {
		collected = req.CollectedAt.UTC()
	}
	a := &PostAnalytics{
		ID:             s.node.Generate().String(),
		PostID:         p.ID,
		Platform:       p.Platform,
		Impressions:    req.Impressions,
		Reach:          req.Reach,
		Likes:          req.Likes,
		Comments:       req.Comments,
		Shares:         req.Shares,
		Clicks:         req.Clicks,
		EngagementRate: EngagementRate(Engagement(req.Likes, req.Comments, req.Shares, req.Clicks), req.Impressions),
		CollectedAt:    collected,
	}
	err = s.stats.Upsert(ctx, a, []string{"post_id"}, []string{
		"impressions", "reach", "likes", "comments", "shares", "clicks", "engagement_rate", "collected_at", "updated_at",
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx, zap.String("post_id", postID), zap.Float64("engagement_rate", a.EngagementRate)).
		Debug("post analytics recorded")
	return s.ForPost(ctx, postID)
}

func (s *Service) ForPost(ctx context.Context, postID string) (*PostAnalytics, error) {
	items, _, err := s.stats.List(ctx, &PostAnalytics{PostID: postID}, pagination.Pagination{Page: 1, Size: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errutil.NotFound("post analytics not found", nil)
	}
	return items[0], nil
}

const totalsColumns = "COUNT(*) AS posts, " +
	"COALESCE(SUM(impressions), 0) AS impressions, " +
	"COALESCE(SUM(reach), 0) AS reach, " +
	"COALESCE(SUM(likes), 0) AS likes, " +
	"COALESCE(SUM(comments), 0) AS comments, " +
	"COALESCE(SUM(shares), 0) AS shares, " +
	"COALESCE(SUM(clicks), 0) AS clicks"

// Summary aggregates the organization's snapshots collected in the optional
// [from, to] day range, overall and per platform.
func (s *Service) Summary(ctx context.Context, q SummaryQuery) (*Summary, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, errutil.ValidationFailed("to must not be before from", nil,
			errutil.WithDetails(errutil.Detail{Field: "to", Message: "before from"}))
	}

	base := func() *gorm.DB {
		tx := s.db.WithContext(ctx).Model(&PostAnalytics{}).Where("organization_id = ?", scope.TenantID)
		if q.From != nil {
			tx = tx.Where("collected_at >= ?", q.From.UTC())
		}
		if q.To != nil {
			tx = tx.Where("collected_at < ?", q.To.UTC().AddDate(0, 0, 1))
		}
		if q.Platform != "" {
			tx = tx.Where("platform = ?", q.Platform)
		}
		return tx
	}

	var out Summary
	if err := base().Select(totalsColumns).Scan(&out.Totals).Error; err != nil {
		return nil, errutil.Internal("failed to summarize analytics", err)
	}
	out.finish()

	var rows []PlatformTotals
	if err := base().Select("platform, " + totalsColumns).Group("platform").Order("platform").Scan(&rows).Error; err != nil {
		return nil, errutil.Internal("failed to summarize analytics", err)
	}
	for i := range rows {
		rows[i].finish()
	}
	if rows == nil {
		rows = []PlatformTotals{}
	}
	out.Platforms = rows
	return &out, nil
}

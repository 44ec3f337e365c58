package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/metrics"
	"openpaws/pkg/task"
	"openpaws/pkg/taskname"
	"openpaws/pkg/tenancy"
	"openpaws/services/post"
	"openpaws/services/publisher"
	"openpaws/services/socialaccount"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	collectInterval = 24 * time.Hour
	// collectWindow bounds how long after publishing metrics keep being pulled.
	collectWindow = 7 * 24 * time.Hour
)

type AccountSource interface {
	Credentials(ctx context.Context, id string) (*socialaccount.Credentials, error)
}

// Collector pulls engagement metrics of published posts from the publishing
// gateway once a day for the first week.
type Collector struct {
	svc      *Service
	posts    PostSource
	accounts AccountSource
	gateway  publisher.Client
	enqueuer task.Enqueuer
}

type CollectorParams struct {
	fx.In

	Service  *Service
	Posts    PostSource
	Accounts AccountSource
	Gateway  publisher.Client
	Enqueuer task.Enqueuer
}

func NewCollector(p CollectorParams) *Collector {
	return &Collector{
		svc:      p.Service,
		posts:    p.Posts,
		accounts: p.Accounts,
		gateway:  p.Gateway,
		enqueuer: p.Enqueuer,
	}
}

func CollectHandler(c *Collector) task.Handler {
	return task.Handler{
		Type: taskname.AnalyticsCollect,
		Fn: func(ctx context.Context, t *asynq.Task) error {
			var p taskname.PostPayload
			if err := json.Unmarshal(t.Payload(), &p); err != nil || p.OrganizationID == "" || p.PostID == "" {
				metrics.TasksProcessed.WithLabelValues(taskname.AnalyticsCollect, "invalid").Inc()
				return fmt.Errorf("malformed %s payload: %w", taskname.AnalyticsCollect, asynq.SkipRetry)
			}
			err := c.Collect(tenancy.WithSystemScope(ctx, p.OrganizationID), p)
			status := "ok"
			if err != nil {
				status = "error"
			}
			metrics.TasksProcessed.WithLabelValues(taskname.AnalyticsCollect, status).Inc()
			return err
		},
	}
}

func (c *Collector) Collect(ctx context.Context, pl taskname.PostPayload) error {
	log := logger.FromContext(ctx, zap.String("post_id", pl.PostID))

	p, err := c.posts.Get(ctx, pl.PostID)
	if errutil.IsCode(err, errutil.StatusNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status != post.StatusPublished || p.PlatformPostID == nil || p.SocialAccountID == nil {
		log.Info("analytics collection skipped", zap.String("status", string(p.Status)))
		return nil
	}

	creds, err := c.accounts.Credentials(ctx, *p.SocialAccountID)
	if err != nil {
		return err
	}
	m, err := c.gateway.Metrics(ctx, publisher.Lookup{
		Platform:       p.Platform,
		PlatformPostID: *p.PlatformPostID,
		AccessToken:    creds.AccessToken,
	})
	if err != nil {
		return err
	}

	rec, err := c.svc.Record(ctx, p.ID, RecordRequest{
		Impressions: m.Impressions,
		Reach:       m.Reach,
		Likes:       m.Likes,
		Comments:    m.Comments,
		Shares:      m.Shares,
		Clicks:      m.Clicks,
	})
	if err != nil {
		return err
	}

	if p.PublishedAt != nil && rec.CollectedAt.Sub(*p.PublishedAt) < collectWindow {
		next := rec.CollectedAt.Add(collectInterval)
		payload, _ := json.Marshal(taskname.PostPayload{OrganizationID: p.OrganizationID, PostID: p.ID})
		_, err := c.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.AnalyticsCollect, payload),
			asynq.ProcessAt(next),
			asynq.Queue(task.QueueLow),
			asynq.TaskID(fmt.Sprintf("%s:%s:%s", taskname.AnalyticsCollect, p.ID, next.Format("20060102"))),
		)
		if err != nil {
			log.Warn("failed to schedule next analytics collection", zap.Error(err))
		}
	}
	return nil
}

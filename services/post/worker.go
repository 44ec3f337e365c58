package post

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/metrics"
	"openpaws/pkg/repository"
	"openpaws/pkg/task"
	"openpaws/pkg/taskname"
	"openpaws/pkg/tenancy"
	"openpaws/services/publisher"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errStillPublishing = errors.New("platform has not confirmed the post yet")

const (
	defaultSyncDelay    = 30 * time.Second
	analyticsFirstPass  = time.Hour
	syncMaxRetry        = 20
	analyticsCollectTTL = 2 * time.Minute
)

// Worker publishes scheduled posts through the publishing gateway.
type Worker struct {
	posts     repository.Tenanted[Post]
	accounts  AccountSource
	gateway   publisher.Client
	enqueuer  task.Enqueuer
	now       func() time.Time
	syncDelay time.Duration
}

type WorkerParams struct {
	fx.In

	DB       *gorm.DB
	Accounts AccountSource
	Gateway  publisher.Client
	Enqueuer task.Enqueuer
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		posts:     repository.ProvideTenanted[Post](p.DB, "post"),
		accounts:  p.Accounts,
		gateway:   p.Gateway,
		enqueuer:  p.Enqueuer,
		now:       func() time.Time { return time.Now().UTC() },
		syncDelay: defaultSyncDelay,
	}
}

func PublishHandler(w *Worker) task.Handler {
	return task.Handler{Type: taskname.PostPublish, Fn: w.handle(taskname.PostPublish, w.Publish)}
}

func SyncHandler(w *Worker) task.Handler {
	return task.Handler{Type: taskname.PostSync, Fn: w.handle(taskname.PostSync, w.Sync)}
}

func (w *Worker) handle(name string, fn func(context.Context, taskname.PostPayload) error) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p taskname.PostPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil || p.OrganizationID == "" || p.PostID == "" {
			metrics.TasksProcessed.WithLabelValues(name, "invalid").Inc()
			return fmt.Errorf("malformed %s payload: %w", name, asynq.SkipRetry)
		}
		err := fn(tenancy.WithSystemScope(ctx, p.OrganizationID), p)
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.TasksProcessed.WithLabelValues(name, status).Inc()
		return err
	}
}

// lastAttempt reports whether asynq will not retry the current task again.
// Outside a worker there are no retries.
func lastAttempt(ctx context.Context) bool {
	n, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	limit, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return n >= limit
}

func transient(err error) bool {
	return errutil.IsCode(err, errutil.StatusTooManyRequests) ||
		errutil.IsCode(err, errutil.StatusBadGateway) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Publish sends a scheduled post to its platform. Stale tasks, for posts
// that were rescheduled, edited or deleted, are dropped.
func (w *Worker) Publish(ctx context.Context, pl taskname.PostPayload) error {
	log := logger.FromContext(ctx, zap.String("post_id", pl.PostID))

	p, err := w.posts.Get(ctx, pl.PostID)
	if errutil.IsCode(err, errutil.StatusNotFound) {
		log.Info("publish skipped, post is gone")
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status != StatusScheduled || p.ScheduledAt == nil || p.ScheduledAt.Unix() != pl.ScheduledAt {
		log.Info("publish skipped, task is stale", zap.String("status", string(p.Status)))
		return nil
	}
	if p.SocialAccountID == nil {
		return w.fail(ctx, p, StatusScheduled, "post has no social account")
	}

	creds, err := w.accounts.Credentials(ctx, *p.SocialAccountID)
	if err != nil {
		if ctx.Err() != nil || (transient(err) && !lastAttempt(ctx)) {
			return err
		}
		return w.fail(ctx, p, StatusScheduled, "social account unavailable: "+errutil.From(err).Message)
	}

	res, err := w.gateway.Publish(ctx, publisher.Request{
		IdempotencyKey:    fmt.Sprintf("%s:%d", p.ID, pl.ScheduledAt),
		Platform:          p.Platform,
		PlatformAccountID: creds.PlatformAccountID,
		AccessToken:       creds.AccessToken,
		Content:           p.Content,
		MediaURLs:         p.MediaURLs,
		Hashtags:          p.Hashtags,
	})
	if err != nil {
		if ctx.Err() != nil || (transient(err) && !lastAttempt(ctx)) {
			log.Warn("publish attempt failed, will retry", zap.Error(err))
			return err
		}
		return w.fail(ctx, p, StatusScheduled, errutil.From(err).Message)
	}

	switch res.Status {
	case publisher.StatePublished:
		return w.published(ctx, p, StatusScheduled, res.ID)
	case publisher.StatePending:
		ok, err := w.posts.Transition(ctx, p.ID, "status", []string{string(StatusScheduled)}, map[string]any{
			"status":           StatusPublishing,
			"platform_post_id": res.ID,
		})
		if err != nil || !ok {
			return err
		}
		log.Info("post accepted by platform, awaiting confirmation", zap.String("platform_post_id", res.ID))
		return w.enqueue(ctx, taskname.PostSync, p, asynq.ProcessIn(w.syncDelay), asynq.MaxRetry(syncMaxRetry))
	default:
		msg := res.Error
		if msg == "" {
			msg = "platform rejected the post"
		}
		return w.fail(ctx, p, StatusScheduled, msg)
	}
}

// Sync polls the platform for a post that was accepted but not yet live.
func (w *Worker) Sync(ctx context.Context, pl taskname.PostPayload) error {
	log := logger.FromContext(ctx, zap.String("post_id", pl.PostID))

	p, err := w.posts.Get(ctx, pl.PostID)
	if errutil.IsCode(err, errutil.StatusNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status != StatusPublishing || p.PlatformPostID == nil || p.SocialAccountID == nil {
		log.Info("sync skipped", zap.String("status", string(p.Status)))
		return nil
	}

	creds, err := w.accounts.Credentials(ctx, *p.SocialAccountID)
	if err != nil {
		if !lastAttempt(ctx) {
			return err
		}
		return w.fail(ctx, p, StatusPublishing, "social account unavailable: "+errutil.From(err).Message)
	}
	res, err := w.gateway.Status(ctx, publisher.Lookup{
		Platform:       p.Platform,
		PlatformPostID: *p.PlatformPostID,
		AccessToken:    creds.AccessToken,
	})
	if err != nil {
		if !lastAttempt(ctx) {
			return err
		}
		return w.fail(ctx, p, StatusPublishing, errutil.From(err).Message)
	}

	switch res.Status {
	case publisher.StatePublished:
		id := res.ID
		if id == "" {
			id = *p.PlatformPostID
		}
		return w.published(ctx, p, StatusPublishing, id)
	case publisher.StatePending:
		if lastAttempt(ctx) {
			return w.fail(ctx, p, StatusPublishing, "gave up waiting for platform confirmation")
		}
		return errStillPublishing
	default:
		msg := res.Error
		if msg == "" {
			msg = "platform rejected the post"
		}
		return w.fail(ctx, p, StatusPublishing, msg)
	}
}

func (w *Worker) published(ctx context.Context, p *Post, from Status, platformPostID string) error {
	ok, err := w.posts.Transition(ctx, p.ID, "status", []string{string(from)}, map[string]any{
		"status":           StatusPublished,
		"published_at":     w.now(),
		"platform_post_id": platformPostID,
		"error_message":    nil,
	})
	if err != nil || !ok {
		return err
	}
	logger.FromContext(ctx, zap.String("post_id", p.ID), zap.String("platform_post_id", platformPostID)).Info("post published")
	return w.enqueue(ctx, taskname.AnalyticsCollect, p,
		asynq.ProcessIn(analyticsFirstPass),
		asynq.Queue(task.QueueLow),
		asynq.Timeout(analyticsCollectTTL),
	)
}

func (w *Worker) fail(ctx context.Context, p *Post, from Status, msg string) error {
	ok, err := w.posts.Transition(ctx, p.ID, "status", []string{string(from)}, map[string]any{
		"status":           StatusFailed,
		"error_message":    msg,
		"platform_post_id": nil,
		"published_at":     nil,
	})
	if err != nil {
		return err
	}
	if ok {
		logger.FromContext(ctx, zap.String("post_id", p.ID)).Warn("post publishing failed", zap.String("reason", msg))
	}
	return nil
}

func (w *Worker) enqueue(ctx context.Context, name string, p *Post, opts ...asynq.Option) error {
	payload, err := json.Marshal(taskname.PostPayload{OrganizationID: p.OrganizationID, PostID: p.ID})
	if err != nil {
		return err
	}
	if _, err := w.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload), opts...); err != nil {
		logger.FromContext(ctx, zap.String("post_id", p.ID)).Error("failed to enqueue follow-up task",
			zap.String("task", name), zap.Error(err))
		return nil
	}
	return nil
}

package approval

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/tenancy"
	"openpaws/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Item{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func as(org, user string) context.Context {
	return tenancy.WithScope(context.Background(), tenancy.Scope{TenantID: org, CallerID: user, Role: "admin"})
}

func TestSubmitAndReview(t *testing.T) {
	svc := newService(t)

	item, err := svc.Submit(as("org-1", "writer"), ContentTypePost, "p1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, item.Status)
	require.Nil(t, item.ReviewedBy)
	require.Nil(t, item.ReviewedAt)

	_, err = svc.Submit(as("org-1", "writer"), ContentTypePost, "p1")
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))

	out, err := svc.Review(as("org-1", "boss"), item.ID, ReviewRequest{Status: StatusRejected, Notes: "off brand"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, "boss", *out.ReviewedBy)
	require.NotNil(t, out.ReviewedAt)
	require.Equal(t, "off brand", *out.ReviewerNotes)

	_, err = svc.Review(as("org-1", "boss"), item.ID, ReviewRequest{Status: StatusApproved})
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))
	require.Equal(t, "rejected", errutil.From(err).Details[0].Message)

	// a resolved item no longer blocks resubmission
	_, err = svc.Submit(as("org-1", "writer"), ContentTypePost, "p1")
	require.NoError(t, err)
}

func TestReviewHookRunsInTransaction(t *testing.T) {
	svc := newService(t)
	var seen atomic.Pointer[Item]
	svc.OnReviewed(ContentTypePost, func(_ context.Context, _ *gorm.DB, item *Item) error {
		seen.Store(item)
		if item.Status == StatusApproved {
			return errors.New("cannot schedule")
		}
		return nil
	})

	item, err := svc.Submit(as("org-1", "writer"), ContentTypePost, "p1")
	require.NoError(t, err)

	_, err = svc.Review(as("org-1", "boss"), item.ID, ReviewRequest{Status: StatusApproved})
	require.Error(t, err)
	require.Equal(t, StatusApproved, seen.Load().Status)

	got, err := svc.Get(as("org-1", "boss"), item.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status, "failed hook rolls the review back")
	require.Nil(t, got.ReviewedBy)
}

func TestConcurrentReviewsHaveOneWinner(t *testing.T) {
	svc := newService(t)
	item, err := svc.Submit(as("org-1", "writer"), ContentTypePost, "p1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Review(as("org-1", "boss"), item.ID, ReviewRequest{Status: StatusApproved})
			switch {
			case err == nil:
				wins.Add(1)
			case errutil.IsCode(err, errutil.StatusConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(5), conflicts.Load())
}

func TestItemsAreTenantScoped(t *testing.T) {
	svc := newService(t)
	item, err := svc.Submit(as("org-1", "writer"), ContentTypePost, "p1")
	require.NoError(t, err)

	_, err = svc.Review(as("org-2", "boss"), item.ID, ReviewRequest{Status: StatusApproved})
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	page, err := svc.List(as("org-2", "boss"), ListQuery{}, pagination.Pagination{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Zero(t, page.Total)

	page, err = svc.List(as("org-1", "boss"), ListQuery{Status: "pending"}, pagination.Pagination{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
}

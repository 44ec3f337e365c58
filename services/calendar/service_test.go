package calendar

import (
	"context"
	"testing"
	"time"

	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/tenancy"
	"openpaws/services/campaign"
	"openpaws/services/post"
	"openpaws/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeCampaigns struct{}

func (fakeCampaigns) Get(_ context.Context, id string) (*campaign.Campaign, error) {
	if id != "cmp-1" {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	return &campaign.Campaign{ID: id}, nil
}

type fakePosts struct{}

func (fakePosts) Get(_ context.Context, id string) (*post.Post, error) {
	if id != "post-1" {
		return nil, errutil.NotFound("post not found", nil)
	}
	return &post.Post{ID: id}, nil
}

func newService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Entry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node, Campaigns: fakeCampaigns{}, Posts: fakePosts{}})
}

func orgCtx(org string) context.Context {
	return tenancy.WithScope(context.Background(), tenancy.Scope{TenantID: org, CallerID: "u1", Role: "editor"})
}

func ptr[T any](v T) *T { return &v }

func TestCreateEntry(t *testing.T) {
	svc := newService(t)
	ctx := orgCtx("org-1")

	e, err := svc.Create(ctx, CreateEntryRequest{
		CampaignID:  ptr("cmp-1"),
		PlannedDate: "2026-03-14",
		PlannedTime: ptr("09:30"),
		Platform:    "instagram",
		Topic:       "Adoption day",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPlanned, e.Status)
	require.Equal(t, "text", e.ContentType)
	require.Equal(t, "u1", e.CreatedBy)
	require.Equal(t, "2026-03-14", time.Time(e.PlannedDate).Format(dateLayout))

	_, err = svc.Create(ctx, CreateEntryRequest{CampaignID: ptr("cmp-x"), PlannedDate: "2026-03-14", Platform: "twitter", Topic: "x"})
	require.True(t, errutil.IsCode(err, errutil.StatusBadRequest))

	_, err = svc.Create(ctx, CreateEntryRequest{PostID: ptr("post-x"), PlannedDate: "2026-03-14", Platform: "twitter", Topic: "x"})
	require.True(t, errutil.IsCode(err, errutil.StatusBadRequest))
}

func TestListDateRange(t *testing.T) {
	svc := newService(t)
	ctx := orgCtx("org-1")

	for _, d := range []string{"2026-03-01", "2026-03-10", "2026-03-05", "2026-03-31", "2026-04-01"} {
		_, err := svc.Create(ctx, CreateEntryRequest{PlannedDate: d, Platform: "twitter", Topic: "t " + d})
		require.NoError(t, err)
	}
	_, err := svc.Create(orgCtx("org-2"), CreateEntryRequest{PlannedDate: "2026-03-05", Platform: "twitter", Topic: "other"})
	require.NoError(t, err)

	page, err := svc.List(ctx, ListQuery{From: "2026-03-01", To: "2026-03-31"}, pagination.Pagination{Page: 1, Size: 20})
	require.NoError(t, err)
	require.EqualValues(t, 4, page.Total)

	var dates []string
	for _, e := range page.Items {
		dates = append(dates, time.Time(e.PlannedDate).Format(dateLayout))
	}
	require.Equal(t, []string{"2026-03-01", "2026-03-05", "2026-03-10", "2026-03-31"}, dates)

	_, err = svc.List(ctx, ListQuery{From: "2026-04-01", To: "2026-03-01"}, pagination.Pagination{Page: 1, Size: 20})
	require.True(t, errutil.IsCode(err, errutil.StatusValidationFailed))
}

func TestUpdateEntry(t *testing.T) {
	svc := newService(t)
	ctx := orgCtx("org-1")

	e, err := svc.Create(ctx, CreateEntryRequest{PlannedDate: "2026-03-01", Platform: "twitter", Topic: "Launch"})
	require.NoError(t, err)

	got, err := svc.Update(ctx, e.ID, UpdateEntryRequest{
		PostID:      ptr("post-1"),
		PlannedDate: ptr("2026-03-02"),
		Status:      ptr(StatusReady),
	})
	require.NoError(t, err)
	require.Equal(t, StatusReady, got.Status)
	require.Equal(t, "post-1", *got.PostID)
	require.Equal(t, "2026-03-02", time.Time(got.PlannedDate).Format(dateLayout))

	got, err = svc.Update(ctx, e.ID, UpdateEntryRequest{PostID: ptr("")})
	require.NoError(t, err)
	require.Nil(t, got.PostID)

	_, err = svc.Update(orgCtx("org-2"), e.ID, UpdateEntryRequest{Topic: ptr("hijack")})
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))
}

func TestDeleteEntryIsScoped(t *testing.T) {
	svc := newService(t)
	ctx := orgCtx("org-1")

	e, err := svc.Create(ctx, CreateEntryRequest{PlannedDate: "2026-03-01", Platform: "twitter", Topic: "Launch"})
	require.NoError(t, err)

	require.True(t, errutil.IsCode(svc.Delete(orgCtx("org-2"), e.ID), errutil.StatusNotFound))
	require.NoError(t, svc.Delete(ctx, e.ID))
	_, err = svc.Get(ctx, e.ID)
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))
}

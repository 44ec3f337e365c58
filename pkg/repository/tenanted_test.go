package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"openpaws/pkg/db/option"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/tenancy"
	"openpaws/services/testutil"

	"github.com/stretchr/testify/require"
)

type widget struct {
	ID             string    `gorm:"column:id;primaryKey"`
	OrganizationID string    `gorm:"column:organization_id;index"`
	Name           string    `gorm:"column:name"`
	Code           string    `gorm:"column:code;uniqueIndex"`
	Score          int       `gorm:"column:score"`
	State          string    `gorm:"column:state"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (w *widget) SetOrganizationID(id string) { w.OrganizationID = id }

func scopeFor(tenant string) context.Context {
	return tenancy.WithScope(context.Background(), tenancy.Scope{TenantID: tenant, CallerID: "u1", Role: "owner"})
}

func seedWidgets(t *testing.T, repo Tenanted[widget], ctx context.Context, prefix string, n int) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		w := &widget{
			ID:        fmt.Sprintf("%s-%02d", prefix, i),
			Name:      fmt.Sprintf("widget %d", i),
			Code:      fmt.Sprintf("%s-code-%02d", prefix, i),
			State:     "draft",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, w))
	}
}

func TestTenantedListPaginates(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")
	ctx := scopeFor("org-a")
	seedWidgets(t, repo, ctx, "a", 10)
	seedWidgets(t, repo, scopeFor("org-b"), "b", 4)

	items, total, err := repo.List(ctx, &widget{}, pagination.Pagination{Page: 2, Size: 3})
	require.NoError(t, err)
	require.Equal(t, int64(10), total)
	require.Len(t, items, 3)
	// newest first: page 1 holds 09..07, page 2 holds 06..04
	require.Equal(t, "a-06", items[0].ID)
	require.Equal(t, "a-04", items[2].ID)
}

func TestTenantedListFilters(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")
	ctx := scopeFor("org-a")
	seedWidgets(t, repo, ctx, "a", 5)

	_, err := repo.Update(ctx, "a-01", map[string]any{"state": "live"})
	require.NoError(t, err)

	items, total, err := repo.List(ctx, &widget{State: "live"}, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "a-01", items[0].ID)

	items, total, err = repo.List(ctx, &widget{}, pagination.Pagination{},
		option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.GTE, Value: time.Date(2025, 1, 1, 0, 3, 0, 0, time.UTC)}))
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)
}

func TestTenantedCrossTenantIsNotFound(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")
	seedWidgets(t, repo, scopeFor("org-a"), "a", 1)
	other := scopeFor("org-b")

	_, err := repo.Get(other, "a-00")
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	_, err = repo.Update(other, "a-00", map[string]any{"name": "stolen"})
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	err = repo.Delete(other, "a-00")
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	got, err := repo.Get(scopeFor("org-a"), "a-00")
	require.NoError(t, err)
	require.Equal(t, "widget 0", got.Name)
}

func TestTenantedRequiresScope(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")

	_, err := repo.Get(context.Background(), "any")
	require.True(t, errutil.IsCode(err, errutil.StatusForbidden))

	err = repo.Create(context.Background(), &widget{ID: "x"})
	require.True(t, errutil.IsCode(err, errutil.StatusForbidden))
}

func TestTenantedCreateStampsOrganization(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")

	w := &widget{ID: "w1", OrganizationID: "spoofed", Code: "c1"}
	require.NoError(t, repo.Create(scopeFor("org-a"), w))
	require.Equal(t, "org-a", w.OrganizationID)
}

func TestTenantedUpsertKeysOnNaturalColumn(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")
	ctx := scopeFor("org-a")

	require.NoError(t, repo.Upsert(ctx, &widget{ID: "w1", Code: "shared", Score: 1}, []string{"code"}, []string{"score"}))
	require.NoError(t, repo.Upsert(ctx, &widget{ID: "w2", Code: "shared", Score: 7}, []string{"code"}, []string{"score"}))

	items, total, err := repo.List(ctx, &widget{}, pagination.Pagination{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "w1", items[0].ID)
	require.Equal(t, 7, items[0].Score)

	err = repo.Upsert(scopeFor("org-b"), &widget{ID: "w3", Code: "shared", Score: 99}, []string{"code"}, []string{"score"})
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	got, err := repo.Get(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, 7, got.Score)
}

func TestTenantedTransitionSingleWinner(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideTenanted[widget](db, "widget")
	ctx := scopeFor("org-a")
	seedWidgets(t, repo, ctx, "a", 1)

	ok, err := repo.Transition(ctx, "a-00", "state", []string{"draft"}, map[string]any{"state": "live"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Transition(ctx, "a-00", "state", []string{"draft"}, map[string]any{"state": "archived"})
	require.NoError(t, err)
	require.False(t, ok)
}

package tenancy

import (
	"context"
	"testing"

	"openpaws/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestRequireWithoutScope(t *testing.T) {
	_, err := Require(context.Background())
	require.Error(t, err)
	require.True(t, errutil.IsCode(err, errutil.StatusForbidden))
}

func TestRequireEmptyTenantFailsClosed(t *testing.T) {
	ctx := WithScope(context.Background(), Scope{CallerID: "u1", Role: "owner"})
	_, ok := FromContext(ctx)
	require.False(t, ok)
}

func TestScopeRoundTrip(t *testing.T) {
	want := Scope{TenantID: "org-1", CallerID: "u1", Role: "editor"}
	got, err := Require(WithScope(context.Background(), want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

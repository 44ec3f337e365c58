package featureflags

import (
	"context"
	"testing"

	"openpaws/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestUnconfiguredFlagsUseDefault(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	require.True(t, ff.IsEnabled(context.Background(), "org-1", AutoReview, true))
	require.False(t, ff.IsEnabled(context.Background(), "org-1", AutoReview, false))

	features, err := ff.Features(context.Background(), "org-1")
	require.NoError(t, err)
	require.Empty(t, features)
}

package errutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	st, _ := status.FromError(ToGRPCError(Conflict("run is not awaiting approval", nil)))
	require.Equal(t, codes.FailedPrecondition, st.Code())
	require.Equal(t, "run is not awaiting approval", st.Message())

	st, _ = status.FromError(ToGRPCError(Internal("failed to load run", errors.New("dial tcp 10.0.0.3:5432"))))
	require.Equal(t, codes.Internal, st.Code())
	require.NotContains(t, st.Message(), "10.0.0.3")

	st, _ = status.FromError(ToGRPCError(fmt.Errorf("waiting: %w", context.DeadlineExceeded)))
	require.Equal(t, codes.DeadlineExceeded, st.Code())

	orig := status.Error(codes.NotFound, "nope")
	require.Equal(t, orig, ToGRPCError(orig))
}

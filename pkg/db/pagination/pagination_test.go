package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, Pagination{Page: 1, Size: DefaultSize}, Pagination{}.Normalize())
	require.Equal(t, Pagination{Page: 1, Size: MaxSize}, Pagination{Page: -2, Size: 500}.Normalize())
	require.Equal(t, Pagination{Page: 3, Size: 7}, Pagination{Page: 3, Size: 7}.Normalize())
}

func TestOffsetAndLimit(t *testing.T) {
	p := Pagination{Page: 2, Size: 3}
	require.Equal(t, 3, p.Offset())
	require.Equal(t, 3, p.Limit())
}

func TestNewPageNeverReturnsNilItems(t *testing.T) {
	type row struct{}
	page := NewPage[row](nil, 0, Pagination{Page: 4, Size: 0})
	require.NotNil(t, page.Items)
	require.Equal(t, 4, page.Page)
	require.Equal(t, DefaultSize, page.Size)
}

package pagination

const (
	DefaultSize = 20
	MaxSize     = 100
)

// Pagination is the 1-indexed page window bound from ?page=&size=.
type Pagination struct {
	Page int `form:"page,default=1" json:"page"`
	Size int `form:"size,default=20" json:"size"`
}

// Normalize clamps the window: page below 1 becomes 1, size outside
// [1, MaxSize] falls back to DefaultSize or MaxSize.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Size < 1:
		p.Size = DefaultSize
	case p.Size > MaxSize:
		p.Size = MaxSize
	}
	return p
}

func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Size
}

func (p Pagination) Limit() int {
	return p.Normalize().Size
}

// Page is the list envelope returned by every paginated endpoint.
type Page[T any] struct {
	Items []*T  `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

func NewPage[T any](items []*T, total int64, p Pagination) *Page[T] {
	p = p.Normalize()
	if items == nil {
		items = []*T{}
	}
	return &Page[T]{Items: items, Total: total, Page: p.Page, Size: p.Size}
}

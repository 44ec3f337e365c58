package analytics

import (
	"time"
)

// PostAnalytics holds the latest engagement snapshot of one post. PostID is
// the natural key.
type PostAnalytics struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(36);index;not null" json:"organization_id"`
	PostID         string    `gorm:"column:post_id;type:varchar(32);uniqueIndex;not null" json:"post_id"`
	Platform       string    `gorm:"column:platform;type:varchar(20);not null" json:"platform"`
	Impressions    int64     `gorm:"column:impressions;not null;default:0" json:"impressions"`
	Reach          int64     `gorm:"column:reach;not null;default:0" json:"reach"`
	Likes          int64     `gorm:"column:likes;not null;default:0" json:"likes"`
	Comments       int64     `gorm:"column:comments;not null;default:0" json:"comments"`
	Shares         int64     `gorm:"column:shares;not null;default:0" json:"shares"`
	Clicks         int64     `gorm:"column:clicks;not null;default:0" json:"clicks"`
	EngagementRate float64   `gorm:"column:engagement_rate;not null;default:0" json:"engagement_rate"`
	CollectedAt    time.Time `gorm:"column:collected_at;not null" json:"collected_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PostAnalytics) TableName() string { return "post_analytics" }

func (a *PostAnalytics) SetOrganizationID(id string) { a.OrganizationID = id }

type RecordRequest struct {
	Impressions int64      `json:"impressions" binding:"min=0"`
	Reach       int64      `json:"reach" binding:"min=0"`
	Likes       int64      `json:"likes" binding:"min=0"`
	Comments    int64      `json:"comments" binding:"min=0"`
	Shares      int64      `json:"shares" binding:"min=0"`
	Clicks      int64      `json:"clicks" binding:"min=0"`
	CollectedAt *time.Time `json:"collected_at"`
}

type SummaryQuery struct {
	From     *time.Time `form:"from" time_format:"2006-01-02"`
	To       *time.Time `form:"to" time_format:"2006-01-02"`
	Platform string     `form:"platform" binding:"omitempty,oneof=twitter linkedin instagram facebook tiktok youtube"`
}

type Totals struct {
	Posts          int64   `json:"posts"`
	Impressions    int64   `json:"impressions"`
	Reach          int64   `json:"reach"`
	Likes          int64   `json:"likes"`
	Comments       int64   `json:"comments"`
	Shares         int64   `json:"shares"`
	Clicks         int64   `json:"clicks"`
	Engagement     int64   `json:"engagement"`
	EngagementRate float64 `json:"engagement_rate"`
}

type PlatformTotals struct {
	Platform string `json:"platform"`
	Totals
}

type Summary struct {
	Totals
	Platforms []PlatformTotals `json:"platforms"`
}

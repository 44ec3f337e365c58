package post

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"
)

// editable lists the states in which content may still change.
var editable = []string{string(StatusDraft), string(StatusFailed)}

func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusFailed
}

type Post struct {
	ID              string                      `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID  string                      `gorm:"column:organization_id;type:varchar(36);index:ix_post_org_status;not null" json:"organization_id"`
	CampaignID      *string                     `gorm:"column:campaign_id;type:varchar(32);index" json:"campaign_id,omitempty"`
	SocialAccountID *string                     `gorm:"column:social_account_id;type:varchar(32)" json:"social_account_id,omitempty"`
	CreatedBy       string                      `gorm:"column:created_by;type:varchar(64);not null" json:"created_by"`
	Platform        string                      `gorm:"column:platform;type:varchar(20);not null" json:"platform"`
	Content         string                      `gorm:"column:content;type:text;not null" json:"content"`
	MediaURLs       datatypes.JSONSlice[string] `gorm:"column:media_urls" json:"media_urls"`
	Hashtags        datatypes.JSONSlice[string] `gorm:"column:hashtags" json:"hashtags"`
	Status          Status                      `gorm:"column:status;type:varchar(20);index:ix_post_org_status;not null" json:"status"`
	ScheduledAt     *time.Time                  `gorm:"column:scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt     *time.Time                  `gorm:"column:published_at" json:"published_at,omitempty"`
	PlatformPostID  *string                     `gorm:"column:platform_post_id;type:varchar(128)" json:"platform_post_id,omitempty"`
	ErrorMessage    *string                     `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Post) TableName() string { return "posts" }

func (p *Post) SetOrganizationID(id string) { p.OrganizationID = id }

type CreatePostRequest struct {
	CampaignID      *string    `json:"campaign_id"`
	SocialAccountID *string    `json:"social_account_id"`
	Platform        string     `json:"platform" binding:"required,oneof=twitter linkedin instagram facebook tiktok youtube"`
	Content         string     `json:"content" binding:"required,max=63206"`
	MediaURLs       []string   `json:"media_urls" binding:"omitempty,max=10,dive,url"`
	Hashtags        []string   `json:"hashtags" binding:"omitempty,max=30,dive,min=1,max=100"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
}

type UpdatePostRequest struct {
	CampaignID      *string    `json:"campaign_id"`
	SocialAccountID *string    `json:"social_account_id"`
	Content         *string    `json:"content" binding:"omitempty,min=1,max=63206"`
	MediaURLs       *[]string  `json:"media_urls" binding:"omitempty,max=10,dive,url"`
	Hashtags        *[]string  `json:"hashtags" binding:"omitempty,max=30,dive,min=1,max=100"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

type RejectRequest struct {
	Notes string `json:"notes" binding:"required,max=4000"`
}

type ApproveRequest struct {
	Notes string `json:"notes" binding:"max=4000"`
}

type ListPostsQuery struct {
	Status     string `form:"status" binding:"omitempty,oneof=draft scheduled publishing published failed"`
	Platform   string `form:"platform" binding:"omitempty,oneof=twitter linkedin instagram facebook tiktok youtube"`
	CampaignID string `form:"campaign_id"`
}

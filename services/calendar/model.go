package calendar

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusPublished  Status = "published"
	StatusSkipped    Status = "skipped"
)

const dateLayout = "2006-01-02"

// Entry is a planned slot in the content calendar. It may point at the
// campaign it belongs to and, once written, the post that fills it.
type Entry struct {
	ID             string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID string         `gorm:"column:organization_id;type:varchar(36);index:ix_calendar_org_date;not null" json:"organization_id"`
	CampaignID     *string        `gorm:"column:campaign_id;type:varchar(32);index" json:"campaign_id,omitempty"`
	PostID         *string        `gorm:"column:post_id;type:varchar(32)" json:"post_id,omitempty"`
	PlannedDate    datatypes.Date `gorm:"column:planned_date;index:ix_calendar_org_date;not null" json:"planned_date"`
	PlannedTime    *string        `gorm:"column:planned_time;type:varchar(5)" json:"planned_time,omitempty"`
	Platform       string         `gorm:"column:platform;type:varchar(20);not null" json:"platform"`
	Topic          string         `gorm:"column:topic;type:varchar(500);not null" json:"topic"`
	ContentType    string         `gorm:"column:content_type;type:varchar(32);not null" json:"content_type"`
	Notes          string         `gorm:"column:notes;type:text" json:"notes,omitempty"`
	Status         Status         `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedBy      string         `gorm:"column:created_by;type:varchar(64);not null" json:"created_by"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Entry) TableName() string { return "calendar_entries" }

func (e *Entry) SetOrganizationID(id string) { e.OrganizationID = id }

type CreateEntryRequest struct {
	CampaignID  *string `json:"campaign_id"`
	PostID      *string `json:"post_id"`
	PlannedDate string  `json:"planned_date" binding:"required,datetime=2006-01-02"`
	PlannedTime *string `json:"planned_time" binding:"omitempty,datetime=15:04"`
	Platform    string  `json:"platform" binding:"required,oneof=twitter linkedin instagram facebook tiktok youtube"`
	Topic       string  `json:"topic" binding:"required,max=500"`
	ContentType string  `json:"content_type" binding:"omitempty,oneof=text image video carousel story reel thread"`
	Notes       string  `json:"notes" binding:"max=4000"`
}

type UpdateEntryRequest struct {
	CampaignID  *string `json:"campaign_id"`
	PostID      *string `json:"post_id"`
	PlannedDate *string `json:"planned_date" binding:"omitempty,datetime=2006-01-02"`
	PlannedTime *string `json:"planned_time" binding:"omitempty,datetime=15:04"`
	Topic       *string `json:"topic" binding:"omitempty,min=1,max=500"`
	ContentType *string `json:"content_type" binding:"omitempty,oneof=text image video carousel story reel thread"`
	Notes       *string `json:"notes" binding:"omitempty,max=4000"`
	Status      *Status `json:"status" binding:"omitempty,oneof=planned in_progress ready published skipped"`
}

type ListQuery struct {
	From       string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string `form:"to" binding:"omitempty,datetime=2006-01-02"`
	Status     string `form:"status" binding:"omitempty,oneof=planned in_progress ready published skipped"`
	Platform   string `form:"platform" binding:"omitempty,oneof=twitter linkedin instagram facebook tiktok youtube"`
	CampaignID string `form:"campaign_id"`
}

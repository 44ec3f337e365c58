package approval

import "time"

type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
)

const ContentTypePost = "post"

// Item is a review request for a piece of content. ContentID is a lookup
// reference only; deleting the content leaves the item in place.
type Item struct {
	ID             string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID string     `gorm:"column:organization_id;type:varchar(36);index:idx_approval_org_status;not null" json:"organization_id"`
	ContentType    string     `gorm:"column:content_type;type:varchar(32);index:idx_approval_content;not null" json:"content_type"`
	ContentID      string     `gorm:"column:content_id;type:varchar(32);index:idx_approval_content;not null" json:"content_id"`
	Status         Status     `gorm:"column:status;type:varchar(32);index:idx_approval_org_status;not null" json:"status"`
	SubmittedBy    string     `gorm:"column:submitted_by;type:varchar(64);not null" json:"submitted_by"`
	ReviewedBy     *string    `gorm:"column:reviewed_by;type:varchar(64)" json:"reviewed_by,omitempty"`
	ReviewerNotes  *string    `gorm:"column:reviewer_notes;type:text" json:"reviewer_notes,omitempty"`
	SubmittedAt    time.Time  `gorm:"column:submitted_at;not null" json:"submitted_at"`
	ReviewedAt     *time.Time `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Item) TableName() string { return "approval_queue" }

func (i *Item) SetOrganizationID(id string) { i.OrganizationID = id }

type ReviewRequest struct {
	Status Status `json:"status" binding:"required,oneof=approved rejected revision_requested"`
	Notes  string `json:"notes" binding:"omitempty,max=4000"`
}

type ListQuery struct {
	Status      string `form:"status" binding:"omitempty,oneof=pending approved rejected revision_requested"`
	ContentType string `form:"content_type" binding:"omitempty,max=32"`
}

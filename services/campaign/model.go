package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// Campaign groups posts and calendar entries around one marketing goal.
type Campaign struct {
	ID              string                      `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID  string                      `gorm:"column:organization_id;type:varchar(36);index;uniqueIndex:ux_campaign_org_code;not null" json:"organization_id"`
	Code            string                      `gorm:"column:code;type:varchar(32);uniqueIndex:ux_campaign_org_code" json:"code"`
	Name            string                      `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description     string                      `gorm:"column:description;type:text" json:"description"`
	Status          Status                      `gorm:"column:status;type:varchar(20);not null;default:'draft'" json:"status"`
	StartDate       *time.Time                  `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate         *time.Time                  `gorm:"column:end_date" json:"end_date,omitempty"`
	Goals           datatypes.JSON              `gorm:"column:goals" json:"goals,omitempty"`
	TargetPlatforms datatypes.JSONSlice[string] `gorm:"column:target_platforms" json:"target_platforms"`
	CreatedBy       string                      `gorm:"column:created_by;type:varchar(64);not null" json:"created_by"`
	CreatedAt       time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

func (c *Campaign) SetOrganizationID(id string) { c.OrganizationID = id }

// IsActive checks status and the date window against now.
func (c *Campaign) IsActive(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}

type CreateCampaignRequest struct {
	Name            string         `json:"name" binding:"required,max=255"`
	Description     string         `json:"description" binding:"omitempty,max=5000"`
	Status          Status         `json:"status" binding:"omitempty,oneof=draft active paused completed archived"`
	StartDate       *time.Time     `json:"start_date"`
	EndDate         *time.Time     `json:"end_date"`
	Goals           datatypes.JSON `json:"goals"`
	TargetPlatforms []string       `json:"target_platforms" binding:"omitempty,dive,oneof=twitter linkedin instagram facebook tiktok youtube"`
}

type UpdateCampaignRequest struct {
	Name            *string        `json:"name" binding:"omitempty,min=1,max=255"`
	Description     *string        `json:"description" binding:"omitempty,max=5000"`
	Status          *Status        `json:"status" binding:"omitempty,oneof=draft active paused completed archived"`
	StartDate       *time.Time     `json:"start_date"`
	EndDate         *time.Time     `json:"end_date"`
	Goals           datatypes.JSON `json:"goals"`
	TargetPlatforms []string       `json:"target_platforms" binding:"omitempty,dive,oneof=twitter linkedin instagram facebook tiktok youtube"`
}

type CloneCampaignRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type ListCampaignsQuery struct {
	Status     string `form:"status" binding:"omitempty,oneof=draft active paused completed archived"`
	OnlyActive bool   `form:"only_active"`
}

package organization

import (
	"time"
)

type Organization struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Slug      string    `gorm:"column:slug;type:varchar(255);uniqueIndex;not null" json:"slug"`
	OwnerID   string    `gorm:"column:owner_id;type:varchar(64);index;not null" json:"owner_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }

type Member struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID string    `gorm:"column:organization_id;type:varchar(36);uniqueIndex:ux_member_org_user;not null" json:"organization_id"`
	UserID         string    `gorm:"column:user_id;type:varchar(64);uniqueIndex:ux_member_org_user;index;not null" json:"user_id"`
	Role           string    `gorm:"column:role;type:varchar(20);not null" json:"role"`
	InvitedBy      *string   `gorm:"column:invited_by;type:varchar(64)" json:"invited_by,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string { return "organization_members" }

func (m *Member) SetOrganizationID(id string) { m.OrganizationID = id }

// Membership pairs an organization with the caller's role in it.
type Membership struct {
	Organization *Organization `json:"organization"`
	Role         string        `json:"role"`
}

type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
	Slug string `json:"slug" binding:"omitempty,max=255"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=viewer editor admin owner"`
}

type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=viewer editor admin owner"`
}

package socialaccount

import (
	"time"

	"gorm.io/datatypes"
)

type SocialAccount struct {
	ID                string                      `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID    string                      `gorm:"column:organization_id;type:varchar(36);uniqueIndex:ux_social_account;not null" json:"organization_id"`
	Platform          string                      `gorm:"column:platform;type:varchar(20);uniqueIndex:ux_social_account;not null" json:"platform"`
	PlatformAccountID string                      `gorm:"column:platform_account_id;type:varchar(128);uniqueIndex:ux_social_account;not null" json:"platform_account_id"`
	AccountName       string                      `gorm:"column:account_name;type:varchar(255)" json:"account_name"`
	AvatarURL         string                      `gorm:"column:avatar_url;type:text" json:"avatar_url,omitempty"`
	AccessToken       string                      `gorm:"column:access_token;type:text;not null" json:"-"`
	RefreshToken      string                      `gorm:"column:refresh_token;type:text" json:"-"`
	TokenExpiresAt    *time.Time                  `gorm:"column:token_expires_at" json:"token_expires_at,omitempty"`
	Scopes            datatypes.JSONSlice[string] `gorm:"column:scopes" json:"scopes"`
	IsActive          bool                        `gorm:"column:is_active;not null;default:true" json:"is_active"`
	ConnectedBy       string                      `gorm:"column:connected_by;type:varchar(64);not null" json:"connected_by"`
	CreatedAt         time.Time                   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SocialAccount) TableName() string { return "social_accounts" }

func (a *SocialAccount) SetOrganizationID(id string) { a.OrganizationID = id }

// Credentials are the unsealed tokens handed to the publishing gateway.
type Credentials struct {
	AccountID         string
	Platform          string
	PlatformAccountID string
	AccessToken       string
}

type ConnectResponse struct {
	AuthURL   string    `json:"auth_url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CallbackRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

type ListQuery struct {
	Platform string `form:"platform" binding:"omitempty,oneof=twitter linkedin instagram facebook tiktok youtube"`
}

package agentrun

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusRunning           Status = "running"
	StatusAwaitingApproval  Status = "awaiting_approval"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRejected, StatusRevisionRequested:
		return true
	}
	return false
}

var cancellable = []string{
	string(StatusPending),
	string(StatusRunning),
	string(StatusAwaitingApproval),
	string(StatusApproved),
}

// SchemaVersion is stamped on input_data and output_data.
const SchemaVersion = 1

type AgentRun struct {
	ID             string          `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrganizationID string          `gorm:"column:organization_id;type:varchar(36);index:idx_agent_run_org_status;not null" json:"organization_id"`
	TriggeredBy    string          `gorm:"column:triggered_by;type:varchar(64);not null" json:"triggered_by"`
	AgentType      string          `gorm:"column:agent_type;type:varchar(64);not null" json:"agent_type"`
	SchemaVersion  int             `gorm:"column:schema_version;not null;default:1" json:"schema_version"`
	Status         Status          `gorm:"column:status;type:varchar(32);index:idx_agent_run_org_status;not null" json:"status"`
	InputData      datatypes.JSON  `gorm:"column:input_data" json:"input_data"`
	OutputData     datatypes.JSON  `gorm:"column:output_data" json:"output_data,omitempty"`
	ErrorMessage   *string         `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	ApprovedBy     *string         `gorm:"column:approved_by;type:varchar(64)" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `gorm:"column:approved_at" json:"approved_at,omitempty"`
	StartedAt      *time.Time      `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	Steps          []*AgentRunStep `gorm:"foreignKey:AgentRunID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

func (AgentRun) TableName() string { return "agent_runs" }

func (r *AgentRun) SetOrganizationID(id string) { r.OrganizationID = id }

type AgentRunStep struct {
	ID           string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	AgentRunID   string         `gorm:"column:agent_run_id;type:varchar(32);uniqueIndex:ux_step_run_order;not null" json:"agent_run_id"`
	StepName     string         `gorm:"column:step_name;type:varchar(64);not null" json:"step_name"`
	StepOrder    int            `gorm:"column:step_order;uniqueIndex:ux_step_run_order;not null;check:step_order >= 0" json:"step_order"`
	Status       Status         `gorm:"column:status;type:varchar(32);not null" json:"status"`
	InputData    datatypes.JSON `gorm:"column:input_data" json:"input_data,omitempty"`
	OutputData   datatypes.JSON `gorm:"column:output_data" json:"output_data,omitempty"`
	ErrorMessage *string        `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	DurationMs   *int64         `gorm:"column:duration_ms;check:duration_ms >= 0" json:"duration_ms,omitempty"`
	ReviewedBy   *string        `gorm:"column:reviewed_by;type:varchar(64)" json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time     `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (AgentRunStep) TableName() string { return "agent_run_steps" }

type TriggerRequest struct {
	AgentType string          `json:"agent_type" binding:"required,max=64"`
	InputData json.RawMessage `json:"input_data" binding:"required"`
}

type ReviewRequest struct {
	Feedback string `json:"feedback" binding:"required,max=4000"`
}

type ListRunsQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=pending running awaiting_approval approved rejected revision_requested completed failed cancelled"`
	AgentType string `form:"agent_type" binding:"omitempty,max=64"`
}

package models

import "time"

// AutomationRule pairs a trigger with a bounded action. See spec.md §3/§4.7.
type AutomationRule struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `json:"name"`

	TriggerType   string  `json:"trigger_type" gorm:"not null"` // event | score_threshold | intent_detected | time_in_stage
	TriggerConfig JSONMap `json:"trigger_config" gorm:"type:jsonb"`

	ActionType   string  `json:"action_type" gorm:"not null"` // move_to_stage | assign_owner | send_notification | create_task | sync_moco | update_field | route_to_pipeline
	ActionConfig JSONMap `json:"action_config" gorm:"type:jsonb"`

	Priority   int   `json:"priority" gorm:"default:0;index"`
	PipelineID *uint `json:"pipeline_id,omitempty" gorm:"index"`
	StageID    *uint `json:"stage_id,omitempty" gorm:"index"`
	IsActive   bool  `json:"is_active" gorm:"default:true;index"`

	LastExecuted   *time.Time `json:"last_executed,omitempty"`
	ExecutionCount int        `json:"execution_count" gorm:"default:0"`
}

// AutomationLog is the idempotency key store for score-threshold triggers:
// unique on (RuleID, LeadID, Threshold) so a rule cannot re-fire for the
// same lead crossing the same boundary (spec.md §4.7, §5).
type AutomationLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	RuleID    uint `json:"rule_id" gorm:"not null;uniqueIndex:idx_automation_log_unique"`
	LeadID    uint `json:"lead_id" gorm:"not null;uniqueIndex:idx_automation_log_unique"`
	Threshold int  `json:"threshold" gorm:"uniqueIndex:idx_automation_log_unique"`
}

// Pipeline groups ordered stages a lead/deal moves through.
type Pipeline struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug            string `json:"slug" gorm:"uniqueIndex;not null"`
	Name            string `json:"name"`
	SalesCycleDays  int    `json:"sales_cycle_days"`
	IsDefault       bool   `json:"is_default" gorm:"default:false"`

	Stages []PipelineStage `json:"stages,omitempty" gorm:"foreignKey:PipelineID"`
}

// PipelineStage is a position within a pipeline. Positions are unique and
// dense per pipeline (spec.md §3).
type PipelineStage struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	PipelineID uint   `json:"pipeline_id" gorm:"not null;uniqueIndex:idx_stage_pipeline_position"`
	Name       string `json:"name"`
	Position   int    `json:"position" gorm:"uniqueIndex:idx_stage_pipeline_position"`
	StageType  string `json:"stage_type"` // awareness|interest|consideration|evaluation|decision|closed_won|closed_lost

	AutomationRuleIDs []uint `json:"-" gorm:"-"`
}

// Deal is a lead x pipeline pairing representing an active opportunity.
type Deal struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LeadID     uint `json:"lead_id" gorm:"not null;uniqueIndex:idx_deal_lead_pipeline"`
	PipelineID uint `json:"pipeline_id" gorm:"not null;uniqueIndex:idx_deal_lead_pipeline"`
	StageID    uint `json:"stage_id" gorm:"not null;index"`

	Name            string    `json:"name"`
	Value           *float64  `json:"value,omitempty"`
	Currency        string    `json:"currency" gorm:"default:'EUR'"`
	StageEnteredAt  time.Time `json:"stage_entered_at"`
	AssigneeID      *uint     `json:"assignee_id,omitempty" gorm:"index"`
	AssignedRegion  string    `json:"assigned_region,omitempty"`
	Status          string    `json:"status" gorm:"default:'open';index"`

	MocoOfferID   string `json:"moco_offer_id,omitempty"`
	MocoInvoiceID string `json:"moco_invoice_id,omitempty"`
}

// TeamMember is a routable owner in the sales org.
type TeamMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Email  string `json:"email" gorm:"uniqueIndex;not null"`
	Name   string `json:"name"`
	Role   string `json:"role" gorm:"index"` // bdr|ae|partnership_manager|marketing_manager|admin
	Region string `json:"region,omitempty" gorm:"index"`
	Active bool   `json:"active" gorm:"default:true;index"`

	MaxLeads     int `json:"max_leads" gorm:"default:50"`
	CurrentLeads int `json:"current_leads" gorm:"default:0"`

	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty"`
}

// Task is a follow-up unit of work, optionally tied to a lead/deal and the
// automation rule that created it.
type Task struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LeadID *uint `json:"lead_id,omitempty" gorm:"index"`
	DealID *uint `json:"deal_id,omitempty" gorm:"index"`

	Title       string     `json:"title"`
	Description string     `json:"description"`
	TaskType    string     `json:"task_type"`
	AssigneeID  *uint      `json:"assignee_id,omitempty" gorm:"index"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status" gorm:"default:'open';index"`

	SourceAutomationRuleID *uint `json:"source_automation_rule_id,omitempty"`
}

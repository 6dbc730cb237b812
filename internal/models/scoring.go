package models

import "time"

// ScoringRule is versioned scoring configuration. See spec.md §3 / §4.4.
type ScoringRule struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug     string `json:"slug" gorm:"uniqueIndex;not null"`
	Category string `json:"category" gorm:"not null"` // demographic | engagement | behavior
	RuleType string `json:"rule_type" gorm:"not null"` // event | field | threshold

	// EventType / MetadataPredicate apply when RuleType == "event".
	EventType        string  `json:"event_type,omitempty"`
	MetadataPredicate JSONMap `json:"metadata_predicate,omitempty" gorm:"type:jsonb"`

	// FieldPath / Operator / Value apply when RuleType == "field".
	FieldPath string      `json:"field_path,omitempty"`
	Operator  string      `json:"operator,omitempty"` // equals | in | contains | pattern | gte | lte
	Value     interface{} `json:"value,omitempty" gorm:"-"`
	ValueRaw  JSONMap     `json:"-" gorm:"column:value;type:jsonb"`

	// ThresholdField / ThresholdOp / ThresholdValue apply when
	// RuleType == "threshold" (consumed by the Automation Engine, not
	// triggered directly by events — spec.md §4.4).
	ThresholdField string  `json:"threshold_field,omitempty"`
	ThresholdOp    string  `json:"threshold_op,omitempty"`
	ThresholdValue float64 `json:"threshold_value,omitempty"`

	Points     int  `json:"points"`
	MaxPerDay  *int `json:"max_per_day,omitempty"`
	MaxPerLead *int `json:"max_per_lead,omitempty"`
	DecayDays  *int `json:"decay_days,omitempty"`

	Priority int  `json:"priority" gorm:"default:0;index"`
	IsActive bool `json:"is_active" gorm:"default:true;index"`
}

// GetValue unwraps the field-match operand from its jsonb storage wrapper
// (ValueRaw holds {"v": <scalar|list>} since a bare JSONMap column cannot
// carry a top-level array or scalar).
func (r *ScoringRule) GetValue() interface{} {
	if r.ValueRaw == nil {
		return r.Value
	}
	return r.ValueRaw["v"]
}

func (r *ScoringRule) SetValue(v interface{}) {
	r.Value = v
	r.ValueRaw = JSONMap{"v": v}
}

// ScoreHistoryEntry is a ledger row: one rule firing against one lead for
// one category. The ledger is authoritative; denormalized lead scores are
// read caches reconstructable from it (spec.md §9).
type ScoreHistoryEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	LeadID   uint  `json:"lead_id" gorm:"not null;index:idx_score_history_lead_rule"`
	EventID  *uint `json:"event_id,omitempty" gorm:"index"`
	RuleID   *uint `json:"rule_id,omitempty" gorm:"index:idx_score_history_lead_rule"`

	Category     string `json:"category" gorm:"not null;index"`
	PointsChange int    `json:"points_change"`
	NewTotal     int    `json:"new_total"`

	ExpiresAt *time.Time `json:"expires_at,omitempty" gorm:"index"`
	Expired   bool       `json:"expired" gorm:"default:false;index"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`
}

// IntentRule is intent-detection configuration, sharing the predicate
// grammar of ScoringRule (spec.md §4.5, §9).
type IntentRule struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TargetIntent string `json:"target_intent" gorm:"not null;index"`
	Description  string `json:"description"`

	TriggerType string `json:"trigger_type" gorm:"not null"` // event | lead_field | org_field

	EventType         string  `json:"event_type,omitempty"`
	MetadataPredicate JSONMap `json:"metadata_predicate,omitempty" gorm:"type:jsonb"`

	FieldPath string  `json:"field_path,omitempty"`
	Operator  string  `json:"operator,omitempty"`
	ValueRaw  JSONMap `json:"-" gorm:"column:value;type:jsonb"`

	ConfidencePoints int  `json:"confidence_points"`
	IsActive         bool `json:"is_active" gorm:"default:true;index"`
}

// GetValue unwraps the field-match operand, mirroring ScoringRule.GetValue.
func (r *IntentRule) GetValue() interface{} {
	if r.ValueRaw == nil {
		return nil
	}
	return r.ValueRaw["v"]
}

func (r *IntentRule) SetValue(v interface{}) {
	r.ValueRaw = JSONMap{"v": v}
}

// IntentSignal is a ledger row recording one intent-rule firing. Signals
// are monotonic: they never decay (spec.md §4.5).
type IntentSignal struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	LeadID           uint   `json:"lead_id" gorm:"not null;index"`
	Intent           string `json:"intent" gorm:"not null;index"`
	RuleID           uint   `json:"rule_id" gorm:"not null;index"`
	ConfidencePoints int    `json:"confidence_points"`
	TriggerType      string `json:"trigger_type"`
	EventID          *uint  `json:"event_id,omitempty"`
	DetectedAt       time.Time `json:"detected_at"`
}

package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONMap stores arbitrary structured data (event metadata, rule
// conditions, score factors, intent summaries) in a single jsonb column.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}
	if len(bytes) == 0 {
		*j = make(JSONMap)
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// IntentPoints stores per-intent accumulated confidence points
// (lead.intent_summary in the spec).
type IntentPoints map[string]int

func (p IntentPoints) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *IntentPoints) Scan(value interface{}) error {
	if value == nil {
		*p = make(IntentPoints)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}
	if len(bytes) == 0 {
		*p = make(IntentPoints)
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// Lead lifecycle / status enums, per spec §3.
const (
	LeadStatusNew        = "new"
	LeadStatusContacted  = "contacted"
	LeadStatusQualified  = "qualified"
	LeadStatusNurturing  = "nurturing"
	LeadStatusCustomer   = "customer"
	LeadStatusChurned    = "churned"

	LifecycleLead        = "lead"
	LifecycleMQL         = "mql"
	LifecycleSQL         = "sql"
	LifecycleOpportunity = "opportunity"
	LifecycleCustomer    = "customer"

	RoutingStatusUnrouted     = "unrouted"
	RoutingStatusRouted       = "routed"
	RoutingStatusManualReview = "manual_review"
	RoutingStatusStuck        = "stuck"
)

// Intent categories, per spec §3/§4.5.
const (
	IntentResearch   = "research"
	IntentB2B        = "b2b"
	IntentCoCreation = "co_creation"
)

// Score categories, per spec §3.
const (
	CategoryDemographic = "demographic"
	CategoryEngagement  = "engagement"
	CategoryBehavior    = "behavior"
)

// Tier crossing names, per spec §4.4 / GLOSSARY.
const (
	TierWarm    = "warm"
	TierHot     = "hot"
	TierVeryHot = "very_hot"
)

// Deal / team / task enums.
const (
	DealStatusOpen = "open"
	DealStatusWon  = "won"
	DealStatusLost = "lost"

	RoleBDR               = "bdr"
	RoleAE                = "ae"
	RolePartnershipManager = "partnership_manager"
	RoleMarketingManager  = "marketing_manager"
	RoleAdmin             = "admin"

	TaskStatusOpen       = "open"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusCancelled  = "cancelled"
)

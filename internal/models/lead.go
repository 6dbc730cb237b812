package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead is the unit of routing: a deduplicated contact identified by email
// and/or any external platform id, carrying composite scores, an intent
// classification, and a routing state. See spec.md §3.
type Lead struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Identity — resolution order is Email -> PortalID -> WaalaxyID ->
	// LinkedInURL -> LemlistID (see internal/identity).
	Email        string  `json:"email" gorm:"uniqueIndex;not null"`
	EmailIsPlaceholder bool `json:"email_is_placeholder" gorm:"default:false"`
	PortalID     *string `json:"portal_id,omitempty" gorm:"uniqueIndex"`
	WaalaxyID    *string `json:"waalaxy_id,omitempty" gorm:"uniqueIndex"`
	LinkedInURL  *string `json:"linkedin_url,omitempty" gorm:"uniqueIndex"`
	LemlistID    *string `json:"lemlist_id,omitempty" gorm:"uniqueIndex"`

	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     string  `json:"phone"`
	JobTitle  string  `json:"job_title"`

	OrganizationID *uint         `json:"organization_id,omitempty" gorm:"index"`
	Organization   *Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`

	Status         string `json:"status" gorm:"default:'new';index"`
	LifecycleStage string `json:"lifecycle_stage" gorm:"default:'lead';index"`

	// Scores. Total is derived, never stored independently of the sum
	// (invariant 1 in spec.md §8).
	DemographicScore int `json:"demographic_score" gorm:"default:0"`
	EngagementScore  int `json:"engagement_score" gorm:"default:0"`
	BehaviorScore    int `json:"behavior_score" gorm:"default:0"`

	// Routing.
	PipelineID    *uint      `json:"pipeline_id,omitempty" gorm:"index"`
	RoutingStatus string     `json:"routing_status" gorm:"default:'unrouted';index"`
	RoutedAt      *time.Time `json:"routed_at,omitempty"`

	// Intent.
	PrimaryIntent   *string      `json:"primary_intent,omitempty" gorm:"index"`
	IntentConfidence int         `json:"intent_confidence" gorm:"default:0"`
	IntentSummary   IntentPoints `json:"intent_summary" gorm:"type:jsonb"`

	// Attribution.
	FirstTouchSource   string     `json:"first_touch_source"`
	FirstTouchCampaign string     `json:"first_touch_campaign"`
	FirstTouchAt       *time.Time `json:"first_touch_at,omitempty"`
	LastTouchSource    string     `json:"last_touch_source"`
	LastTouchCampaign  string     `json:"last_touch_campaign"`
	LastTouchAt        *time.Time `json:"last_touch_at,omitempty"`

	// Consent / GDPR.
	ConsentAt               *time.Time `json:"consent_at,omitempty"`
	ConsentSource           string     `json:"consent_source"`
	DeletionRequestedAt     *time.Time `json:"deletion_requested_at,omitempty"`

	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
}

// TotalScore is the authoritative composite used by the router and the
// tier-crossing detector. Recomputed from the ledger, never drifted.
func (l *Lead) TotalScore() int {
	return l.DemographicScore + l.EngagementScore + l.BehaviorScore
}

// IsRoutable reports whether the lead may be considered a routing source
// at all — a deletion-requested lead is never used (spec.md §3 invariant).
func (l *Lead) IsRoutable() bool {
	return l.DeletionRequestedAt == nil
}

func (l *Lead) FullName() string {
	name := l.FirstName
	if l.LastName != "" {
		if name != "" {
			name += " "
		}
		name += l.LastName
	}
	return name
}

// Organization is the optional company aggregate a lead belongs to.
type Organization struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Name           string `json:"name" gorm:"index"`
	Domain         string `json:"domain" gorm:"uniqueIndex"`
	Industry       string `json:"industry"`
	CompanySize    string `json:"company_size"` // bucket, e.g. "1-10", "11-50"
	CountryCode    string `json:"country_code"`

	MocoCustomerID string `json:"moco_customer_id,omitempty"`
}

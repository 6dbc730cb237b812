package models

import "time"

// Event is a record of one observed interaction. Its observed fields are
// never mutated after insert; only the post-processing annotations below
// are set once, after scoring. Reprocessing produces new score-history
// rows, not modified events (spec.md §3).
//
// PartitionKey carries the YYYY_MM suffix the repository layer uses to
// route inserts/reads to the correct monthly partition (see
// internal/repositories.EventRepository); gorm itself is partition-agnostic,
// so the struct maps to the parent `events` table and the partitioning is a
// physical storage detail resolved by the migration in
// internal/repositories/schema.go.
type Event struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	LeadID uint `json:"lead_id" gorm:"not null;index"`

	EventType     string  `json:"event_type" gorm:"not null;index"`
	EventCategory string  `json:"event_category"`
	Source        string  `json:"source" gorm:"not null;index"`
	OccurredAt    time.Time `json:"occurred_at" gorm:"not null;index"`

	Metadata      JSONMap `json:"metadata" gorm:"type:jsonb"`
	CorrelationID *string `json:"correlation_id,omitempty" gorm:"index"`
	CampaignID    string  `json:"campaign_id,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`

	// Post-processing annotations, written once by the Event Worker after
	// scoring (EventRepository.MarkProcessed).
	ScorePoints  int        `json:"score_points"`
	ScoreCategory string    `json:"score_category,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// PartitionSuffix returns the "YYYY_MM" suffix for the monthly partition
// this event belongs to, derived from OccurredAt (UTC).
func (e *Event) PartitionSuffix() string {
	return e.OccurredAt.UTC().Format("2006_01")
}

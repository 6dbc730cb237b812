package repositories

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

// Migrate auto-migrates every model and ensures the current and next
// month's event partitions exist, per the month-range partitioning
// spec.md §3 requires for `events`.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Organization{},
		&models.Lead{},
		&models.ScoringRule{},
		&models.ScoreHistoryEntry{},
		&models.IntentRule{},
		&models.IntentSignal{},
		&models.AutomationRule{},
		&models.AutomationLog{},
		&models.Pipeline{},
		&models.PipelineStage{},
		&models.Deal{},
		&models.TeamMember{},
		&models.Task{},
		&models.AdminUser{},
	); err != nil {
		return err
	}

	if err := ensureEventsParent(db); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, month := range []time.Time{now, now.AddDate(0, 1, 0)} {
		if err := EnsureEventPartition(db, month); err != nil {
			return err
		}
	}

	log.Println("✅ schema migrated, event partitions ensured")
	return nil
}

// ensureEventsParent creates the range-partitioned parent table for
// Postgres. On any other dialect (sqlite, used by the test suites) it
// runs gorm's AutoMigrate for models.Event instead, creating a plain
// `events` table, since sqlite has no native partitioning.
func ensureEventsParent(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return db.AutoMigrate(&models.Event{})
	}

	return db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL,
			created_at TIMESTAMPTZ,
			lead_id BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			event_category TEXT,
			source TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			metadata JSONB,
			correlation_id TEXT,
			campaign_id TEXT,
			utm_source TEXT,
			utm_medium TEXT,
			utm_campaign TEXT,
			score_points INTEGER DEFAULT 0,
			score_category TEXT,
			processed_at TIMESTAMPTZ,
			PRIMARY KEY (id, occurred_at)
		) PARTITION BY RANGE (occurred_at);
	`).Error
}

// EnsureEventPartition creates the monthly partition for the given month if
// it does not already exist (spec.md §3 "range-partitioned by occurrence
// month"). Safe to call repeatedly — CREATE TABLE IF NOT EXISTS.
func EnsureEventPartition(db *gorm.DB, month time.Time) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	suffix := start.Format("2006_01")

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS events_%s PARTITION OF events
		FOR VALUES FROM ('%s') TO ('%s');
	`, suffix, start.Format(time.RFC3339), end.Format(time.RFC3339))

	return db.Exec(stmt).Error
}

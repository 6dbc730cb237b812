package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type EventRepository struct {
	db *gorm.DB
}

// Create inserts the event, first ensuring the monthly partition for its
// OccurredAt exists (spec.md §3 "range-partitioned by occurrence month").
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if err := EnsureEventPartition(r.db, event.OccurredAt); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByCorrelationID implements the idempotency check from spec.md §4.3
// step 2: at most one event per correlation_id per lead.
func (r *EventRepository) FindByCorrelationID(ctx context.Context, leadID uint, correlationID string) (*models.Event, error) {
	var event models.Event
	err := r.db.WithContext(ctx).
		Where("lead_id = ? AND correlation_id = ?", leadID, correlationID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *EventRepository) MarkProcessed(ctx context.Context, eventID uint, scoreCategory string, scorePoints int) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"processed_at":   now,
		"score_category": scoreCategory,
		"score_points":   scorePoints,
	}).Error
}

func (r *EventRepository) ForLead(ctx context.Context, leadID uint, limit int) ([]models.Event, error) {
	var events []models.Event
	q := r.db.WithContext(ctx).Where("lead_id = ?", leadID).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

// CountByTypeSince counts events of a given type for a lead within a session
// window — used by Automation Engine style session heuristics and tests.
func (r *EventRepository) CountByTypeSince(ctx context.Context, leadID uint, eventType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Event{}).
		Where("lead_id = ? AND event_type = ? AND occurred_at >= ?", leadID, eventType, since).
		Count(&count).Error
	return count, err
}

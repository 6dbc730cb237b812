package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadpipeline/internal/models"
)

type DealRepository struct {
	db *gorm.DB
}

func (r *DealRepository) FindByLeadAndPipeline(ctx context.Context, leadID, pipelineID uint) (*models.Deal, error) {
	var deal models.Deal
	err := r.db.WithContext(ctx).
		Where("lead_id = ? AND pipeline_id = ?", leadID, pipelineID).
		First(&deal).Error
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

func (r *DealRepository) FindByID(ctx context.Context, id uint) (*models.Deal, error) {
	var deal models.Deal
	if err := r.db.WithContext(ctx).First(&deal, id).Error; err != nil {
		return nil, err
	}
	return &deal, nil
}

// Upsert implements spec.md §4.6's "upsert a deal on (lead_id, pipeline_id)":
// insert if absent, otherwise update the stage/assignee in place rather than
// creating a second deal for the same lead in the same pipeline.
func (r *DealRepository) Upsert(ctx context.Context, deal *models.Deal) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lead_id"}, {Name: "pipeline_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage_id", "stage_entered_at", "assignee_id", "assigned_region", "status"}),
	}).Create(deal).Error
}

func (r *DealRepository) MoveToStage(ctx context.Context, dealID, stageID uint) error {
	return r.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", dealID).Updates(map[string]interface{}{
		"stage_id":         stageID,
		"stage_entered_at": time.Now().UTC(),
	}).Error
}

func (r *DealRepository) AssignOwner(ctx context.Context, dealID, assigneeID uint, region string) error {
	return r.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", dealID).Updates(map[string]interface{}{
		"assignee_id":     assigneeID,
		"assigned_region": region,
	}).Error
}

func (r *DealRepository) SetStatus(ctx context.Context, dealID uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", dealID).Update("status", status).Error
}

// SetMocoOfferID and SetMocoInvoiceID record the finance-system ids created
// by the sync_moco automation action (spec.md §4.7), so a later invoice step
// can find the offer it belongs to without re-querying Moco.
func (r *DealRepository) SetMocoOfferID(ctx context.Context, dealID uint, offerID string) error {
	return r.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", dealID).Update("moco_offer_id", offerID).Error
}

func (r *DealRepository) SetMocoInvoiceID(ctx context.Context, dealID uint, invoiceID string) error {
	return r.db.WithContext(ctx).Model(&models.Deal{}).Where("id = ?", dealID).Update("moco_invoice_id", invoiceID).Error
}

// StuckInStage returns open deals, in any stage, that entered their
// current stage before olderThan. The Pipeline Router's stuck-in-pool
// check does not use it; that check looks at the lead's creation time.
func (r *DealRepository) StuckInStage(ctx context.Context, olderThan time.Time) ([]models.Deal, error) {
	var deals []models.Deal
	err := r.db.WithContext(ctx).
		Where("status = ? AND stage_entered_at < ?", models.DealStatusOpen, olderThan).
		Find(&deals).Error
	return deals, err
}

// StuckInSpecificStage returns open deals sitting in exactly the given
// stage past the threshold — backs the Automation Engine's time_in_stage
// trigger sweep (spec.md §4.7 step 4).
func (r *DealRepository) StuckInSpecificStage(ctx context.Context, stageID uint, olderThan time.Time) ([]models.Deal, error) {
	var deals []models.Deal
	err := r.db.WithContext(ctx).
		Where("stage_id = ? AND status = ? AND stage_entered_at < ?", stageID, models.DealStatusOpen, olderThan).
		Find(&deals).Error
	return deals, err
}

// CountCreatedSince and CountWonSince back the Daily Digest's deal figures
// (spec.md §4.9).
func (r *DealRepository) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Deal{}).Where("created_at >= ?", since).Count(&count).Error
	return count, err
}

func (r *DealRepository) CountWonSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Deal{}).
		Where("status = ? AND updated_at >= ?", models.DealStatusWon, since).
		Count(&count).Error
	return count, err
}

// SumOpenValue totals the value of every open deal, for the digest's
// "total open-pipeline value" figure. Null values do not contribute.
func (r *DealRepository) SumOpenValue(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&models.Deal{}).
		Where("status = ?", models.DealStatusOpen).
		Select("COALESCE(SUM(value), 0)").
		Row().Scan(&total)
	return total, err
}

package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type ScoringRepository struct {
	db *gorm.DB
}

// ActiveRules returns active scoring rules sorted by descending priority,
// matching the Scoring Engine's rule-matching order (spec.md §4.4).
func (r *ScoringRepository) ActiveRules(ctx context.Context) ([]models.ScoringRule, error) {
	var rules []models.ScoringRule
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("priority DESC").Find(&rules).Error
	return rules, err
}

func (r *ScoringRepository) CreateRule(ctx context.Context, rule *models.ScoringRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *ScoringRepository) UpdateRule(ctx context.Context, rule *models.ScoringRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *ScoringRepository) DeleteRule(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ScoringRule{}, id).Error
}

func (r *ScoringRepository) ListRules(ctx context.Context) ([]models.ScoringRule, error) {
	var rules []models.ScoringRule
	err := r.db.WithContext(ctx).Order("priority DESC").Find(&rules).Error
	return rules, err
}

// CountRuleFiringsToday counts score-history rows for (lead, rule) within
// the last rolling 24h, for the max_per_day rate cap (spec.md §4.4).
func (r *ScoringRepository) CountRuleFiringsToday(ctx context.Context, leadID, ruleID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScoreHistoryEntry{}).
		Where("lead_id = ? AND rule_id = ? AND created_at >= ?", leadID, ruleID, time.Now().UTC().Add(-24*time.Hour)).
		Count(&count).Error
	return count, err
}

// CountRuleFiringsLifetime counts score-history rows for (lead, rule) ever,
// for the max_per_lead rate cap.
func (r *ScoringRepository) CountRuleFiringsLifetime(ctx context.Context, leadID, ruleID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScoreHistoryEntry{}).
		Where("lead_id = ? AND rule_id = ?", leadID, ruleID).
		Count(&count).Error
	return count, err
}

func (r *ScoringRepository) CreateHistoryEntry(ctx context.Context, entry *models.ScoreHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ExpirableEntries returns non-expired score-history rows whose expiry has
// passed, for the Decay Scheduler (spec.md §4.8).
func (r *ScoringRepository) ExpirableEntries(ctx context.Context, now time.Time) ([]models.ScoreHistoryEntry, error) {
	var entries []models.ScoreHistoryEntry
	err := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ? AND expired = ?", now, false).
		Find(&entries).Error
	return entries, err
}

func (r *ScoringRepository) MarkExpired(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ScoreHistoryEntry{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"expired": true, "expired_at": at}).Error
}

type IntentRepository struct {
	db *gorm.DB
}

func (r *IntentRepository) ActiveRules(ctx context.Context) ([]models.IntentRule, error) {
	var rules []models.IntentRule
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&rules).Error
	return rules, err
}

func (r *IntentRepository) CreateRule(ctx context.Context, rule *models.IntentRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *IntentRepository) CreateSignal(ctx context.Context, signal *models.IntentSignal) error {
	return r.db.WithContext(ctx).Create(signal).Error
}

func (r *IntentRepository) SignalsForLead(ctx context.Context, leadID uint) ([]models.IntentSignal, error) {
	var signals []models.IntentSignal
	err := r.db.WithContext(ctx).Where("lead_id = ?", leadID).Find(&signals).Error
	return signals, err
}

// HasRuleFired reports whether the given intent rule has already fired for
// this lead — used by the Automation Engine's intent-detected trigger guard
// (spec.md §4.7 step 3).
func (r *IntentRepository) HasRuleFired(ctx context.Context, leadID, ruleID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IntentSignal{}).
		Where("lead_id = ? AND rule_id = ?", leadID, ruleID).
		Count(&count).Error
	return count > 0, err
}

package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type AutomationRepository struct {
	db *gorm.DB
}

func (r *AutomationRepository) ActiveRules(ctx context.Context) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("priority DESC").Find(&rules).Error
	return rules, err
}

func (r *AutomationRepository) CreateRule(ctx context.Context, rule *models.AutomationRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *AutomationRepository) MarkExecuted(ctx context.Context, ruleID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.AutomationRule{}).Where("id = ?", ruleID).
		Updates(map[string]interface{}{
			"last_executed":   at,
			"execution_count": gorm.Expr("execution_count + 1"),
		}).Error
}

// TryLogThresholdFiring inserts the (rule, lead, threshold) idempotency
// marker; returns false if it already existed (unique violation), meaning
// the rule must not re-fire (spec.md §4.7 step 2, §5).
func (r *AutomationRepository) TryLogThresholdFiring(ctx context.Context, ruleID, leadID uint, threshold int) (bool, error) {
	log := &models.AutomationLog{RuleID: ruleID, LeadID: leadID, Threshold: threshold}
	err := r.db.WithContext(ctx).Create(log).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (r *AutomationRepository) CreateTask(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

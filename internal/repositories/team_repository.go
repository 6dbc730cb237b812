package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type TeamMemberRepository struct {
	db *gorm.DB
}

func (r *TeamMemberRepository) FindByID(ctx context.Context, id uint) (*models.TeamMember, error) {
	var m models.TeamMember
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// AvailableByRole lists active members under capacity for a role, ordered
// by fewest current leads, then least-recently-assigned (never-assigned
// first) — the round_robin candidate pool (spec.md §4.6).
func (r *TeamMemberRepository) AvailableByRole(ctx context.Context, role string) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := r.db.WithContext(ctx).
		Where("role = ? AND active = ? AND current_leads < max_leads", role, true).
		Order("current_leads ASC").
		Order("last_assigned_at ASC NULLS FIRST").
		Find(&members).Error
	return members, err
}

// AvailableByRoleAndRegion narrows the pool to a region, for region_aware
// assignment (spec.md §4.6).
func (r *TeamMemberRepository) AvailableByRoleAndRegion(ctx context.Context, role, region string) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := r.db.WithContext(ctx).
		Where("role = ? AND region = ? AND active = ? AND current_leads < max_leads", role, region, true).
		Order("current_leads ASC").
		Order("last_assigned_at ASC NULLS FIRST").
		Find(&members).Error
	return members, err
}

// TryAssign atomically increments current_leads only if the member is still
// under max_leads, so two concurrent routing jobs can never both assign the
// same slot (spec.md §5 "current_leads ≤ max_leads... impossible to
// over-assign"). Returns false if the member was already at capacity.
func (r *TeamMemberRepository) TryAssign(ctx context.Context, memberID uint) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("id = ? AND current_leads < max_leads", memberID).
		Updates(map[string]interface{}{
			"current_leads":    gorm.Expr("current_leads + 1"),
			"last_assigned_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TeamMemberRepository) Release(ctx context.Context, memberID uint) error {
	return r.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("id = ? AND current_leads > 0", memberID).
		Update("current_leads", gorm.Expr("current_leads - 1")).Error
}

func (r *TeamMemberRepository) Create(ctx context.Context, m *models.TeamMember) error {
	return r.db.WithContext(ctx).Create(m).Error
}

package repositories

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
)

type AdminUserRepository struct {
	db *gorm.DB
}

// FindByLogin looks up an admin user by email or username in a single
// OR query, case-insensitive on both.
func (r *AdminUserRepository) FindByLogin(ctx context.Context, login string) (*models.AdminUser, error) {
	var user models.AdminUser
	err := r.db.WithContext(ctx).
		Where("active = ? AND (LOWER(email) = ? OR LOWER(username) = ?)", true, strings.ToLower(login), strings.ToLower(login)).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *AdminUserRepository) Create(ctx context.Context, user *models.AdminUser) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// RecordLogin bumps login_count and stamps last_login.
func (r *AdminUserRepository) RecordLogin(ctx context.Context, userID uint) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.AdminUser{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"last_login":  now,
		"login_count": gorm.Expr("login_count + 1"),
	}).Error
}

package models

import "time"

// AdminUser is an internal operator allowed to manage scoring/intent/
// automation rules through internal/httpapi — distinct from a Lead or
// TeamMember, neither of which ever authenticates against this API.
type AdminUser struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Username     string     `json:"username" gorm:"uniqueIndex"`
	Email        string     `json:"email" gorm:"uniqueIndex"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role" gorm:"default:'operator'"`
	Active       bool       `json:"active" gorm:"default:true"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LoginCount   int        `json:"login_count" gorm:"default:0"`
}

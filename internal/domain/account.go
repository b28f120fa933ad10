package domain

import "time"

// Role is the closed set of authorization roles. Viewer is the lowest
// privilege and the default for self-registration.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTreasurer Role = "treasurer"
	RoleViewer    Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTreasurer, RoleViewer:
		return true
	}
	return false
}

// Status models soft deletion: an inactive account fails authentication
// but keeps existing and can be reactivated by an admin.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

type Account struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Username      string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email         string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash  string     `gorm:"size:128;not null" json:"-"`
	Role          Role       `gorm:"size:16;not null;default:viewer" json:"role"`
	Status        Status     `gorm:"size:16;not null;default:active" json:"status"`
	EmailVerified bool       `gorm:"not null;default:false" json:"email_verified"`
	LastLoginAt   *time.Time `gorm:"index" json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (a *Account) Active() bool {
	return a.Status == StatusActive
}

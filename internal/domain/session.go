package domain

import "time"

// Session is one issued refresh token. The raw token is never stored;
// RefreshTokenHash is the peppered SHA-256 digest of the token string and
// TokenID is the jti claim embedded in it. FamilyID links every session
// produced by rotating an original login, so reuse of a rotated-out token
// can revoke the whole chain.
type Session struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	AccountID        uint       `gorm:"index;not null" json:"account_id"`
	RefreshTokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	TokenID          string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	FamilyID         string     `gorm:"size:64;index;not null" json:"-"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	IP               string     `gorm:"size:64" json:"ip"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt        *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason    *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	ReuseDetectedAt  *time.Time `gorm:"index" json:"reuse_detected_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Usable reports whether the session may still mint access tokens:
// never revoked and not yet past its absolute expiry.
func (s *Session) Usable(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

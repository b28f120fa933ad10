package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByHash(hash string) (*domain.Session, error)
	ListActiveByAccountID(accountID uint) ([]domain.Session, error)
	Rotate(oldHash string, next *domain.Session) (*domain.Session, error)
	MarkReuseDetectedByHash(hash string) error
	RevokeByHash(hash, reason string) error
	RevokeByIDForAccount(accountID, sessionID uint, reason string) (bool, error)
	RevokeByFamilyID(familyID, reason string) (int64, error)
	RevokeByAccountID(accountID uint, reason string) (int64, error)
	PurgeExpired() (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByHash(hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("refresh_token_hash = ?", hash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByAccountID(accountID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("account_id = ? AND revoked_at IS NULL AND expires_at > ?", accountID, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_account_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_account_id", "success")
	return sessions, nil
}

// Rotate revokes the session behind oldHash and inserts next in one
// transaction. The locked conditional select only matches while the old
// row is unrevoked and unexpired, so of two concurrent rotations with the
// same token exactly one wins; the loser sees ErrSessionNotFound.
func (r *GormSessionRepository) Rotate(oldHash string, next *domain.Session) (*domain.Session, error) {
	var rotated *domain.Session
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var s domain.Session
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("refresh_token_hash = ? AND revoked_at IS NULL AND expires_at > ?", oldHash, time.Now()).
			First(&s).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		now := time.Now().UTC()
		reason := "rotated"
		if err := tx.Model(&domain.Session{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{"revoked_at": now, "revoked_reason": reason}).Error; err != nil {
			return err
		}
		if err := tx.Create(next).Error; err != nil {
			return err
		}
		s.RevokedAt = &now
		s.RevokedReason = &reason
		rotated = &s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "session", "rotate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "rotate", "success")
	return rotated, nil
}

func (r *GormSessionRepository) MarkReuseDetectedByHash(hash string) error {
	now := time.Now().UTC()
	err := r.db.Model(&domain.Session{}).
		Where("refresh_token_hash = ? AND reuse_detected_at IS NULL", hash).
		Update("reuse_detected_at", now).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "mark_reuse_detected", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "mark_reuse_detected", "success")
	return nil
}

// RevokeByHash is idempotent: revoking an already-revoked or unknown
// session leaves the store unchanged and returns nil.
func (r *GormSessionRepository) RevokeByHash(hash, reason string) error {
	now := time.Now().UTC()
	err := r.db.Model(&domain.Session{}).
		Where("refresh_token_hash = ? AND revoked_at IS NULL", hash).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_hash", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_hash", "success")
	return nil
}

func (r *GormSessionRepository) RevokeByIDForAccount(accountID, sessionID uint, reason string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.Model(&domain.Session{}).
		Where("account_id = ? AND id = ? AND revoked_at IS NULL", accountID, sessionID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_id_for_account", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_id_for_account", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) RevokeByFamilyID(familyID, reason string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.Model(&domain.Session{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_family_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_family_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) RevokeByAccountID(accountID uint, reason string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.Model(&domain.Session{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Updates(map[string]any{"revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_account_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_by_account_id", "success")
	return res.RowsAffected, nil
}

// PurgeExpired removes rows already outside the valid set (expired or
// revoked), so it is safe to run concurrently with everything else.
func (r *GormSessionRepository) PurgeExpired() (int64, error) {
	res := r.db.Where("expires_at <= ? OR revoked_at IS NOT NULL", time.Now()).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "purge_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "purge_expired", "success")
	return res.RowsAffected, nil
}

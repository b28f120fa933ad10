package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/observability"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateEmail    = errors.New("email already exists")
)

type AccountRepository interface {
	FindByID(id uint) (*domain.Account, error)
	FindByEmail(email string) (*domain.Account, error)
	FindByUsername(username string) (*domain.Account, error)
	Create(account *domain.Account) error
	Update(account *domain.Account) error
	UpdateFields(id uint, fields map[string]any) error
	TouchLastLogin(id uint, at time.Time) error
	List() ([]domain.Account, error)
}

type GormAccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository { return &GormAccountRepository{db: db} }

func (r *GormAccountRepository) FindByID(id uint) (*domain.Account, error) {
	return r.findOne("find_by_id", "id = ?", id)
}

func (r *GormAccountRepository) FindByEmail(email string) (*domain.Account, error) {
	return r.findOne("find_by_email", "email = ?", email)
}

func (r *GormAccountRepository) FindByUsername(username string) (*domain.Account, error) {
	return r.findOne("find_by_username", "username = ?", username)
}

func (r *GormAccountRepository) findOne(op string, query string, arg any) (*domain.Account, error) {
	var a domain.Account
	err := r.db.Where(query, arg).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "account", op, "not_found")
			return nil, ErrAccountNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "account", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", op, "success")
	return &a, nil
}

// Create inserts the account. The unique indexes on username and email are
// the authoritative uniqueness check; their violation is translated to the
// matching duplicate error so callers can surface a conflict even when two
// registrations race past the service-level pre-check.
func (r *GormAccountRepository) Create(account *domain.Account) error {
	err := r.db.Create(account).Error
	if err != nil {
		if dup := translateUniqueViolation(err); dup != nil {
			observability.RecordRepositoryOperation(context.Background(), "account", "create", "conflict")
			return dup
		}
		observability.RecordRepositoryOperation(context.Background(), "account", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "create", "success")
	return nil
}

func (r *GormAccountRepository) Update(account *domain.Account) error {
	err := r.db.Save(account).Error
	if err != nil {
		if dup := translateUniqueViolation(err); dup != nil {
			observability.RecordRepositoryOperation(context.Background(), "account", "update", "conflict")
			return dup
		}
		observability.RecordRepositoryOperation(context.Background(), "account", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "update", "success")
	return nil
}

func (r *GormAccountRepository) UpdateFields(id uint, fields map[string]any) error {
	res := r.db.Model(&domain.Account{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		if dup := translateUniqueViolation(res.Error); dup != nil {
			observability.RecordRepositoryOperation(context.Background(), "account", "update_fields", "conflict")
			return dup
		}
		observability.RecordRepositoryOperation(context.Background(), "account", "update_fields", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "account", "update_fields", "not_found")
		return ErrAccountNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "update_fields", "success")
	return nil
}

// TouchLastLogin is best effort by contract; callers ignore its error.
func (r *GormAccountRepository) TouchLastLogin(id uint, at time.Time) error {
	err := r.db.Model(&domain.Account{}).Where("id = ?", id).
		Update("last_login_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "touch_last_login", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "touch_last_login", "success")
	return nil
}

func (r *GormAccountRepository) List() ([]domain.Account, error) {
	var accounts []domain.Account
	err := r.db.Order("id").Find(&accounts).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "list", "success")
	return accounts, nil
}

// translateUniqueViolation maps driver-specific unique-constraint failures
// onto the duplicate sentinels. Postgres reports 23505 through
// gorm.ErrDuplicatedKey; sqlite surfaces "UNIQUE constraint failed". The
// offending column is sniffed from the message text.
func translateUniqueViolation(err error) error {
	msg := strings.ToLower(err.Error())
	unique := errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
	if !unique {
		return nil
	}
	switch {
	case strings.Contains(msg, "username"):
		return ErrDuplicateUsername
	case strings.Contains(msg, "email"):
		return ErrDuplicateEmail
	default:
		return ErrDuplicateUsername
	}
}

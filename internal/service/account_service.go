package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/notify"
	"loanhub-auth-service/internal/repository"
	"loanhub-auth-service/internal/security"
)

// AccountView is the only shape of an account that leaves the service; the
// password hash is structurally absent, not merely tagged away.
type AccountView struct {
	ID            uint          `json:"id"`
	Username      string        `json:"username"`
	Email         string        `json:"email"`
	Role          domain.Role   `json:"role"`
	Status        domain.Status `json:"status"`
	EmailVerified bool          `json:"email_verified"`
	LastLoginAt   *time.Time    `json:"last_login_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func NewAccountView(a *domain.Account) AccountView {
	return AccountView{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          a.Role,
		Status:        a.Status,
		EmailVerified: a.EmailVerified,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
	}
}

type AccountService struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	hasher   *security.PasswordHasher
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewAccountService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	hasher *security.PasswordHasher,
	notifier notify.Notifier,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		sessions: sessions,
		hasher:   hasher,
		notifier: notifier,
		logger:   logger,
	}
}

// NormalizeEmail lower-cases emails everywhere they enter the service, so
// lookup and uniqueness agree on case. Usernames stay exact-match.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account with a hashed password. The username/email
// pre-checks are a fast path for a friendly conflict response; the store's
// unique indexes remain the source of truth when registrations race.
func (s *AccountService) Register(ctx context.Context, username, email, password string, role domain.Role) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if role == "" {
		role = domain.RoleViewer
	}

	if _, err := s.accounts.FindByUsername(username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if _, err := s.accounts.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.StatusActive,
	}
	if err := s.accounts.Create(account); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	go s.sendWelcome(account.Email, account.Username)
	return account, nil
}

// sendWelcome runs detached from the registering request; failures are
// absorbed and logged.
func (s *AccountService) sendWelcome(email, username string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.notifier.SendWelcome(ctx, email, username); err != nil {
		s.logger.Warn("welcome notification failed", "email", email, "error", err)
	}
}

// AuthenticateCredentials verifies an email/password pair. Unknown email
// and wrong password return the identical error; a verified password
// against an inactive account is the one distinct failure. The hasher runs
// even when the email is unknown so response timing does not separate the
// two cases.
func (s *AccountService) AuthenticateCredentials(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accounts.FindByEmail(NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			_ = s.hasher.Verify(password, dummyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Verify(password, account.PasswordHash); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.Active() {
		return nil, ErrAccountInactive
	}

	now := time.Now().UTC()
	if err := s.accounts.TouchLastLogin(account.ID, now); err != nil {
		s.logger.Warn("last login touch failed", "account_id", account.ID, "error", err)
	} else {
		account.LastLoginAt = &now
	}
	return account, nil
}

// dummyHash is a bcrypt digest of an unguessable throwaway value, used to
// equalize work on the unknown-email path.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// ChangePassword verifies the current password before applying the new
// one, then revokes every session for the account so stolen refresh
// tokens die with the old password.
func (s *AccountService) ChangePassword(ctx context.Context, accountID uint, currentPassword, newPassword string) error {
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if err := s.hasher.Verify(currentPassword, account.PasswordHash); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return ErrInvalidCredentials
		}
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdateFields(accountID, map[string]any{"password_hash": hash}); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeByAccountID(accountID, "password_changed"); err != nil {
		return err
	}
	return nil
}

// UpdateProfile applies username/email changes after re-checking
// uniqueness against all other accounts.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID uint, username, email *string) (*domain.Account, error) {
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	fields := map[string]any{}
	if username != nil {
		u := strings.TrimSpace(*username)
		if u != account.Username {
			if other, err := s.accounts.FindByUsername(u); err == nil && other.ID != accountID {
				return nil, ErrUsernameTaken
			} else if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
				return nil, err
			}
			fields["username"] = u
			account.Username = u
		}
	}
	if email != nil {
		e := NormalizeEmail(*email)
		if e != account.Email {
			if other, err := s.accounts.FindByEmail(e); err == nil && other.ID != accountID {
				return nil, ErrEmailTaken
			} else if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
				return nil, err
			}
			fields["email"] = e
			fields["email_verified"] = false
			account.Email = e
			account.EmailVerified = false
		}
	}
	if len(fields) == 0 {
		return account, nil
	}
	if err := s.accounts.UpdateFields(accountID, fields); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id uint) (*domain.Account, error) {
	account, err := s.accounts.FindByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.List()
}

// SetRoleAndStatus is the admin mutation behind the role-gated route. A
// transition to inactive is the soft delete; it also revokes the
// account's sessions so deactivation takes effect before access tokens
// expire naturally.
func (s *AccountService) SetRoleAndStatus(ctx context.Context, accountID uint, role *domain.Role, status *domain.Status) (*domain.Account, error) {
	account, err := s.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	fields := map[string]any{}
	if role != nil && *role != account.Role {
		fields["role"] = *role
		account.Role = *role
	}
	if status != nil && *status != account.Status {
		fields["status"] = *status
		account.Status = *status
	}
	if len(fields) == 0 {
		return account, nil
	}
	if err := s.accounts.UpdateFields(accountID, fields); err != nil {
		return nil, err
	}
	if status != nil && *status == domain.StatusInactive {
		if _, err := s.sessions.RevokeByAccountID(accountID, "account_deactivated"); err != nil {
			return nil, err
		}
	}
	return account, nil
}

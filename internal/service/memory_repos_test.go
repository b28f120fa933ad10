package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/repository"
)

// In-memory repositories so service tests exercise real wiring without a
// database. Behavior mirrors the gorm implementations, including the
// conditional rotate and the revoke-once semantics.

type memAccountRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*domain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{rows: map[uint]*domain.Account{}}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func (r *memAccountRepo) FindByID(id uint) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, repository.ErrAccountNotFound
}

func (r *memAccountRepo) FindByEmail(email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *memAccountRepo) FindByUsername(username string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (r *memAccountRepo) Create(account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.Username == account.Username {
			return repository.ErrDuplicateUsername
		}
		if a.Email == account.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.nextID++
	account.ID = r.nextID
	account.CreatedAt = time.Now()
	r.rows[account.ID] = cloneAccount(account)
	return nil
}

func (r *memAccountRepo) Update(account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[account.ID]; !ok {
		return repository.ErrAccountNotFound
	}
	r.rows[account.ID] = cloneAccount(account)
	return nil
}

func (r *memAccountRepo) UpdateFields(id uint, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	for k, v := range fields {
		switch k {
		case "username":
			a.Username = v.(string)
		case "email":
			a.Email = v.(string)
		case "password_hash":
			a.PasswordHash = v.(string)
		case "email_verified":
			a.EmailVerified = v.(bool)
		case "role":
			a.Role = v.(domain.Role)
		case "status":
			a.Status = v.(domain.Status)
		default:
			return fmt.Errorf("unsupported field %q", k)
		}
	}
	return nil
}

func (r *memAccountRepo) TouchLastLogin(id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.LastLoginAt = &at
	return nil
}

func (r *memAccountRepo) List() ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Account, 0, len(r.rows))
	for _, a := range r.rows {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memSessionRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[string]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: map[string]*domain.Session{}}
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	return &c
}

func (r *memSessionRepo) Create(s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(s)
}

func (r *memSessionRepo) insertLocked(s *domain.Session) error {
	if _, exists := r.rows[s.RefreshTokenHash]; exists {
		return fmt.Errorf("duplicate refresh token hash")
	}
	r.nextID++
	s.ID = r.nextID
	s.CreatedAt = time.Now()
	r.rows[s.RefreshTokenHash] = cloneSession(s)
	return nil
}

func (r *memSessionRepo) FindByHash(hash string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[hash]; ok {
		return cloneSession(s), nil
	}
	return nil, repository.ErrSessionNotFound
}

func (r *memSessionRepo) ListActiveByAccountID(accountID uint) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []domain.Session
	for _, s := range r.rows {
		if s.AccountID == accountID && s.Usable(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memSessionRepo) Rotate(oldHash string, next *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[oldHash]
	if !ok || !s.Usable(time.Now()) {
		return nil, repository.ErrSessionNotFound
	}
	now := time.Now().UTC()
	reason := "rotated"
	s.RevokedAt = &now
	s.RevokedReason = &reason
	if err := r.insertLocked(next); err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

func (r *memSessionRepo) MarkReuseDetectedByHash(hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[hash]; ok && s.ReuseDetectedAt == nil {
		now := time.Now().UTC()
		s.ReuseDetectedAt = &now
	}
	return nil
}

func (r *memSessionRepo) RevokeByHash(hash, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[hash]; ok && s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
		s.RevokedReason = &reason
	}
	return nil
}

func (r *memSessionRepo) RevokeByIDForAccount(accountID, sessionID uint, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.ID == sessionID && s.AccountID == accountID && s.RevokedAt == nil {
			now := time.Now().UTC()
			s.RevokedAt = &now
			s.RevokedReason = &reason
			return true, nil
		}
	}
	return false, nil
}

func (r *memSessionRepo) RevokeByFamilyID(familyID, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.rows {
		if s.FamilyID == familyID && s.RevokedAt == nil {
			now := time.Now().UTC()
			s.RevokedAt = &now
			s.RevokedReason = &reason
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) RevokeByAccountID(accountID uint, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.rows {
		if s.AccountID == accountID && s.RevokedAt == nil {
			now := time.Now().UTC()
			s.RevokedAt = &now
			s.RevokedReason = &reason
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) PurgeExpired() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var n int64
	for hash, s := range r.rows {
		if !s.ExpiresAt.After(now) || s.RevokedAt != nil {
			delete(r.rows, hash)
			n++
		}
	}
	return n, nil
}

// expire rewinds a session's expiry so tests can cross the boundary
// without sleeping.
func (r *memSessionRepo) expire(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[hash]; ok {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

func (r *memSessionRepo) activeCount(accountID uint) int {
	sessions, _ := r.ListActiveByAccountID(accountID)
	return len(sessions)
}

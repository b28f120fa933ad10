package service

import (
	"context"
	"time"

	"loanhub-auth-service/internal/repository"
)

type SessionView struct {
	ID        uint       `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UserAgent string     `json:"user_agent"`
	IP        string     `json:"ip"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// SessionService exposes an account's own sessions for listing and
// selective revocation.
type SessionService struct {
	sessions repository.SessionRepository
}

func NewSessionService(sessions repository.SessionRepository) *SessionService {
	return &SessionService{sessions: sessions}
}

func (s *SessionService) ListActive(ctx context.Context, accountID uint) ([]SessionView, error) {
	sessions, err := s.sessions.ListActiveByAccountID(accountID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:        session.ID,
			CreatedAt: session.CreatedAt,
			ExpiresAt: session.ExpiresAt,
			UserAgent: session.UserAgent,
			IP:        session.IP,
			RevokedAt: session.RevokedAt,
		})
	}
	return views, nil
}

// Revoke ends one of the account's own sessions. Returns false when the
// session was already revoked or never belonged to the account.
func (s *SessionService) Revoke(ctx context.Context, accountID, sessionID uint) (bool, error) {
	return s.sessions.RevokeByIDForAccount(accountID, sessionID, "session_revoked")
}

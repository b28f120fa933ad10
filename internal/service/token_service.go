package service

import (
	"context"
	"errors"
	"time"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/repository"
	"loanhub-auth-service/internal/security"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ClientInfo is best-effort request metadata stored on the session row
// for the account's session listing.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// TokenService is the session manager: it mints access/refresh pairs,
// rotates refresh tokens and revokes sessions. Sessions live server-side
// keyed by a peppered hash of the refresh token; access tokens stay
// stateless until expiry.
type TokenService struct {
	jwtMgr     *security.JWTManager
	sessions   repository.SessionRepository
	pepper     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, sessions repository.SessionRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		jwtMgr:     jwtMgr,
		sessions:   sessions,
		pepper:     pepper,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue starts a new session family for the account and returns the token
// pair. The refresh token's jti doubles as the session's token id and, for
// a fresh login, its family id.
func (s *TokenService) Issue(ctx context.Context, account *domain.Account, client ClientInfo) (TokenPair, error) {
	refresh, claims, err := s.mintRefresh(account.ID)
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.jwtMgr.SignAccessToken(account, s.accessTTL, claims.ID)
	if err != nil {
		return TokenPair{}, err
	}
	session := &domain.Session{
		AccountID:        account.ID,
		RefreshTokenHash: security.HashRefreshToken(refresh, s.pepper),
		TokenID:          claims.ID,
		FamilyID:         claims.ID,
		UserAgent:        client.UserAgent,
		IP:               client.IP,
		ExpiresAt:        time.Now().Add(s.refreshTTL),
	}
	if err := s.sessions.Create(session); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateRefresh resolves a presented refresh token to its live session.
// Signature, expiry, unknown-hash, claim-mismatch, revoked and expired-row
// failures all collapse to ErrInvalidRefreshToken; presenting a token that
// was already rotated away additionally revokes its whole family and
// reports ErrRefreshReuseDetected for internal accounting.
func (s *TokenService) ValidateRefresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	hash := security.HashRefreshToken(refreshToken, s.pepper)
	session, err := s.sessions.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if session.AccountID != accountID || session.TokenID != claims.ID {
		return nil, ErrInvalidRefreshToken
	}
	if session.RevokedAt != nil {
		if reason := strValue(session.RevokedReason); reason == "rotated" || reason == "reuse_detected" {
			_ = s.sessions.MarkReuseDetectedByHash(hash)
			_, _ = s.sessions.RevokeByFamilyID(session.FamilyID, "reuse_detected")
			return nil, ErrRefreshReuseDetected
		}
		return nil, ErrInvalidRefreshToken
	}
	if !session.Usable(time.Now()) {
		return nil, ErrInvalidRefreshToken
	}
	return session, nil
}

// AccountFetcher loads the session's owning account during rotation.
type AccountFetcher func(ctx context.Context, id uint) (*domain.Account, error)

// Rotate exchanges a valid refresh token for a fresh pair. Revoking the
// old session and inserting the successor happen in one conditional store
// write, so concurrent rotations of the same token produce at most one
// successor. An account that disappeared or went inactive since issuance
// fails with the same opaque error as a bad token.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string, fetch AccountFetcher, client ClientInfo) (TokenPair, *domain.Account, error) {
	oldHash := security.HashRefreshToken(refreshToken, s.pepper)
	session, err := s.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}
	account, err := fetch(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TokenPair{}, nil, ErrInvalidRefreshToken
		}
		return TokenPair{}, nil, err
	}
	if !account.Active() {
		return TokenPair{}, nil, ErrInvalidRefreshToken
	}

	refresh, claims, err := s.mintRefresh(account.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	access, err := s.jwtMgr.SignAccessToken(account, s.accessTTL, claims.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	next := &domain.Session{
		AccountID:        account.ID,
		RefreshTokenHash: security.HashRefreshToken(refresh, s.pepper),
		TokenID:          claims.ID,
		FamilyID:         session.FamilyID,
		UserAgent:        client.UserAgent,
		IP:               client.IP,
		ExpiresAt:        time.Now().Add(s.refreshTTL),
	}
	if _, err := s.sessions.Rotate(oldHash, next); err != nil {
		// Lost the rotation race: someone else already consumed this
		// token between validation and the conditional write.
		if errors.Is(err, repository.ErrSessionNotFound) {
			return TokenPair{}, nil, ErrInvalidRefreshToken
		}
		return TokenPair{}, nil, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, account, nil
}

// RevokeByToken revokes the single session behind a presented refresh
// token. Idempotent; unknown or already-revoked tokens are a no-op.
func (s *TokenService) RevokeByToken(ctx context.Context, refreshToken, reason string) error {
	if refreshToken == "" {
		return nil
	}
	hash := security.HashRefreshToken(refreshToken, s.pepper)
	return s.sessions.RevokeByHash(hash, reason)
}

func (s *TokenService) RevokeAllForAccount(ctx context.Context, accountID uint, reason string) (int64, error) {
	return s.sessions.RevokeByAccountID(accountID, reason)
}

func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessions.PurgeExpired()
}

func (s *TokenService) mintRefresh(accountID uint) (string, *security.Claims, error) {
	refresh, err := s.jwtMgr.SignRefreshToken(accountID, s.refreshTTL)
	if err != nil {
		return "", nil, err
	}
	claims, err := s.jwtMgr.ParseRefreshToken(refresh)
	if err != nil {
		return "", nil, err
	}
	return refresh, claims, nil
}

func strValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

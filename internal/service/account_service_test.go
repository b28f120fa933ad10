package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/security"
)

type recordingNotifier struct {
	welcomed chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{welcomed: make(chan string, 8)}
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, email, username string) error {
	n.welcomed <- email
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAccountServiceForTest() (*AccountService, *memAccountRepo, *memSessionRepo, *recordingNotifier) {
	accounts := newMemAccountRepo()
	sessions := newMemSessionRepo()
	notifier := newRecordingNotifier()
	svc := NewAccountService(accounts, sessions, security.NewPasswordHasher(bcrypt.MinCost), notifier, discardLogger())
	return svc, accounts, sessions, notifier
}

func TestRegisterDefaultsToViewer(t *testing.T) {
	svc, _, _, notifier := newAccountServiceForTest()
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Role != domain.RoleViewer {
		t.Fatalf("expected viewer role by default, got %s", account.Role)
	}
	if account.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", account.Status)
	}
	if account.PasswordHash == "Secret123" || account.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}

	select {
	case email := <-notifier.welcomed:
		if email != "alice@x.com" {
			t.Fatalf("welcome sent to %q", email)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("welcome notification never sent")
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	svc, _, _, _ := newAccountServiceForTest()
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice", "  Alice@X.Com ", "Secret123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Email != "alice@x.com" {
		t.Fatalf("expected lowercased email, got %q", account.Email)
	}

	// Lookup is case-insensitive because both sides normalize.
	if _, err := svc.AuthenticateCredentials(ctx, "ALICE@x.COM", "Secret123"); err != nil {
		t.Fatalf("authenticate with differently cased email: %v", err)
	}
}

func TestRegisterConflicts(t *testing.T) {
	svc, _, _, _ := newAccountServiceForTest()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "other@x.com", "Secret123", ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "alice@x.com", "Secret123", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticateCredentials(t *testing.T) {
	svc, _, _, _ := newAccountServiceForTest()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	account, err := svc.AuthenticateCredentials(ctx, "alice@x.com", "Secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if account.LastLoginAt == nil {
		t.Fatal("successful login must record last_login_at")
	}

	// Wrong password and unknown email are indistinguishable.
	_, errWrongPassword := svc.AuthenticateCredentials(ctx, "alice@x.com", "nope")
	_, errUnknownEmail := svc.AuthenticateCredentials(ctx, "ghost@x.com", "Secret123")
	if !errors.Is(errWrongPassword, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPassword)
	}
	if !errors.Is(errUnknownEmail, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", errUnknownEmail)
	}
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	svc, accounts, _, _ := newAccountServiceForTest()
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := accounts.UpdateFields(account.ID, map[string]any{"status": domain.StatusInactive}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	// Correct password against an inactive account is the one
	// distinguishable failure.
	if _, err := svc.AuthenticateCredentials(ctx, "alice@x.com", "Secret123"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	// Wrong password still reports invalid credentials, not inactive.
	if _, err := svc.AuthenticateCredentials(ctx, "alice@x.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, sessions, _ := newAccountServiceForTest()
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sessions.Create(&domain.Session{
		AccountID:        account.ID,
		RefreshTokenHash: "hash-1",
		TokenID:          "jti-1",
		FamilyID:         "fam-1",
		ExpiresAt:        time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	if err := svc.ChangePassword(ctx, account.ID, "wrong", "NewSecret456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, account.ID, "Secret123", "NewSecret456"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := svc.AuthenticateCredentials(ctx, "alice@x.com", "Secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := svc.AuthenticateCredentials(ctx, "alice@x.com", "NewSecret456"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
	if n := sessions.activeCount(account.ID); n != 0 {
		t.Fatalf("password change must revoke all sessions, %d still active", n)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _, _ := newAccountServiceForTest()
	ctx := context.Background()

	alice, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", "")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "bob@x.com", "Secret123", ""); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	email := "Alice+New@X.com"
	updated, err := svc.UpdateProfile(ctx, alice.ID, nil, &email)
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Email != "alice+new@x.com" {
		t.Fatalf("expected normalized email, got %q", updated.Email)
	}
	if updated.EmailVerified {
		t.Fatal("email change must reset verification")
	}

	taken := "bob@x.com"
	if _, err := svc.UpdateProfile(ctx, alice.ID, nil, &taken); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	takenName := "bob"
	if _, err := svc.UpdateProfile(ctx, alice.ID, &takenName, nil); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	// Submitting your own current values is a no-op, not a conflict.
	sameName := "alice"
	if _, err := svc.UpdateProfile(ctx, alice.ID, &sameName, nil); err != nil {
		t.Fatalf("same username must be accepted: %v", err)
	}
}

func TestSetRoleAndStatus(t *testing.T) {
	svc, _, sessions, _ := newAccountServiceForTest()
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice", "alice@x.com", "Secret123", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := sessions.Create(&domain.Session{
		AccountID:        account.ID,
		RefreshTokenHash: "hash-1",
		TokenID:          "jti-1",
		FamilyID:         "fam-1",
		ExpiresAt:        time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	role := domain.RoleTreasurer
	status := domain.StatusInactive
	updated, err := svc.SetRoleAndStatus(ctx, account.ID, &role, &status)
	if err != nil {
		t.Fatalf("set role and status: %v", err)
	}
	if updated.Role != domain.RoleTreasurer || updated.Status != domain.StatusInactive {
		t.Fatalf("mutation not applied: %+v", updated)
	}
	if n := sessions.activeCount(account.ID); n != 0 {
		t.Fatalf("deactivation must revoke sessions, %d still active", n)
	}

	if _, err := svc.SetRoleAndStatus(ctx, 999, &role, nil); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

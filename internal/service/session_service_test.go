package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pmassist/authd/internal/models"
)

type sessionFixture struct {
	svc      *SessionService
	sessions *memSessionStore
	users    *memUserStore
	hasher   *SecretHasher
	now      time.Time
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	hasher, err := NewSecretHasher(testSecret)
	if err != nil {
		t.Fatal(err)
	}

	f := &sessionFixture{
		sessions: newMemSessionStore(),
		users:    newMemUserStore(),
		hasher:   hasher,
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	f.svc = NewSessionService(f.sessions, f.users, hasher, testLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

// seedSession stores a session for the user and returns its plaintext token.
func (f *sessionFixture) seedSession(t *testing.T, email string, ttl time.Duration) string {
	t.Helper()

	user, err := f.users.Upsert(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}

	token, err := NewSessionToken()
	if err != nil {
		t.Fatal(err)
	}

	f.sessions.sessions[f.hasher.HashToken(token)] = &models.Session{
		ID:        "sess-" + email,
		UserID:    user.ID,
		Email:     email,
		TokenHash: f.hasher.HashToken(token),
		CreatedAt: f.now,
		ExpiresAt: f.now.Add(ttl),
	}

	return token
}

func TestResolveActiveSession(t *testing.T) {
	f := newSessionFixture(t)
	token := f.seedSession(t, "a@b.com", time.Hour)

	session, user, err := f.svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if session == nil || user == nil {
		t.Fatal("expected session and user")
	}
	if user.Email != "a@b.com" {
		t.Fatalf("resolved wrong user: %q", user.Email)
	}
	if session.UserID != user.ID {
		t.Fatal("session owner mismatch")
	}
}

func TestResolveEmptyCredential(t *testing.T) {
	f := newSessionFixture(t)

	session, user, err := f.svc.Resolve(context.Background(), "")
	if err != nil || session != nil || user != nil {
		t.Fatalf("empty credential must resolve to nil, got %v %v %v", session, user, err)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	f := newSessionFixture(t)
	f.seedSession(t, "a@b.com", time.Hour)

	session, user, err := f.svc.Resolve(context.Background(), "unrelated-token")
	if err != nil || session != nil || user != nil {
		t.Fatalf("unknown token must resolve to nil, got %v %v %v", session, user, err)
	}
}

func TestResolveExpiredSessionDeletesLazily(t *testing.T) {
	f := newSessionFixture(t)
	token := f.seedSession(t, "a@b.com", time.Hour)

	f.now = f.now.Add(time.Hour) // exactly at expiry: expired

	session, user, err := f.svc.Resolve(context.Background(), token)
	if err != nil || session != nil || user != nil {
		t.Fatalf("expired session must resolve to nil, got %v %v %v", session, user, err)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatal("expired session must be deleted on read")
	}
}

func TestResolveExpiredCleanupFailureStillReturnsNil(t *testing.T) {
	f := newSessionFixture(t)
	token := f.seedSession(t, "a@b.com", time.Minute)
	f.now = f.now.Add(2 * time.Minute)
	f.sessions.deleteErr = errors.New("redis hiccup")

	session, user, err := f.svc.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("cleanup failure must not surface: %v", err)
	}
	if session != nil || user != nil {
		t.Fatal("expired session must still resolve to nil")
	}
}

func TestResolveDoesNotSlideExpiry(t *testing.T) {
	f := newSessionFixture(t)
	token := f.seedSession(t, "a@b.com", time.Hour)

	before, _, err := f.svc.Resolve(context.Background(), token)
	if err != nil || before == nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	f.now = f.now.Add(30 * time.Minute)
	after, _, err := f.svc.Resolve(context.Background(), token)
	if err != nil || after == nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !after.ExpiresAt.Equal(before.ExpiresAt) {
		t.Fatal("validation must never extend the session expiry")
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	f := newSessionFixture(t)
	token := f.seedSession(t, "a@b.com", time.Hour)

	if err := f.svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	session, user, err := f.svc.Resolve(context.Background(), token)
	if err != nil || session != nil || user != nil {
		t.Fatal("token must be unusable after logout")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	token := f.seedSession(t, "a@b.com", time.Hour)

	if err := f.svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := f.svc.Logout(context.Background(), token); err != nil {
		t.Fatalf("second logout must be a no-op: %v", err)
	}
	if err := f.svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("logout without credential must succeed: %v", err)
	}
	if err := f.svc.Logout(context.Background(), "never-issued"); err != nil {
		t.Fatalf("logout of unknown credential must succeed: %v", err)
	}
}

func TestNewSessionTokenEntropy(t *testing.T) {
	first, err := NewSessionToken()
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewSessionToken()
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Fatal("tokens must be unique")
	}
	// 32 bytes base64url without padding is 43 characters.
	if len(first) != 43 {
		t.Fatalf("expected 256-bit token, got %d characters", len(first))
	}
}

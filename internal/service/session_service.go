package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pmassist/authd/internal/models"
	"github.com/sirupsen/logrus"
)

type SessionService struct {
	sessions SessionStore
	users    UserStore
	hasher   *SecretHasher
	logger   *logrus.Logger
	now      func() time.Time
}

func NewSessionService(
	sessions SessionStore,
	users UserStore,
	hasher *SecretHasher,
	logger *logrus.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		users:    users,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve maps a bearer credential to its session and owning user. A nil,
// nil return means unauthenticated; it is not an error. Expired sessions
// are deleted on the way out, best effort: cleanup failure never changes
// the answer, and two racing deletes are both fine because delete is
// idempotent. Resolving never extends the expiry.
func (s *SessionService) Resolve(ctx context.Context, credential string) (*models.Session, *models.User, error) {
	if credential == "" {
		return nil, nil, nil
	}

	tokenHash := s.hasher.HashToken(credential)

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, nil
	}

	if !session.ExpiresAt.After(s.now()) {
		if err := s.sessions.Delete(ctx, tokenHash); err != nil {
			s.logger.WithError(err).Warn("Failed to clean up expired session")
		}
		return nil, nil, nil
	}

	user, err := s.users.GetByEmail(ctx, session.Email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, nil
	}

	return session, user, nil
}

// Logout deletes whatever session the credential maps to. Logging out an
// invalid or absent credential succeeds as a no-op.
func (s *SessionService) Logout(ctx context.Context, credential string) error {
	if credential == "" {
		return nil
	}

	return s.sessions.Delete(ctx, s.hasher.HashToken(credential))
}

// NewSessionToken returns an opaque 256-bit bearer credential. The server
// stores only its digest.
func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

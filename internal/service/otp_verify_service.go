package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pmassist/authd/internal/config"
	"github.com/pmassist/authd/internal/models"
	"github.com/pmassist/authd/internal/repository"
	"github.com/sirupsen/logrus"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

type OTPVerificationService struct {
	otps     OTPStore
	users    UserStore
	sessions SessionStore
	hasher   *SecretHasher
	cfg      *config.AuthConfig
	logger   *logrus.Logger
	now      func() time.Time
}

func NewOTPVerificationService(
	otps OTPStore,
	users UserStore,
	sessions SessionStore,
	hasher *SecretHasher,
	cfg *config.AuthConfig,
	logger *logrus.Logger,
) *OTPVerificationService {
	return &OTPVerificationService{
		otps:     otps,
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

type VerifyResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

// Verify checks the submitted code against the newest outstanding request
// for the email and, on success, consumes the code, upserts the user and
// mints a session. The consume happens strictly before the session write:
// a crash in between loses the code, never yields two sessions from one.
func (s *OTPVerificationService) Verify(ctx context.Context, email, code string) (*VerifyResult, error) {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, errInvalidInput("invalid email address")
	}
	if !codePattern.MatchString(code) {
		return nil, errInvalidInput("code must be 6 digits")
	}

	now := s.now()

	otp, err := s.otps.LatestEligible(ctx, email, now)
	if err != nil {
		return nil, fmt.Errorf("failed to look up code request: %w", err)
	}
	if otp == nil {
		return nil, errInvalidCode()
	}

	// Rejected before the counter moves, so Attempts never climbs past
	// the ceiling no matter how often the client keeps submitting.
	if otp.Attempts >= s.cfg.MaxAttempts {
		return nil, errTooManyAttempts(s.cfg.ResendCooldown)
	}

	if s.hasher.HashOTP(email, code) != otp.CodeHash {
		if err := s.otps.IncrementAttempts(ctx, otp); err != nil {
			s.logger.WithError(err).WithField("email", email).Error("Failed to record failed attempt")
		}
		return nil, errInvalidCode()
	}

	if err := s.otps.MarkUsed(ctx, otp, now); err != nil {
		if errors.Is(err, repository.ErrCodeConsumed) {
			// A concurrent verify won the conditional write.
			return nil, errInvalidCode()
		}
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}

	user, err := s.users.Upsert(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	token, err := NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Email:     user.Email,
		TokenHash: s.hasher.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"email":   user.Email,
		"user_id": user.ID,
	}).Info("Code verified, session issued")

	return &VerifyResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	}, nil
}

package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmassist/authd/internal/config"
	"github.com/pmassist/authd/internal/models"
	"github.com/sirupsen/logrus"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail applies the canonical form used everywhere email is a
// join key. Issuance and verification must agree on it or codes never
// match.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type OTPRequestService struct {
	otps   OTPStore
	sender CodeSender
	hasher *SecretHasher
	cfg    *config.AuthConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewOTPRequestService(
	otps OTPStore,
	sender CodeSender,
	hasher *SecretHasher,
	cfg *config.AuthConfig,
	logger *logrus.Logger,
) *OTPRequestService {
	return &OTPRequestService{
		otps:   otps,
		sender: sender,
		hasher: hasher,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

type CodeRequestResult struct {
	ExpiresIn time.Duration
}

// RequestCode issues a fresh code for the email, enforcing the resend
// cooldown and the rolling hourly quota. Both limits are best effort
// under concurrency: two racing requests may both pass the check, at the
// cost of one extra email.
func (s *OTPRequestService) RequestCode(ctx context.Context, email, clientIP string) (*CodeRequestResult, error) {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, errInvalidInput("invalid email address")
	}

	now := s.now()

	last, err := s.otps.Latest(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check previous requests: %w", err)
	}

	if last != nil {
		elapsed := now.Sub(last.CreatedAt)
		if elapsed < s.cfg.ResendCooldown {
			return nil, errRateLimited(ceilSeconds(s.cfg.ResendCooldown - elapsed))
		}
	}

	count, err := s.otps.CountSince(ctx, email, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent requests: %w", err)
	}

	if count >= s.cfg.HourlyLimit {
		return nil, errRateLimited(time.Hour)
	}

	code, err := generateCode(s.cfg.OTPLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	otp := &models.OTPRequest{
		ID:        uuid.New().String(),
		Email:     email,
		CodeHash:  s.hasher.HashOTP(email, code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.OTPExpiry),
		RequestIP: clientIP,
	}

	if err := s.otps.Insert(ctx, otp); err != nil {
		return nil, fmt.Errorf("failed to store code request: %w", err)
	}

	// The row stays persisted on delivery failure, so a retry is still
	// held to the cooldown. A flaky provider must not open a resend storm.
	if err := s.sender.Send(ctx, email, code); err != nil {
		s.logger.WithError(err).WithField("email", email).Error("Code delivery failed")
		return nil, errDeliveryFailed(err)
	}

	s.logger.WithField("email", email).Info("Sign-in code issued")

	return &CodeRequestResult{ExpiresIn: s.cfg.OTPExpiry}, nil
}

// generateCode draws a uniformly random zero-padded numeric code over the
// full digit range, 000000 through 999999 for the default length.
func generateCode(length int) (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < length; i++ {
		bound.Mul(bound, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

func ceilSeconds(d time.Duration) time.Duration {
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}

package service

import (
	"context"
	"time"

	"github.com/pmassist/authd/internal/models"
)

// Store contracts consumed by the auth services. The repository package
// provides the DynamoDB and Redis implementations; tests substitute
// in-memory fakes.

type OTPStore interface {
	Insert(ctx context.Context, otp *models.OTPRequest) error
	// Latest returns the newest request regardless of state, or nil.
	Latest(ctx context.Context, email string) (*models.OTPRequest, error)
	// LatestEligible returns the newest unused, unexpired request, or nil.
	LatestEligible(ctx context.Context, email string, now time.Time) (*models.OTPRequest, error)
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
	IncrementAttempts(ctx context.Context, otp *models.OTPRequest) error
	// MarkUsed must be a single conditional write: it fails with
	// repository.ErrCodeConsumed when the row is already used.
	MarkUsed(ctx context.Context, otp *models.OTPRequest, usedAt time.Time) error
}

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Upsert(ctx context.Context, email string) (*models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Delete(ctx context.Context, tokenHash string) error
}

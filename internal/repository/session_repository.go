package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmassist/authd/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SessionRepository stores sessions in Redis keyed by token digest. The
// key TTL tracks the session expiry, but readers still compare ExpiresAt
// against their own clock; the TTL is a backstop, not the source of truth.
type SessionRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewSessionRepository(client *redis.Client, logger *logrus.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
		logger: logger,
	}
}

func sessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session expiry is not in the future")
	}

	dataJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(session.TokenHash), dataJSON, ttl).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store session in Redis")
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// GetByTokenHash returns nil without error when no session matches.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	dataJSON, err := r.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to get session from Redis")
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(dataJSON), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Delete is idempotent: removing an absent session is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if err := r.client.Del(ctx, sessionKey(tokenHash)).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to delete session from Redis")
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

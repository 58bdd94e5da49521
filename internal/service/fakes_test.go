package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pmassist/authd/internal/models"
	"github.com/pmassist/authd/internal/repository"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memOTPStore struct {
	rows []*models.OTPRequest

	insertErr    error
	markUsedErr  error
	incrementErr error
	countErr     error
	latestErr    error
}

func (s *memOTPStore) Insert(ctx context.Context, otp *models.OTPRequest) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rows = append(s.rows, otp)
	return nil
}

func (s *memOTPStore) Latest(ctx context.Context, email string) (*models.OTPRequest, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Email == email {
			return s.rows[i], nil
		}
	}
	return nil, nil
}

func (s *memOTPStore) LatestEligible(ctx context.Context, email string, now time.Time) (*models.OTPRequest, error) {
	for i := len(s.rows) - 1; i >= 0; i-- {
		row := s.rows[i]
		if row.Email == email && !row.IsUsed() && !row.IsExpired(now) {
			return row, nil
		}
	}
	return nil, nil
}

func (s *memOTPStore) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	count := 0
	for _, row := range s.rows {
		if row.Email == email && row.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *memOTPStore) IncrementAttempts(ctx context.Context, otp *models.OTPRequest) error {
	if s.incrementErr != nil {
		return s.incrementErr
	}
	for _, row := range s.rows {
		if row.ID == otp.ID && !row.IsUsed() {
			row.Attempts++
		}
	}
	return nil
}

func (s *memOTPStore) MarkUsed(ctx context.Context, otp *models.OTPRequest, usedAt time.Time) error {
	if s.markUsedErr != nil {
		return s.markUsedErr
	}
	for _, row := range s.rows {
		if row.ID == otp.ID {
			if row.IsUsed() {
				return repository.ErrCodeConsumed
			}
			t := usedAt
			row.UsedAt = &t
			return nil
		}
	}
	return repository.ErrCodeConsumed
}

type memUserStore struct {
	users map[string]*models.User
	seq   int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*models.User{}}
}

func (s *memUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users[email], nil
}

func (s *memUserStore) Upsert(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	s.seq++
	user := &models.User{
		ID:        fmt.Sprintf("user-%d", s.seq),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	s.users[email] = user
	return user, nil
}

type memSessionStore struct {
	sessions map[string]*models.Session

	createErr error
	deleteErr error
	onCreate  func(*models.Session)
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*models.Session{}}
}

func (s *memSessionStore) Create(ctx context.Context, session *models.Session) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.onCreate != nil {
		s.onCreate(session)
	}
	s.sessions[session.TokenHash] = session
	return nil
}

func (s *memSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	return s.sessions[tokenHash], nil
}

func (s *memSessionStore) Delete(ctx context.Context, tokenHash string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.sessions, tokenHash)
	return nil
}

type captureSender struct {
	emails []string
	codes  []string
	err    error
}

func (s *captureSender) Send(ctx context.Context, email, code string) error {
	if s.err != nil {
		return s.err
	}
	s.emails = append(s.emails, email)
	s.codes = append(s.codes, code)
	return nil
}

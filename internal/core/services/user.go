package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sanuda/internal/core/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles registration and login. Passwords are stored as
// bcrypt hashes; a successful login is exchanged for a JWT by the handler.
type UserService struct {
	log  *slog.Logger
	repo domain.UserRepository
}

func NewUserService(log *slog.Logger, repo domain.UserRepository) *UserService {
	return &UserService{log: log, repo: repo}
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	if username == "" || email == "" || len(password) < 8 {
		return nil, errors.New("username, email and a password of 8+ chars are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		s.log.ErrorContext(ctx, "user - register - create failed", "username", username, "err", err)
		return nil, err
	}
	s.log.InfoContext(ctx, "user - register - success", "user_id", u.ID, "username", username)
	return u, nil
}

func (s *UserService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		s.log.ErrorContext(ctx, "user - login - lookup failed", "username", username, "err", err)
		return nil, domain.ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.log.WarnContext(ctx, "user - login - bad credentials", "username", username)
		return nil, domain.ErrAuthenticationFailed
	}
	return u, nil
}

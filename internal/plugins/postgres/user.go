package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sanuda/internal/core/domain"
)

type UserRepo struct {
	db *sql.DB
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, is_online, last_seen_at, created_at
		FROM users
		WHERE id = $1`
	return r.scanUser(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, username, email, password_hash, is_online, last_seen_at, created_at
		FROM users
		WHERE username = $1`
	return r.scanUser(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, username))
}

func (r *UserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, is_online, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW(), NOW())
		ON CONFLICT DO NOTHING`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserExists
	}
	return nil
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, userID string, online bool, lastSeen time.Time) error {
	query := `
		UPDATE users
		SET is_online = $2, last_seen_at = $3
		WHERE id = $1`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, userID, online, lastSeen)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var lastSeen sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsOnline, &lastSeen, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		u.LastSeenAt = lastSeen.Time
	}
	return &u, nil
}

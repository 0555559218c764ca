package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trubo/mail-gateway/internal/core"
)

type PostgresStore struct{ DB *pgxpool.Pool }

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore { return &PostgresStore{DB: pool} }

func (s *PostgresStore) UpsertCode(ctx context.Context, c Code) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO auth_codes
			(email, purpose, code_hash, expires_at, verified_at, attempts,
			 last_requested_at, pending_name, pending_password_hash)
		VALUES ($1, $2, $3, $4, NULL, 0, $5, $6, $7)
		ON CONFLICT (email, purpose) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			verified_at = NULL,
			attempts = 0,
			last_requested_at = EXCLUDED.last_requested_at,
			pending_name = EXCLUDED.pending_name,
			pending_password_hash = EXCLUDED.pending_password_hash
	`, c.Email, c.Purpose, c.CodeHash, c.ExpiresAt, c.LastRequestedAt,
		nullable(c.PendingName), nullable(c.PendingPasswordHash))
	return err
}

func (s *PostgresStore) GetCode(ctx context.Context, email string, p Purpose) (*Code, error) {
	c := Code{Email: email, Purpose: p}
	var pendingName, pendingHash *string
	err := s.DB.QueryRow(ctx, `
		SELECT code_hash, expires_at, verified_at, attempts, last_requested_at,
		       pending_name, pending_password_hash
		FROM auth_codes WHERE email = $1 AND purpose = $2
	`, email, p).Scan(&c.CodeHash, &c.ExpiresAt, &c.VerifiedAt, &c.Attempts,
		&c.LastRequestedAt, &pendingName, &pendingHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if pendingName != nil {
		c.PendingName = *pendingName
	}
	if pendingHash != nil {
		c.PendingPasswordHash = *pendingHash
	}
	return &c, nil
}

func (s *PostgresStore) SetCodeAttempts(ctx context.Context, email string, p Purpose, attempts int) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE auth_codes SET attempts = $3 WHERE email = $1 AND purpose = $2`,
		email, p, attempts)
	return err
}

func (s *PostgresStore) MarkCodeVerified(ctx context.Context, email string, p Purpose, attempts int, at time.Time) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE auth_codes SET verified_at = $4, attempts = $3 WHERE email = $1 AND purpose = $2`,
		email, p, attempts, at)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO users (email, name, password_hash, is_admin, verified_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
	`, u.Email, u.Name, u.PasswordHash, u.IsAdmin, u.VerifiedAt)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, email string) (*User, error) {
	u := User{}
	err := s.DB.QueryRow(ctx, `
		SELECT email, COALESCE(name,''), COALESCE(password_hash,''), is_admin, verified_at, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.VerifiedAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) SetPassword(ctx context.Context, email, passwordHash string) error {
	_, err := s.DB.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE email = $1`, email, passwordHash)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

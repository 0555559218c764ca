// Package auth manages one-time verification codes and user credentials:
// issuance, hashing, expiry, attempt capping, and the register/login/forgot
// flows built on them.
package auth

import (
	"context"
	"strings"
	"time"
)

type Purpose string

const (
	PurposeRegister Purpose = "register"
	PurposeLogin    Purpose = "login"
	PurposeForgot   Purpose = "forgot"
)

// maxAttempts is the ceiling on failed verifications per code. The counter
// saturates; it never decrements and never exceeds this value.
const maxAttempts = 10

// Code is one pending verification code. At most one live Code exists per
// (email, purpose); issuance overwrites in place.
type Code struct {
	Email               string
	Purpose             Purpose
	CodeHash            string
	ExpiresAt           time.Time
	VerifiedAt          *time.Time
	Attempts            int
	LastRequestedAt     time.Time
	PendingName         string
	PendingPasswordHash string
}

type User struct {
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
	VerifiedAt   *time.Time
	CreatedAt    time.Time
}

// Store is the durable credential store: codes keyed by (email, purpose),
// users keyed by email.
type Store interface {
	// UpsertCode atomically replaces the code record for its key.
	UpsertCode(ctx context.Context, c Code) error
	// GetCode returns core.ErrNotFound when no record exists for the key.
	GetCode(ctx context.Context, email string, p Purpose) (*Code, error)
	SetCodeAttempts(ctx context.Context, email string, p Purpose, attempts int) error
	MarkCodeVerified(ctx context.Context, email string, p Purpose, attempts int, at time.Time) error

	// CreateUser is a no-op when the user already exists, guarding against
	// double materialization on repeated verify calls.
	CreateUser(ctx context.Context, u User) error
	// GetUser returns core.ErrNotFound for unknown emails.
	GetUser(ctx context.Context, email string) (*User, error)
	SetPassword(ctx context.Context, email, passwordHash string) error
}

// NormalizeEmail lower-cases and trims; all store keys use this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

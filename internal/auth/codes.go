package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/metrics"
)

// ErrCodeNotFound reports a verify against a key that has no outstanding
// code. It is distinct from core.ErrNotFound so the HTTP layer can treat it
// as a bad request rather than a missing resource.
var ErrCodeNotFound = errors.New("not_found")

// Pending is the purpose-specific data stashed with a register code and
// handed back to the caller on a successful verify. The caller materializes
// the user from it; Verify itself never touches the user table.
type Pending struct {
	Name         string
	PasswordHash string
}

// Codes issues and verifies one-time codes. Codes are stored hashed only and
// expire TTL after issuance; expiry is checked at read time, there is no
// background eviction.
type Codes struct {
	Store Store
	TTL   time.Duration

	now func() time.Time // test hook
}

func NewCodes(store Store, ttl time.Duration) *Codes {
	return &Codes{Store: store, TTL: ttl, now: time.Now}
}

// Issue overwrites any outstanding code for (email, purpose) with a fresh
// 6-digit one and returns the plaintext for delivery. The plaintext is never
// persisted.
func (c *Codes) Issue(ctx context.Context, email string, p Purpose, pending Pending) (string, error) {
	email = NormalizeEmail(email)
	code, err := generateCode()
	if err != nil {
		return "", err
	}
	now := c.now()
	if err := c.Store.UpsertCode(ctx, Code{
		Email:               email,
		Purpose:             p,
		CodeHash:            HashCode(code),
		ExpiresAt:           now.Add(c.TTL),
		Attempts:            0,
		LastRequestedAt:     now,
		PendingName:         pending.Name,
		PendingPasswordHash: pending.PasswordHash,
	}); err != nil {
		return "", err
	}
	metrics.CodesIssued.WithLabelValues(string(p)).Inc()
	return code, nil
}

// Verify checks a supplied code. It is idempotent after a successful verify:
// until a new issuance, any further call for the key succeeds regardless of
// the supplied string.
func (c *Codes) Verify(ctx context.Context, email string, p Purpose, supplied string) (Pending, error) {
	email = NormalizeEmail(email)
	rec, err := c.Store.GetCode(ctx, email, p)
	if errors.Is(err, core.ErrNotFound) {
		metrics.CodesVerified.WithLabelValues(string(p), "not_found").Inc()
		return Pending{}, ErrCodeNotFound
	}
	if err != nil {
		return Pending{}, err
	}
	pending := Pending{Name: rec.PendingName, PasswordHash: rec.PendingPasswordHash}
	if rec.VerifiedAt != nil {
		metrics.CodesVerified.WithLabelValues(string(p), "ok").Inc()
		return pending, nil
	}
	if rec.ExpiresAt.Before(c.now()) {
		metrics.CodesVerified.WithLabelValues(string(p), "expired").Inc()
		return Pending{}, core.ErrExpired
	}

	attempts := rec.Attempts + 1
	if attempts > maxAttempts {
		attempts = maxAttempts
	}
	if !codeMatches(rec.CodeHash, supplied) {
		// Attempt accounting under races is allowed to be approximate but
		// must stay monotonic and capped.
		if err := c.Store.SetCodeAttempts(ctx, email, p, attempts); err != nil {
			return Pending{}, err
		}
		metrics.CodesVerified.WithLabelValues(string(p), "invalid").Inc()
		return Pending{}, core.ErrInvalidCode
	}
	if err := c.Store.MarkCodeVerified(ctx, email, p, attempts, c.now()); err != nil {
		return Pending{}, err
	}
	metrics.CodesVerified.WithLabelValues(string(p), "ok").Inc()
	return pending, nil
}

// HashCode is the one-way form codes are stored in.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func codeMatches(storedHash, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(HashCode(supplied))) == 1
}

func generateCode() (string, error) {
	// 6 digits, uniform over 100000..999999.
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

package auth

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trubo/mail-gateway/internal/core"
)

func newTestCodes(t *testing.T) (*Codes, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewCodes(store, 10*time.Minute), store
}

func TestIssue_SixDigitsAndHashedAtRest(t *testing.T) {
	codes, store := newTestCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "User@Example.com", PurposeLogin, Pending{})
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[1-9]\d{5}$`), code)

	rec, err := store.GetCode(ctx, "user@example.com", PurposeLogin)
	require.NoError(t, err)
	require.Equal(t, HashCode(code), rec.CodeHash)
	require.NotContains(t, rec.CodeHash, code)
}

func TestIssue_OverwritesOutstandingCode(t *testing.T) {
	codes, _ := newTestCodes(t)
	ctx := context.Background()

	first, err := codes.Issue(ctx, "a@b.com", PurposeLogin, Pending{})
	require.NoError(t, err)
	second, err := codes.Issue(ctx, "a@b.com", PurposeLogin, Pending{})
	require.NoError(t, err)

	if first != second {
		_, err = codes.Verify(ctx, "a@b.com", PurposeLogin, first)
		require.ErrorIs(t, err, core.ErrInvalidCode)
	}
	_, err = codes.Verify(ctx, "a@b.com", PurposeLogin, second)
	require.NoError(t, err)
}

func TestVerify_IdempotentAfterSuccess(t *testing.T) {
	codes, _ := newTestCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "a@b.com", PurposeRegister, Pending{Name: "Ada", PasswordHash: "h"})
	require.NoError(t, err)

	p, err := codes.Verify(ctx, "a@b.com", PurposeRegister, code)
	require.NoError(t, err)
	require.Equal(t, "Ada", p.Name)

	// Any string verifies until the next issuance.
	p, err = codes.Verify(ctx, "a@b.com", PurposeRegister, "000000")
	require.NoError(t, err)
	require.Equal(t, "h", p.PasswordHash)
}

func TestVerify_AttemptsSaturateAtCap(t *testing.T) {
	codes, store := newTestCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "a@b.com", PurposeLogin, Pending{})
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		_, err = codes.Verify(ctx, "a@b.com", PurposeLogin, "wrong!")
		require.ErrorIs(t, err, core.ErrInvalidCode)
	}
	rec, err := store.GetCode(ctx, "a@b.com", PurposeLogin)
	require.NoError(t, err)
	require.Equal(t, maxAttempts, rec.Attempts)

	// The cap does not lock the code out; the right one still verifies.
	_, err = codes.Verify(ctx, "a@b.com", PurposeLogin, code)
	require.NoError(t, err)
}

func TestVerify_Expired(t *testing.T) {
	codes, _ := newTestCodes(t)
	ctx := context.Background()

	code, err := codes.Issue(ctx, "a@b.com", PurposeForgot, Pending{})
	require.NoError(t, err)

	codes.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = codes.Verify(ctx, "a@b.com", PurposeForgot, code)
	require.ErrorIs(t, err, core.ErrExpired)
}

func TestVerify_UnknownKey(t *testing.T) {
	codes, _ := newTestCodes(t)
	_, err := codes.Verify(context.Background(), "nobody@b.com", PurposeLogin, "123456")
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestVerify_PurposesAreIndependent(t *testing.T) {
	codes, _ := newTestCodes(t)
	ctx := context.Background()

	loginCode, err := codes.Issue(ctx, "a@b.com", PurposeLogin, Pending{})
	require.NoError(t, err)
	_, err = codes.Issue(ctx, "a@b.com", PurposeForgot, Pending{})
	require.NoError(t, err)

	_, err = codes.Verify(ctx, "a@b.com", PurposeLogin, loginCode)
	require.NoError(t, err)
}

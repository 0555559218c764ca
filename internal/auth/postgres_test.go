package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trubo/mail-gateway/internal/auth"
	"github.com/trubo/mail-gateway/internal/core"
	"github.com/trubo/mail-gateway/internal/db"
)

func newPGStore(t *testing.T) *auth.PostgresStore {
	if testing.Short() {
		t.Skip("container test")
	}
	return &auth.PostgresStore{DB: db.StartTestPostgres(t)}
}

func TestPostgresStore_CodeUpsertResetsState(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := auth.Code{
		Email: "a@b.com", Purpose: auth.PurposeRegister,
		CodeHash: auth.HashCode("111111"), ExpiresAt: now.Add(10 * time.Minute),
		LastRequestedAt: now, PendingName: "Ada", PendingPasswordHash: "hash1",
	}
	require.NoError(t, s.UpsertCode(ctx, first))
	require.NoError(t, s.SetCodeAttempts(ctx, "a@b.com", auth.PurposeRegister, 4))
	require.NoError(t, s.MarkCodeVerified(ctx, "a@b.com", auth.PurposeRegister, 5, now))

	// Re-issue: verified flag and attempts must reset, pending data replaced.
	second := first
	second.CodeHash = auth.HashCode("222222")
	second.PendingPasswordHash = "hash2"
	require.NoError(t, s.UpsertCode(ctx, second))

	rec, err := s.GetCode(ctx, "a@b.com", auth.PurposeRegister)
	require.NoError(t, err)
	require.Nil(t, rec.VerifiedAt)
	require.Zero(t, rec.Attempts)
	require.Equal(t, auth.HashCode("222222"), rec.CodeHash)
	require.Equal(t, "hash2", rec.PendingPasswordHash)
}

func TestPostgresStore_GetCodeNotFound(t *testing.T) {
	s := newPGStore(t)
	_, err := s.GetCode(context.Background(), "missing@b.com", auth.PurposeLogin)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPostgresStore_UserLifecycle(t *testing.T) {
	s := newPGStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateUser(ctx, auth.User{
		Email: "ada@example.com", Name: "Ada", PasswordHash: "h1", VerifiedAt: &now,
	}))
	// Creation is first-writer-wins.
	require.NoError(t, s.CreateUser(ctx, auth.User{Email: "ada@example.com", Name: "Impostor", PasswordHash: "h2"}))

	u, err := s.GetUser(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, "Ada", u.Name)
	require.Equal(t, "h1", u.PasswordHash)
	require.NotNil(t, u.VerifiedAt)
	require.False(t, u.IsAdmin)

	require.NoError(t, s.SetPassword(ctx, "ada@example.com", "h3"))
	u, err = s.GetUser(ctx, "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, "h3", u.PasswordHash)

	_, err = s.GetUser(ctx, "nobody@example.com")
	require.ErrorIs(t, err, core.ErrNotFound)
}

package vault

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, audit AuditSink) *Store {
	t.Helper()
	return New(NewMemoryBackend(), []byte("test-vault-key"), audit)
}

func TestPutRevealRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	require.NoError(t, s.Put(ctx, "[EMAIL_a1b2c3d4]", "cfo@acme.com"))

	grant, err := s.NewGrant("analyst-1", time.Minute)
	require.NoError(t, err)

	got, err := s.Reveal(ctx, "[EMAIL_a1b2c3d4]", grant)
	require.NoError(t, err)
	require.Equal(t, "cfo@acme.com", got)
}

func TestPutIdempotentForSamePair(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	require.NoError(t, s.Put(ctx, "[EMAIL_a1b2c3d4]", "cfo@acme.com"))
	require.NoError(t, s.Put(ctx, "[EMAIL_a1b2c3d4]", "cfo@acme.com"))
	require.ErrorIs(t, s.Put(ctx, "[EMAIL_a1b2c3d4]", "ceo@acme.com"), ErrTokenExists)
}

func TestRevealRequiresValidGrant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	require.NoError(t, s.Put(ctx, "[EMAIL_a1b2c3d4]", "cfo@acme.com"))

	_, err := s.Reveal(ctx, "[EMAIL_a1b2c3d4]", "not-a-jwt")
	require.ErrorIs(t, err, ErrGrantInvalid)

	expired, err := s.NewGrant("analyst-1", -time.Minute)
	require.NoError(t, err)
	_, err = s.Reveal(ctx, "[EMAIL_a1b2c3d4]", expired)
	require.ErrorIs(t, err, ErrGrantInvalid)
}

func TestRevealAudited(t *testing.T) {
	ctx := context.Background()
	var actions []string
	s := newTestStore(t, func(_ context.Context, action, actor, token string) {
		actions = append(actions, action+":"+actor)
	})
	require.NoError(t, s.Put(ctx, "[EMAIL_a1b2c3d4]", "cfo@acme.com"))

	grant, err := s.NewGrant("analyst-1", time.Minute)
	require.NoError(t, err)
	_, err = s.Reveal(ctx, "[EMAIL_a1b2c3d4]", grant)
	require.NoError(t, err)

	_, err = s.Reveal(ctx, "[EMAIL_a1b2c3d4]", "garbage")
	require.Error(t, err)

	require.Equal(t, []string{"vault.reveal:analyst-1", "vault.reveal.denied:"}, actions)
}

func TestUnknownTokenNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)
	grant, err := s.NewGrant("analyst-1", time.Minute)
	require.NoError(t, err)

	_, err = s.Reveal(ctx, "[EMAIL_ffffffff]", grant)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestSQLiteBackendPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	backend, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	s := New(backend, []byte("test-vault-key"), nil)
	require.NoError(t, s.Put(ctx, "[COMPANY_NAME_deadbeef]", "Acme Inc"))
	require.NoError(t, backend.Close())

	reopened, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer reopened.Close()
	s2 := New(reopened, []byte("test-vault-key"), nil)

	grant, err := s2.NewGrant("auditor", time.Minute)
	require.NoError(t, err)
	got, err := s2.Reveal(ctx, "[COMPANY_NAME_deadbeef]", grant)
	require.NoError(t, err)
	require.Equal(t, "Acme Inc", got)
}

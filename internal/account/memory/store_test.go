package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bluemap-render/internal/account"
)

func seeded() *Store {
	return NewStore(
		account.Account{ID: 1, Username: "Alice", Token: "abc123", Verified: true, Access: map[string][]int64{"file": {2}}},
		account.Account{ID: 2, Username: "bob", Token: "def456", Services: []string{"blue"}},
	)
}

func TestStoreLookups(t *testing.T) {
	t.Parallel()

	s := seeded()
	ctx := context.Background()

	a, err := s.ByToken(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, int64(1), a.ID)
	require.True(t, a.Grants(account.AccessFile, 2))
	require.False(t, a.Grants(account.AccessFile, 3))

	b, err := s.ByUsername(ctx, "BOB")
	require.NoError(t, err)
	require.Equal(t, int64(2), b.ID)
	require.True(t, b.HasService(account.ServiceBlue))

	_, err = s.ByToken(ctx, "nope")
	require.ErrorIs(t, err, account.ErrNotFound)
	_, err = s.ByToken(ctx, "")
	require.ErrorIs(t, err, account.ErrNotFound)
	_, err = s.ByUsername(ctx, "carol")
	require.ErrorIs(t, err, account.ErrNotFound)
}

func TestStoreEnableService(t *testing.T) {
	t.Parallel()

	s := seeded()
	ctx := context.Background()

	require.NoError(t, s.EnableService(ctx, 1, account.ServiceBlue))
	require.NoError(t, s.EnableService(ctx, 1, account.ServiceBlue))
	a, err := s.ByToken(ctx, "abc123")
	require.NoError(t, err)
	require.Equal(t, []string{"blue"}, a.Services)

	require.ErrorIs(t, s.EnableService(ctx, 99, account.ServiceBlue), account.ErrNotFound)
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	s := seeded()
	a, err := s.ByUsername(context.Background(), "alice")
	require.NoError(t, err)
	a.Access["file"][0] = 42
	a.Services = append(a.Services, "tex")

	again, err := s.ByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, []int64{2}, again.Access["file"])
	require.Empty(t, again.Services)
}

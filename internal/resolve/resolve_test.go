package resolve

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store/sqlitestore"
)

func newTestResolver(t *testing.T) (*Resolver, *sqlitestore.Store) {
	t.Helper()
	s, err := sqlitestore.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(t.Context()))
	return New(slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestResolveIsStable(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := t.Context()

	id, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "V Kumar"})
	require.NoError(t, err)
	require.True(t, created)

	for _, name := range []string{"V Kumar", "  v   kumar ", "V KUMAR"} {
		again, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: name})
		require.NoError(t, err)
		require.False(t, created, name)
		require.Equal(t, id, again, name)
	}

	other, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "V. Kumar"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, id, other)
}

func TestResolveAdoptsProfileRef(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := t.Context()

	id, _, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "M Starc"})
	require.NoError(t, err)

	again, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "M Starc", ProfileRef: "6001"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, again)

	p, err := s.GetPlayer(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "6001", p.ProfileRef)

	// The profile ref now wins even when the display name changes.
	renamed, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "Mitchell Starc", ProfileRef: "6001"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, id, renamed)
}

func TestResolveSeparatesNamesakes(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := t.Context()

	first, _, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "Mohammed Shami", ProfileRef: "100"})
	require.NoError(t, err)
	second, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "Mohammed Shami", ProfileRef: "200"})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first, second)

	// Without a profile ref the name resolves to the lowest id.
	plain, created, err := r.Resolve(ctx, s, provider.PlayerRef{Name: "Mohammed Shami"})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, plain)
}

func TestResolveRejectsEmptyName(t *testing.T) {
	r, s := newTestResolver(t)
	_, _, err := r.Resolve(t.Context(), s, provider.PlayerRef{Name: "   "})
	require.Error(t, err)
}

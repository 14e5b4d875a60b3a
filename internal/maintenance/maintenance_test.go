package maintenance

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store/sqlitestore"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDuplicateCandidates(t *testing.T) {
	players := []provider.Player{
		{ID: 1, Name: "Mohammed Shami", NameKey: "mohammed shami"},
		{ID: 2, Name: "Mohammad Shami", NameKey: "mohammad shami", ProfileRef: "100"},
		{ID: 3, Name: "Steve Smith", NameKey: "steve smith", ProfileRef: "200"},
		{ID: 4, Name: "Steven Smith", NameKey: "steven smith", ProfileRef: "300"},
		{ID: 5, Name: "Jasprit Bumrah", NameKey: "jasprit bumrah"},
	}

	got := DuplicateCandidates(players, 0.92)
	require.Len(t, got, 1, "distinct profile refs are never paired")
	require.Equal(t, int64(1), got[0].A.ID)
	require.Equal(t, int64(2), got[0].B.ID)
	require.GreaterOrEqual(t, got[0].Score, 0.92)
	require.Less(t, got[0].Score, 1.0)

	require.Empty(t, DuplicateCandidates(players[:1], 0.5))
}

func TestDuplicateCandidatesOrdersByScore(t *testing.T) {
	players := []provider.Player{
		{ID: 1, NameKey: "virat kohli"},
		{ID: 2, NameKey: "virat kohlii"},
		{ID: 3, NameKey: "virat kohli"},
	}
	got := DuplicateCandidates(players, 0)
	require.Len(t, got, 3)
	require.InDelta(t, 1.0, got[0].Score, 1e-9)
	require.Equal(t, int64(1), got[0].A.ID)
	require.Equal(t, int64(3), got[0].B.ID)
}

func TestResetStage(t *testing.T) {
	ctx := t.Context()
	s, err := sqlitestore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	for _, id := range []string{"1", "2"} {
		require.NoError(t, s.UpsertMatch(ctx, provider.Match{ID: id, Format: provider.FormatODI}))
		require.NoError(t, s.MarkStageComplete(ctx, provider.StageAwards, id))
	}

	n, err := ResetStage(ctx, s, "awards", []string{"1"}, discard())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	pending, err := s.PendingMatches(ctx, provider.StageAwards, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "1", pending[0].ID)

	_, err = ResetStage(ctx, s, "bogus", nil, discard())
	require.Error(t, err)
}

func TestEveryRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runs := 0
	err := Every(ctx, 5*time.Millisecond, "test", func(context.Context) error {
		runs++
		if runs == 2 {
			return errors.New("source down")
		}
		if runs == 3 {
			cancel()
		}
		return nil
	}, discard())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, runs)
}

func TestEveryWithoutIntervalRunsOnce(t *testing.T) {
	runs := 0
	err := Every(t.Context(), 0, "once", func(context.Context) error {
		runs++
		return errors.New("source down")
	}, discard())
	require.EqualError(t, err, "source down")
	require.Equal(t, 1, runs)
}

package sqlitestore

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(t.Context()))
	return s
}

func seedMatch(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.UpsertMatch(t.Context(), provider.Match{
		ID: id, Slug: "ind-vs-aus", Team1: "India", Team2: "Australia", Format: provider.FormatT20I,
	}))
}

func seedPlayer(t *testing.T, s *Store, name, ref string) int64 {
	t.Helper()
	id, err := s.InsertPlayer(t.Context(), provider.Player{
		Name: name, NameKey: provider.NormalizeName(name), ProfileRef: ref,
	})
	require.NoError(t, err)
	return id
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(t.Context()))
	require.NoError(t, s.Ping(t.Context()))
}

func TestUpsertMatchIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.UpsertMatch(ctx, provider.Match{
		ID: "1", Slug: "ind-vs-aus-1st-t20i", Team1: "India", Team2: "Australia",
		Name: "India vs Australia, 1st T20I", Format: provider.FormatT20I,
		Winner: "India won by 6 wkts", Venue: "Wankhede",
		Officials: provider.Officials{Umpire1: "Nitin Menon"},
	}))

	// A later, less informed sighting must not erase anything.
	require.NoError(t, s.UpsertMatch(ctx, provider.Match{
		ID: "1", Format: provider.FormatUnknown,
		Officials: provider.Officials{MatchReferee: "Javagal Srinath"},
	}))

	got, err := s.GetMatch(ctx, "1")
	require.NoError(t, err)
	want := provider.Match{
		ID: "1", Slug: "ind-vs-aus-1st-t20i", Team1: "India", Team2: "Australia",
		Name: "India vs Australia, 1st T20I", Format: provider.FormatT20I,
		Winner: "India won by 6 wkts", Venue: "Wankhede",
		Officials: provider.Officials{Umpire1: "Nitin Menon", MatchReferee: "Javagal Srinath"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetMatch mismatch (-want +got):\n%s", diff)
	}

	// A known value replaces another known value.
	require.NoError(t, s.UpsertMatch(ctx, provider.Match{ID: "1", Format: provider.FormatODI, Venue: "Eden Gardens"}))
	got, err = s.GetMatch(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, provider.FormatODI, got.Format)
	require.Equal(t, "Eden Gardens", got.Venue)
	require.Equal(t, "India won by 6 wkts", got.Winner)
}

func TestGetMatchNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMatch(t.Context(), "missing")
	require.True(t, errors.Is(err, store.ErrNotFound))

	ok, err := s.MatchExists(t.Context(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlayers(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	first := seedPlayer(t, s, "V Kumar", "")
	second := seedPlayer(t, s, "V  KUMAR", "9001")

	p, err := s.PlayerByNameKey(ctx, "v kumar")
	require.NoError(t, err)
	require.Equal(t, first, p.ID, "lowest id wins")

	p, err = s.PlayerByProfileRef(ctx, "9001")
	require.NoError(t, err)
	require.Equal(t, second, p.ID)

	_, err = s.PlayerByProfileRef(ctx, "404")
	require.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.AttachProfileRef(ctx, first, "5001"))
	require.NoError(t, s.AttachProfileRef(ctx, first, "5002"))
	p, err = s.GetPlayer(ctx, first)
	require.NoError(t, err)
	require.Equal(t, "5001", p.ProfileRef, "existing ref is kept")

	require.NoError(t, s.UpdatePlayerRole(ctx, first, "Batter"))
	require.NoError(t, s.UpdatePlayerRole(ctx, first, ""))
	require.NoError(t, s.SetBiography(ctx, first, provider.Biography{BirthPlace: "Delhi", Height: "5 ft 9 in"}))
	require.NoError(t, s.SetBiography(ctx, first, provider.Biography{BattingStyle: "Right Handed Bat"}))

	p, err = s.GetPlayer(ctx, first)
	require.NoError(t, err)
	require.Equal(t, "Batter", p.Role)
	require.True(t, p.HasBio)
	require.Equal(t, provider.Biography{
		BirthPlace: "Delhi", Height: "5 ft 9 in", BattingStyle: "Right Handed Bat",
	}, p.Bio)

	players, err := s.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	require.False(t, players[1].HasBio)
}

func TestDetailUpsertsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMatch(t, s, "1")
	pid := seedPlayer(t, s, "V Kumar", "5001")

	line := provider.BatterLine{
		Player: provider.PlayerRef{Name: "V Kumar", ProfileRef: "5001"}, Team: "India", Innings: 1, Position: 1,
		Dismissal: provider.Dismissal{Kind: provider.DismissalCaught, Raw: "c Smith b Starc"},
		Runs:      45, Balls: 30, Fours: 5, Sixes: 1, StrikeRate: 150,
	}
	require.NoError(t, s.UpsertBatter(ctx, "1", pid, line))
	require.NoError(t, s.UpsertBatter(ctx, "1", pid, line))

	bowl := provider.BowlerLine{
		Player: provider.PlayerRef{Name: "V Kumar"}, Team: "India", Against: "Australia", Innings: 2, Position: 3,
		Overs: provider.Overs{Balls: 24}, Runs: 30, Wickets: 1, Economy: 7.5,
	}
	require.NoError(t, s.UpsertBowler(ctx, "1", pid, bowl))

	require.NoError(t, s.UpsertAward(ctx, "1", pid, "Player of the Match"))
	require.NoError(t, s.UpsertAward(ctx, "1", pid, "Player of the Match"))
	require.NoError(t, s.UpsertAward(ctx, "1", pid, "Most Sixes"))

	require.NoError(t, s.UpsertSquad(ctx, "1", pid, provider.SquadEntry{Team: "India", Role: "Batter"}))
	require.NoError(t, s.UpsertSquad(ctx, "1", pid, provider.SquadEntry{Team: "India"}))

	sc, err := s.Scorecard(ctx, "1")
	require.NoError(t, err)
	require.Len(t, sc.Batting, 1)
	require.Equal(t, pid, sc.Batting[0].PlayerID)
	require.Equal(t, 45, sc.Batting[0].Runs)
	require.Equal(t, "5001", sc.Batting[0].Player.ProfileRef)
	require.Equal(t, provider.DismissalCaught, sc.Batting[0].Dismissal.Kind)
	require.Len(t, sc.Bowling, 1)
	require.Equal(t, 24, sc.Bowling[0].Overs.Balls)
	require.Equal(t, "Australia", sc.Bowling[0].Against)

	awards, err := s.Awards(ctx, "1")
	require.NoError(t, err)
	require.Len(t, awards, 2)

	squad, err := s.Squad(ctx, "1")
	require.NoError(t, err)
	require.Len(t, squad, 1)
	require.Equal(t, "Batter", squad[0].Role, "blank role keeps the stored one")

	// A corrected scorecard overwrites.
	line.Runs = 47
	require.NoError(t, s.UpsertBatter(ctx, "1", pid, line))
	sc, err = s.Scorecard(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, 47, sc.Batting[0].Runs)
}

func TestDetailUpsertsRejectMissingParents(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMatch(t, s, "1")
	pid := seedPlayer(t, s, "V Kumar", "")

	err := s.UpsertAward(ctx, "999", pid, "Player of the Match")
	var ie *store.IntegrityError
	require.True(t, errors.As(err, &ie))
	require.Equal(t, "match_awards", ie.Table)
	require.Equal(t, "999", ie.MatchID)

	err = s.UpsertSquad(ctx, "1", pid+100, provider.SquadEntry{Team: "India"})
	require.True(t, store.IsIntegrity(err))
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMatch(t, s, "1")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		id, err := tx.InsertPlayer(ctx, provider.Player{Name: "Ghost", NameKey: "ghost"})
		require.NoError(t, err)
		require.NoError(t, tx.UpsertAward(ctx, "1", id, "Player of the Match"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.PlayerByNameKey(ctx, "ghost")
	require.True(t, errors.Is(err, store.ErrNotFound))
	awards, err := s.Awards(ctx, "1")
	require.NoError(t, err)
	require.Empty(t, awards)
}

func TestStageRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	for _, id := range []string{"1", "2", "3"} {
		seedMatch(t, s, id)
	}

	pendingIDs := func(max int) []string {
		t.Helper()
		ms, err := s.PendingMatches(ctx, provider.StageScorecard, max)
		require.NoError(t, err)
		var ids []string
		for _, m := range ms {
			ids = append(ids, m.ID)
		}
		return ids
	}

	require.Equal(t, []string{"1", "2", "3"}, pendingIDs(0))

	require.NoError(t, s.MarkStageComplete(ctx, provider.StageScorecard, "1"))
	require.NoError(t, s.RecordStageFailure(ctx, provider.StageScorecard, "2", "fetch failed"))
	require.NoError(t, s.RecordStageFailure(ctx, provider.StageScorecard, "2", "fetch failed again"))

	require.Equal(t, []string{"2", "3"}, pendingIDs(0))
	require.Equal(t, []string{"2", "3"}, pendingIDs(3))
	require.Equal(t, []string{"3"}, pendingIDs(2))

	// Stages are independent.
	other, err := s.PendingMatches(ctx, provider.StageAwards, 0)
	require.NoError(t, err)
	require.Len(t, other, 3)

	runs, err := s.StageRunsFor(ctx, "2")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, store.StatusFailed, runs[0].Status)
	require.Equal(t, 2, runs[0].Attempts)
	require.Equal(t, "fetch failed again", runs[0].LastError)
	require.Nil(t, runs[0].CompletedAt)

	// Failure after completion keeps the completion.
	require.NoError(t, s.RecordStageFailure(ctx, provider.StageScorecard, "1", "late failure"))
	require.Equal(t, []string{"2", "3"}, pendingIDs(0))

	status, err := s.StageStatus(ctx, 2)
	require.NoError(t, err)
	require.Len(t, status, len(provider.Stages))
	require.Equal(t, store.StageStatus{
		Stage: provider.StageScorecard, Registered: 3, Completed: 1, Failing: 1, Exhausted: 1, Pending: 1,
	}, status[0])
	require.Equal(t, 3, status[1].Pending)

	n, err := s.ResetStage(ctx, provider.StageScorecard, []string{"1"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, []string{"1", "3"}, pendingIDs(2))

	n, err = s.ResetStage(ctx, provider.StageScorecard, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, []string{"1", "2", "3"}, pendingIDs(2))
}

func TestListMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMatch(t, s, "1")
	seedMatch(t, s, "2")
	require.NoError(t, s.UpsertMatch(ctx, provider.Match{ID: "3", Format: provider.FormatTest}))

	all, err := s.ListMatches(ctx, store.MatchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	tests, err := s.ListMatches(ctx, store.MatchFilter{Format: provider.FormatTest})
	require.NoError(t, err)
	require.Len(t, tests, 1)
	require.Equal(t, "3", tests[0].ID)

	page, err := s.ListMatches(ctx, store.MatchFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
}

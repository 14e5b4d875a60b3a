package registry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/provider/cricbuzz"
	"github.com/albapepper/cricket-data/internal/provider/providertest"
	"github.com/albapepper/cricket-data/internal/store"
	"github.com/albapepper/cricket-data/internal/store/sqlitestore"
)

const listingPage = `<html><body>
<a href="/live-cricket-scores/87654/ind-vs-aus-1st-t20i-australia-tour-of-india-2024">IND v AUS</a>
<a href="/live-cricket-scores/87654/ind-vs-aus-1st-t20i-australia-tour-of-india-2024">Scorecard</a>
<a href="/live-cricket-scores/90001/mi-vs-csk-12th-match-indian-premier-league-2024">MI v CSK</a>
<a href="/live-cricket-scores/87700/eng-vs-wi-2nd-test-west-indies-tour-of-england-2024">ENG v WI</a>
<a href="/live-cricket-scores/87800/sl-vs-ban-3rd-odi-bangladesh-tour-of-sri-lanka-2024">SL v BAN</a>
</body></html>`

const livePage87654 = `<html><body>
<h1>India vs Australia, 1st T20I - Live Cricket Score</h1>
<a href="/venues/31/wankhede">Wankhede Stadium, Mumbai</a>
<div id="sticky-mcomplete"><div><div>India won by 6 wkts</div></div></div>
</body></html>`

const factsPage87654 = `<html><body>
<div class="cb-mtch-info-itm"><div>Umpires:</div><div>Nitin Menon, Paul Reiffel</div></div>
<div class="cb-mtch-info-itm"><div>Referee:</div><div>Javagal Srinath</div></div>
</body></html>`

const livePage87700 = `<html><body>
<h1>England vs West Indies, 2nd Test - Live Cricket Score</h1>
<div id="sticky-mcomplete"><div><div>Day 3: Stumps</div></div></div>
</body></html>`

type fixture struct {
	store   *sqlitestore.Store
	fetcher *providertest.Fetcher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := sqlitestore.Open(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(t.Context()))

	f := providertest.NewFetcher()
	f.Set(provider.PageRecentMatches, "", listingPage)
	f.Set(provider.PageLiveScore, "87654", livePage87654)
	f.Set(provider.PageMatchFacts, "87654", factsPage87654)
	f.Set(provider.PageLiveScore, "87700", livePage87700)
	// 87800 has no live page and is skipped.
	return fixture{store: s, fetcher: f}
}

func (fx fixture) registry(cfg Config) *Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(fx.store, fx.fetcher, cricbuzz.Extractor{}, cfg, logger)
}

func TestDiscover(t *testing.T) {
	fx := newFixture(t)
	r := fx.registry(Config{})

	got, err := r.Discover(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, fx.fetcher.Calls(provider.PageLiveScore, "87654"), "duplicate links fetched once")
	require.Zero(t, fx.fetcher.Calls(provider.PageLiveScore, "90001"), "franchise matches ignored")

	m, err := fx.store.GetMatch(t.Context(), "87654")
	require.NoError(t, err)
	require.Equal(t, provider.Match{
		ID:     "87654",
		Slug:   "ind-vs-aus-1st-t20i-australia-tour-of-india-2024",
		Team1:  "India",
		Team2:  "Australia",
		Name:   "India vs Australia, 1st T20I",
		Format: provider.FormatT20I,
		Winner: "India won by 6 wkts",
		Venue:  "Wankhede Stadium, Mumbai",
		Officials: provider.Officials{
			Umpire1: "Nitin Menon", Umpire2: "Paul Reiffel", MatchReferee: "Javagal Srinath",
		},
	}, m)

	test, err := fx.store.GetMatch(t.Context(), "87700")
	require.NoError(t, err)
	require.Equal(t, provider.FormatTest, test.Format)
	require.Equal(t, "West Indies", test.Team2)
	require.Empty(t, test.Winner, "banner without a team name is not a result")

	ok, err := fx.store.MatchExists(t.Context(), "87800")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiscoverIsIdempotentAndMonotonic(t *testing.T) {
	fx := newFixture(t)
	r := fx.registry(Config{})

	_, err := r.Discover(t.Context())
	require.NoError(t, err)

	// The source later drops the result banner and venue.
	fx.fetcher.Set(provider.PageLiveScore, "87654", `<html><body></body></html>`)
	_, err = r.Discover(t.Context())
	require.NoError(t, err)

	all, err := fx.store.ListMatches(t.Context(), store.MatchFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	m, err := fx.store.GetMatch(t.Context(), "87654")
	require.NoError(t, err)
	require.Equal(t, provider.FormatT20I, m.Format)
	require.Equal(t, "India won by 6 wkts", m.Winner)
	require.Equal(t, "Wankhede Stadium, Mumbai", m.Venue)
}

func TestDiscoverCompletedOnly(t *testing.T) {
	fx := newFixture(t)
	r := fx.registry(Config{CompletedOnly: true})

	got, err := r.Discover(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "87654", got[0].ID)
}

func TestDiscoverCapsMatches(t *testing.T) {
	fx := newFixture(t)
	r := fx.registry(Config{MaxMatches: 1})

	got, err := r.Discover(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Zero(t, fx.fetcher.Calls(provider.PageLiveScore, "87700"))
}

func TestDiscoverRetriesListing(t *testing.T) {
	fx := newFixture(t)
	fx.fetcher.FailWith(provider.PageRecentMatches, "",
		providertest.Transient(provider.PageRecentMatches, ""))
	r := fx.registry(Config{Retry: provider.RetryPolicy{MaxRetries: 1}})

	got, err := r.Discover(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestDiscoverFailsWithoutListing(t *testing.T) {
	fx := newFixture(t)
	fx.fetcher.FailWith(provider.PageRecentMatches, "",
		providertest.Permanent(provider.PageRecentMatches, ""))
	r := fx.registry(Config{Retry: provider.RetryPolicy{MaxRetries: 3}})

	_, err := r.Discover(t.Context())
	require.Error(t, err)
	require.Equal(t, 1, fx.fetcher.Calls(provider.PageRecentMatches, ""))
}

func TestRegisterPendingLookup(t *testing.T) {
	fx := newFixture(t)
	r := fx.registry(Config{MaxFailures: 2})
	ctx := t.Context()

	for _, id := range []string{"1", "2", "3"} {
		got, err := r.Register(ctx, provider.Match{ID: id})
		require.NoError(t, err)
		require.Equal(t, id, got)
	}
	_, err := r.Register(ctx, provider.Match{})
	require.Error(t, err)

	require.NoError(t, fx.store.MarkStageComplete(ctx, provider.StageAwards, "1"))
	require.NoError(t, fx.store.RecordStageFailure(ctx, provider.StageAwards, "2", "x"))
	require.NoError(t, fx.store.RecordStageFailure(ctx, provider.StageAwards, "2", "x"))

	ids, err := r.Pending(ctx, provider.StageAwards)
	require.NoError(t, err)
	require.Equal(t, []string{"3"}, ids)

	ids, err = r.Pending(ctx, provider.StageSquad)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, ids)

	found, unknown, err := r.Lookup(ctx, []string{"2", "404", "1"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, "2", found[0].ID)
	require.Equal(t, []string{"404"}, unknown)
}

func TestValidResult(t *testing.T) {
	require.True(t, validResult("India won by 6 wkts", "India", "Australia"))
	require.True(t, validResult("Match tied (India won the Super Over)", "Unknown", "Unknown"))
	require.True(t, validResult("No result", "England", "West Indies"))
	require.False(t, validResult("Day 3: Stumps", "England", "West Indies"))
	require.False(t, validResult("Unknown won", "Unknown", "Unknown"))
}

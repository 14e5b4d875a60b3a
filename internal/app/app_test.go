package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/config"
	"github.com/albapepper/cricket-data/internal/pipeline"
	"github.com/albapepper/cricket-data/internal/provider"
)

// cricbuzzServer serves the extractor fixtures under the source's URL layout.
func cricbuzzServer(t *testing.T) *httptest.Server {
	t.Helper()
	page := func(name string) http.HandlerFunc {
		body, err := os.ReadFile(filepath.Join("..", "provider", "cricbuzz", "testdata", name))
		require.NoError(t, err)
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write(body)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/cricket-match/live-scores/recent-matches", page("recent.html"))
	mux.Handle("/live-cricket-scores/87654/", page("live.html"))
	mux.Handle("/cricket-match-facts/87654/", page("facts.html"))
	mux.Handle("/live-cricket-scorecard/87654/", page("scorecard.html"))
	mux.Handle("/cricket-match-squads/87654/squads", page("squads.html"))
	mux.Handle("/profiles/5001/player", page("profile.html"))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestEndToEnd(t *testing.T) {
	ctx := t.Context()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := cricbuzzServer(t)

	cfg := &config.Config{
		DBDriver:            config.DriverSQLite,
		SQLitePath:          filepath.Join(t.TempDir(), "cricbuzz.db"),
		SourceBaseURL:       srv.URL,
		UserAgent:           "cricket-data-test",
		DiscoveryMaxMatches: 10,
		StageMaxFailures:    3,
		FetchBiographies:    true,
	}
	st, err := OpenStore(ctx, cfg, logger)
	require.NoError(t, err)
	defer st.Close()

	in := NewIngest(st, NewFetcher(cfg, logger), cfg, logger)

	matches, err := in.Registry.Discover(ctx)
	require.NoError(t, err)
	require.Len(t, matches, 1, "87700 has no live page")
	require.Equal(t, "87654", matches[0].ID)

	results, err := in.Runner.RunAll(ctx, pipeline.Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		require.Equal(t, 1, res.Completed, res.Summary())
	}
	require.Equal(t, 1, results[2].BiosFetched)

	squad, err := st.Squad(ctx, "87654")
	require.NoError(t, err)
	require.Len(t, squad, 5)

	status, err := st.StageStatus(ctx, cfg.StageMaxFailures)
	require.NoError(t, err)
	for _, s := range status {
		require.Equal(t, 1, s.Completed, s.Stage)
		require.Zero(t, s.Pending, s.Stage)
	}

	// A second pass finds nothing to do.
	results, err = in.Runner.RunAll(ctx, pipeline.Options{})
	require.NoError(t, err)
	for _, res := range results {
		require.Zero(t, res.MatchesFound, res.Stage)
	}

	pending, err := in.Registry.Pending(ctx, provider.StageSquad)
	require.NoError(t, err)
	require.Empty(t, pending)
}

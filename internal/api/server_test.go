package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/api/handler"
	"github.com/albapepper/cricket-data/internal/config"
	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
	"github.com/albapepper/cricket-data/internal/store/sqlitestore"
)

func newTestRouter(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	ctx := t.Context()
	s, err := sqlitestore.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.UpsertMatch(ctx, provider.Match{
		ID: "87654", Team1: "India", Team2: "Australia", Format: provider.FormatT20I, Winner: "India won by 6 wkts",
	}))
	require.NoError(t, s.UpsertMatch(ctx, provider.Match{ID: "87700", Team1: "England", Team2: "West Indies", Format: provider.FormatTest}))

	id, err := s.InsertPlayer(ctx, provider.Player{Name: "V Kumar", NameKey: "v kumar", ProfileRef: "5001"})
	require.NoError(t, err)
	require.NoError(t, s.UpsertBatter(ctx, "87654", id, provider.BatterLine{
		Team: "India", Innings: 1, Position: 1, Runs: 45, Balls: 30, Fours: 5, Sixes: 1, StrikeRate: 150,
		Dismissal: provider.ParseDismissal("c Smith b Starc"),
	}))
	require.NoError(t, s.UpsertAward(ctx, "87654", id, "Player of the Match"))
	require.NoError(t, s.MarkStageComplete(ctx, provider.StageScorecard, "87654"))

	cfg.StageMaxFailures = 3
	return NewRouter(s, &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func get(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	rec := get(t, h, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Process-Time"))

	var body map[string]string
	rec = get(t, h, "/health/db", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "connected", body["database"])
}

func TestDocs(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	rec := get(t, h, "/docs/doc.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Cricket Data API")
	require.Contains(t, rec.Body.String(), "/api/v1/stages/{stage}/pending")
}

func TestListMatches(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	var body struct {
		Matches []provider.Match `json:"matches"`
		Limit   int              `json:"limit"`
	}
	rec := get(t, h, "/api/v1/matches", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Matches, 2)
	require.Equal(t, 50, body.Limit)

	rec = get(t, h, "/api/v1/matches?format=test", &body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body.Matches, 1)
	require.Equal(t, "87700", body.Matches[0].ID)

	rec = get(t, h, "/api/v1/matches?format=hundred", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/v1/matches?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMatch(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	var m handler.MatchDetail
	rec := get(t, h, "/api/v1/matches/87654", &m)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "India won by 6 wkts", m.Winner)
	require.Len(t, m.Stages, 1)
	require.Equal(t, store.StatusCompleted, m.Stages[0].Status)

	rec = get(t, h, "/api/v1/matches/404", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = get(t, h, "/api/v1/matches/404/scorecard", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchDetails(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	var sc store.Scorecard
	rec := get(t, h, "/api/v1/matches/87654/scorecard", &sc)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sc.Batting, 1)
	require.Equal(t, "V Kumar", sc.Batting[0].Player.Name)
	require.Equal(t, 45, sc.Batting[0].Runs)
	require.Empty(t, sc.Bowling)

	var awards struct {
		Awards []store.AwardRow `json:"awards"`
	}
	rec = get(t, h, "/api/v1/matches/87654/awards", &awards)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, awards.Awards, 1)
	require.Equal(t, "Player of the Match", awards.Awards[0].AwardName)

	var squad struct {
		Squad []store.SquadRow `json:"squad"`
	}
	rec = get(t, h, "/api/v1/matches/87654/squad", &squad)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, squad.Squad)
	require.Empty(t, squad.Squad)
}

func TestStages(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	var pending struct {
		MatchIDs []string `json:"match_ids"`
	}
	rec := get(t, h, "/api/v1/stages/scorecard/pending", &pending)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"87700"}, pending.MatchIDs)

	rec = get(t, h, "/api/v1/stages/squads/pending", &pending)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pending.MatchIDs, 2)

	rec = get(t, h, "/api/v1/stages/bogus/pending", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var status struct {
		Stages []store.StageStatus `json:"stages"`
	}
	rec = get(t, h, "/api/v1/stages", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, status.Stages, len(provider.Stages))
	for _, s := range status.Stages {
		require.Equal(t, 2, s.Registered, s.Stage)
	}
}

func TestETagNotModified(t *testing.T) {
	h := newTestRouter(t, config.Config{})

	rec := get(t, h, "/api/v1/matches/87654/scorecard", nil)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/matches/87654/scorecard", nil)
	req.Header.Set("If-None-Match", etag)
	again := httptest.NewRecorder()
	h.ServeHTTP(again, req)
	require.Equal(t, http.StatusNotModified, again.Code)
	require.Empty(t, again.Body.Bytes())
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, config.Config{RateLimitEnabled: true, RateLimitRequests: 2, RateLimitWindow: time.Minute})

	require.Equal(t, http.StatusOK, get(t, h, "/health", nil).Code)
	rec := get(t, h, "/health", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
}

package cricbuzz

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/cricket-data/internal/provider"
)

func newTestClient(t *testing.T, h http.Handler, delay time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:   srv.URL,
		UserAgent: "cricket-data-test",
		Delay:     delay,
		Timeout:   5 * time.Second,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestClientURL(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "https://www.cricbuzz.com"})

	require.Equal(t, "https://www.cricbuzz.com/cricket-match/live-scores/recent-matches",
		c.URL(provider.PageRef{Kind: provider.PageRecentMatches}))
	require.Equal(t, "https://www.cricbuzz.com/live-cricket-scorecard/101/ind-vs-aus",
		c.URL(provider.PageRef{Kind: provider.PageScorecard, ID: "101", Slug: "ind-vs-aus"}))
	require.Equal(t, "https://www.cricbuzz.com/cricket-match-facts/101/match",
		c.URL(provider.PageRef{Kind: provider.PageMatchFacts, ID: "101"}))
	require.Equal(t, "https://www.cricbuzz.com/cricket-match-squads/101/squads",
		c.URL(provider.PageRef{Kind: provider.PageSquads, ID: "101", Slug: "ignored"}))
	require.Equal(t, "https://www.cricbuzz.com/profiles/1413/player",
		c.URL(provider.PageRef{Kind: provider.PageProfile, ID: "1413"}))
	require.Empty(t, c.URL(provider.PageRef{Kind: "bogus"}))
}

func TestClientFetch(t *testing.T) {
	var userAgent string
	mux := http.NewServeMux()
	mux.HandleFunc("/live-cricket-scorecard/1/match", func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html>ok</html>"))
	})
	mux.HandleFunc("/live-cricket-scorecard/2/match", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/live-cricket-scorecard/3/match", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	})
	c := newTestClient(t, mux, 0)

	page, err := c.Fetch(t.Context(), provider.PageRef{Kind: provider.PageScorecard, ID: "1"})
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", string(page.Body))
	require.Equal(t, provider.PageScorecard, page.Ref.Kind)
	require.Equal(t, "cricket-data-test", userAgent)

	_, err = c.Fetch(t.Context(), provider.PageRef{Kind: provider.PageScorecard, ID: "2"})
	var fe *provider.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, provider.FetchPermanent, fe.Kind)
	require.Equal(t, http.StatusNotFound, fe.StatusCode)

	_, err = c.Fetch(t.Context(), provider.PageRef{Kind: provider.PageScorecard, ID: "3"})
	require.True(t, provider.IsTransient(err))

	_, err = c.Fetch(t.Context(), provider.PageRef{Kind: "bogus", ID: "3"})
	require.Error(t, err)
	require.False(t, provider.IsTransient(err))
}

func TestClientEnforcesDelay(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	c := newTestClient(t, h, 40*time.Millisecond)

	ref := provider.PageRef{Kind: provider.PageRecentMatches}
	start := time.Now()
	for range 3 {
		_, err := c.Fetch(t.Context(), ref)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestClassifyStatus(t *testing.T) {
	require.Equal(t, provider.FetchTransient, classifyStatus(http.StatusTooManyRequests))
	require.Equal(t, provider.FetchTransient, classifyStatus(http.StatusBadGateway))
	require.Equal(t, provider.FetchPermanent, classifyStatus(http.StatusForbidden))
	require.Equal(t, provider.FetchPermanent, classifyStatus(http.StatusNotFound))
}

// Package cricbuzz provides the page fetcher and HTML field extractors for
// cricbuzz.com.
//
// The client rate-limits every request with a token bucket so the source sees
// at most one request per configured delay. Extractors are pure functions of
// page content and never perform I/O.
package cricbuzz

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/albapepper/cricket-data/internal/provider"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Delay     time.Duration // minimum gap between requests
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Client fetches Cricbuzz pages. It implements provider.Fetcher.
type Client struct {
	http    *resty.Client
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a rate-limited Cricbuzz client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "text/html,application/xhtml+xml")
	if cfg.UserAgent != "" {
		httpClient.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// URL maps a page reference onto its absolute source URL.
func (c *Client) URL(ref provider.PageRef) string {
	slug := ref.Slug
	if slug == "" {
		slug = "match"
	}
	switch ref.Kind {
	case provider.PageRecentMatches:
		return c.baseURL + "/cricket-match/live-scores/recent-matches"
	case provider.PageLiveScore:
		return fmt.Sprintf("%s/live-cricket-scores/%s/%s", c.baseURL, ref.ID, slug)
	case provider.PageMatchFacts:
		return fmt.Sprintf("%s/cricket-match-facts/%s/%s", c.baseURL, ref.ID, slug)
	case provider.PageScorecard:
		return fmt.Sprintf("%s/live-cricket-scorecard/%s/%s", c.baseURL, ref.ID, slug)
	case provider.PageSquads:
		return fmt.Sprintf("%s/cricket-match-squads/%s/squads", c.baseURL, ref.ID)
	case provider.PageProfile:
		return fmt.Sprintf("%s/profiles/%s/player", c.baseURL, ref.ID)
	}
	return ""
}

// Fetch performs a rate-limited GET of the referenced page.
func (c *Client) Fetch(ctx context.Context, ref provider.PageRef) (provider.Page, error) {
	u := c.URL(ref)
	if u == "" {
		return provider.Page{}, &provider.FetchError{
			Ref: ref, Kind: provider.FetchPermanent,
			Err: errors.Newf("unknown page kind %q", ref.Kind),
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return provider.Page{}, errors.Wrap(err, "rate limit wait")
	}

	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(u)
	if err != nil {
		if ctx.Err() != nil {
			return provider.Page{}, ctx.Err()
		}
		return provider.Page{}, &provider.FetchError{Ref: ref, Kind: provider.FetchTransient, Err: err}
	}

	status := resp.StatusCode()
	c.logger.Debug("Fetched page", "url", u, "status", status, "duration", time.Since(start).Round(time.Millisecond))

	if status != http.StatusOK {
		return provider.Page{}, &provider.FetchError{
			Ref:        ref,
			Kind:       classifyStatus(status),
			StatusCode: status,
			Err:        errors.Newf("GET %s returned %d: %s", u, status, truncate(resp.Body(), 200)),
		}
	}

	return provider.Page{Ref: ref, URL: u, Body: resp.Body()}, nil
}

// classifyStatus treats throttling and server errors as retryable.
func classifyStatus(status int) provider.FetchErrorKind {
	switch {
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return provider.FetchTransient
	default:
		return provider.FetchPermanent
	}
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}

// Package registry discovers international matches and maintains the
// matches table, the root every detail stage hangs off.
//
// Discovery reads the recent-matches listing, keeps international links,
// deduplicates them by match id, and registers each match with whatever
// metadata its live-score and match-facts pages expose. Registration is an
// idempotent, monotonic upsert: rediscovering a match can fill in missing
// fields but never blanks a known one.
package registry

import (
	"context"
	"iter"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const defaultMaxMatches = 50

var noWinnerResult = regexp.MustCompile(`(?i)match tied|no result|abandoned|drawn`)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Extractor parses the pages discovery reads.
type Extractor interface {
	Listings(page provider.Page) iter.Seq2[provider.MatchListing, error]
	MatchInfo(page provider.Page) (provider.MatchInfo, error)
	MatchFacts(page provider.Page) (provider.MatchInfo, error)
}

// Config tunes discovery.
type Config struct {
	MaxMatches    int
	CompletedOnly bool
	MaxFailures   int
	Retry         provider.RetryPolicy
}

// Registry owns the matches table.
type Registry struct {
	store   store.Store
	fetcher provider.Fetcher
	extract Extractor
	cfg     Config
	logger  *slog.Logger
}

// New creates a Registry.
func New(st store.Store, fetcher provider.Fetcher, extract Extractor, cfg Config, logger *slog.Logger) *Registry {
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = defaultMaxMatches
	}
	return &Registry{store: st, fetcher: fetcher, extract: extract, cfg: cfg, logger: logger}
}

// --------------------------------------------------------------------------
// Discovery
// --------------------------------------------------------------------------

// Discover registers every international match on the listing page and
// returns the matches it registered. A match whose detail pages cannot be
// fetched or parsed is skipped with a warning; only a listing failure or a
// store failure is returned as an error.
func (r *Registry) Discover(ctx context.Context) ([]provider.Match, error) {
	page, err := provider.FetchWithRetry(ctx, r.fetcher,
		provider.PageRef{Kind: provider.PageRecentMatches}, r.cfg.Retry, r.logger)
	if err != nil {
		return nil, errors.Wrap(err, "fetch match listing")
	}

	listings := r.internationalListings(page)
	r.logger.Info("Discovered match links", "international", len(listings))

	var registered []provider.Match
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return registered, err
		}

		m, ok := r.describe(ctx, l)
		if !ok {
			continue
		}
		if r.cfg.CompletedOnly && m.Winner == "" {
			r.logger.Info("Skipping match without a result", "match_id", m.ID)
			continue
		}

		if _, err := r.Register(ctx, m); err != nil {
			return registered, err
		}
		r.logger.Info("Registered match",
			"match_id", m.ID, "teams", m.Teams(), "format", m.Format, "winner", m.Winner)
		registered = append(registered, m)
	}
	return registered, nil
}

// internationalListings filters, deduplicates and caps the listing links,
// keeping page order.
func (r *Registry) internationalListings(page provider.Page) []provider.MatchListing {
	seen := make(map[string]bool)
	var out []provider.MatchListing
	for l, err := range r.extract.Listings(page) {
		if err != nil {
			r.logger.Warn("Skipping malformed listing link", "error", err)
			continue
		}
		if seen[l.MatchID] || !provider.IsInternational(l.Href) {
			continue
		}
		seen[l.MatchID] = true
		out = append(out, l)
		if len(out) >= r.cfg.MaxMatches {
			break
		}
	}
	return out
}

// describe builds the match record from the live-score page, completed by
// the match-facts page.
func (r *Registry) describe(ctx context.Context, l provider.MatchListing) (provider.Match, bool) {
	t1, t2 := provider.TeamsFromSlug(l.Slug)
	m := provider.Match{ID: l.MatchID, Slug: l.Slug, Team1: t1, Team2: t2, Format: provider.FormatUnknown}

	live, err := provider.FetchWithRetry(ctx, r.fetcher,
		provider.PageRef{Kind: provider.PageLiveScore, ID: l.MatchID, Slug: l.Slug}, r.cfg.Retry, r.logger)
	if err != nil {
		r.logger.Warn("Skipping match, live page unavailable", "match_id", l.MatchID, "error", err)
		return m, false
	}
	info, err := r.extract.MatchInfo(live)
	if err != nil {
		r.logger.Warn("Skipping match, live page unreadable", "match_id", l.MatchID, "error", err)
		return m, false
	}
	m.Name, m.Format, m.Winner, m.Venue = info.Name, info.Format, info.Winner, info.Venue
	if m.Format == provider.FormatUnknown {
		m.Format = provider.ParseFormat(strings.ReplaceAll(l.Slug, "-", " "))
	}

	facts, err := provider.FetchWithRetry(ctx, r.fetcher,
		provider.PageRef{Kind: provider.PageMatchFacts, ID: l.MatchID, Slug: l.Slug}, r.cfg.Retry, r.logger)
	if err != nil {
		r.logger.Warn("Match facts unavailable", "match_id", l.MatchID, "error", err)
	} else if fi, err := r.extract.MatchFacts(facts); err != nil {
		r.logger.Warn("Match facts unreadable", "match_id", l.MatchID, "error", err)
	} else {
		if m.Venue == "" {
			m.Venue = fi.Venue
		}
		if m.Winner == "" {
			m.Winner = fi.Winner
		}
		m.Officials = fi.Officials
	}

	if m.Winner != "" && !validResult(m.Winner, m.Team1, m.Team2) {
		r.logger.Debug("Dropping result text that names neither team", "match_id", m.ID, "text", m.Winner)
		m.Winner = ""
	}
	return m, true
}

// validResult accepts result text naming one of the teams, or a result
// that has no winner.
func validResult(text, team1, team2 string) bool {
	lower := strings.ToLower(text)
	for _, team := range []string{team1, team2} {
		if team != "" && team != "Unknown" && strings.Contains(lower, strings.ToLower(team)) {
			return true
		}
	}
	return noWinnerResult.MatchString(text)
}

// --------------------------------------------------------------------------
// Registration and lookup
// --------------------------------------------------------------------------

// Register inserts or refreshes one match and returns its id.
func (r *Registry) Register(ctx context.Context, m provider.Match) (string, error) {
	if m.ID == "" {
		return "", errors.New("register match: empty match id")
	}
	if m.Format == "" {
		m.Format = provider.FormatUnknown
	}
	if err := r.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.UpsertMatch(ctx, m)
	}); err != nil {
		return "", errors.Wrapf(err, "register match %s", m.ID)
	}
	return m.ID, nil
}

// Pending returns the ids of registered matches that still need stage.
func (r *Registry) Pending(ctx context.Context, stage provider.Stage) ([]string, error) {
	matches, err := r.PendingMatches(ctx, stage)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids, nil
}

// PendingMatches is Pending with the full match records.
func (r *Registry) PendingMatches(ctx context.Context, stage provider.Stage) ([]provider.Match, error) {
	matches, err := r.store.PendingMatches(ctx, stage, r.cfg.MaxFailures)
	return matches, errors.Wrapf(err, "pending %s", stage)
}

// Lookup returns the registered matches among ids, in order, and the ids
// that are not registered.
func (r *Registry) Lookup(ctx context.Context, ids []string) ([]provider.Match, []string, error) {
	var (
		found   []provider.Match
		unknown []string
	)
	for _, id := range ids {
		m, err := r.store.GetMatch(ctx, id)
		switch {
		case err == nil:
			found = append(found, m)
		case errors.Is(err, store.ErrNotFound):
			unknown = append(unknown, id)
		default:
			return nil, nil, err
		}
	}
	return found, unknown, nil
}

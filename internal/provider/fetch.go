package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Pages
// --------------------------------------------------------------------------

// PageKind identifies which source page a PageRef points to.
type PageKind string

const (
	PageRecentMatches PageKind = "recent-matches"
	PageLiveScore     PageKind = "live-score"
	PageMatchFacts    PageKind = "match-facts"
	PageScorecard     PageKind = "scorecard"
	PageSquads        PageKind = "squads"
	PageProfile       PageKind = "profile"
)

// PageRef identifies one page to fetch. ID is a match id, or a profile id
// for PageProfile.
type PageRef struct {
	Kind PageKind
	ID   string
	Slug string
}

func (r PageRef) String() string {
	if r.ID == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + "/" + r.ID
}

// Page is fetched, not yet parsed content.
type Page struct {
	Ref  PageRef
	URL  string
	Body []byte
}

// Fetcher retrieves a page by reference. Implementations enforce their own
// minimum inter-request delay and report failures as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, ref PageRef) (Page, error)
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// FetchErrorKind separates retryable from final fetch failures.
type FetchErrorKind string

const (
	FetchTransient FetchErrorKind = "transient"
	FetchPermanent FetchErrorKind = "permanent"
)

// FetchError is returned by Fetcher implementations.
type FetchError struct {
	Ref        PageRef
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s failure (status %d): %v", e.Ref, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s failure: %v", e.Ref, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable fetch failure. Errors that
// are not *FetchError are treated as permanent.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchTransient
}

// ExtractionError describes one malformed source row. It is record-level:
// callers skip the row and continue.
type ExtractionError struct {
	Page  PageKind
	Field string
	Value string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: field %s=%q: %v", e.Page, e.Field, e.Value, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// --------------------------------------------------------------------------
// Retry
// --------------------------------------------------------------------------

// RetryPolicy bounds how transient fetch failures are retried.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration // attempt n waits n*Backoff
}

// FetchWithRetry fetches ref, retrying transient failures with linear
// backoff. Permanent failures and context cancellation return immediately.
func FetchWithRetry(ctx context.Context, f Fetcher, ref PageRef, policy RetryPolicy, logger *slog.Logger) (Page, error) {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		page, err := f.Fetch(ctx, ref)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			return Page{}, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * policy.Backoff
		logger.Warn("Transient fetch failure, retrying",
			"page", ref.String(), "attempt", attempt+1, "backoff", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Page{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Page{}, lastErr
}

// Package providertest provides an in-memory provider.Fetcher for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
)

// Fetcher serves pages from memory. Pages are keyed by kind and id; the
// slug is ignored. Refs with a queued error fail with it once per entry.
type Fetcher struct {
	mu     sync.Mutex
	pages  map[string][]byte
	errs   map[string][]error
	counts map[string]int
}

// NewFetcher creates an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		pages:  make(map[string][]byte),
		errs:   make(map[string][]error),
		counts: make(map[string]int),
	}
}

func key(kind provider.PageKind, id string) string {
	return provider.PageRef{Kind: kind, ID: id}.String()
}

// Set serves body for the page.
func (f *Fetcher) Set(kind provider.PageKind, id string, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[key(kind, id)] = []byte(body)
}

// FailWith queues errors returned, in order, before the page is served.
func (f *Fetcher) FailWith(kind provider.PageKind, id string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(kind, id)
	f.errs[k] = append(f.errs[k], errs...)
}

// Calls reports how many times the page was requested.
func (f *Fetcher) Calls(kind provider.PageKind, id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key(kind, id)]
}

// Fetch implements provider.Fetcher. Unknown pages fail permanently, like a
// 404 from the source.
func (f *Fetcher) Fetch(ctx context.Context, ref provider.PageRef) (provider.Page, error) {
	if err := ctx.Err(); err != nil {
		return provider.Page{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(ref.Kind, ref.ID)
	f.counts[k]++
	if queued := f.errs[k]; len(queued) > 0 {
		f.errs[k] = queued[1:]
		return provider.Page{}, queued[0]
	}
	body, ok := f.pages[k]
	if !ok {
		return provider.Page{}, &provider.FetchError{
			Ref: ref, Kind: provider.FetchPermanent, StatusCode: 404, Err: errors.New("no such page"),
		}
	}
	return provider.Page{Ref: ref, URL: "mem://" + k, Body: body}, nil
}

// Transient builds a retryable fetch error for ref.
func Transient(kind provider.PageKind, id string) error {
	return &provider.FetchError{
		Ref:  provider.PageRef{Kind: kind, ID: id},
		Kind: provider.FetchTransient, StatusCode: 503, Err: errors.New("service unavailable"),
	}
}

// Permanent builds a non-retryable fetch error for ref.
func Permanent(kind provider.PageKind, id string) error {
	return &provider.FetchError{
		Ref:  provider.PageRef{Kind: kind, ID: id},
		Kind: provider.FetchPermanent, StatusCode: 403, Err: errors.New("forbidden"),
	}
}

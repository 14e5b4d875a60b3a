package provider

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type scriptedFetcher struct {
	errs  []error
	calls int
}

func (f *scriptedFetcher) Fetch(_ context.Context, ref PageRef) (Page, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return Page{}, err
		}
	}
	return Page{Ref: ref, Body: []byte("ok")}, nil
}

func transient(ref PageRef) error {
	return &FetchError{Ref: ref, Kind: FetchTransient, StatusCode: 503, Err: errors.New("unavailable")}
}

func TestFetchWithRetryRecoversFromTransient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ref := PageRef{Kind: PageScorecard, ID: "1"}
	f := &scriptedFetcher{errs: []error{transient(ref), transient(ref)}}

	page, err := FetchWithRetry(t.Context(), f, ref, RetryPolicy{MaxRetries: 3}, logger)
	require.NoError(t, err)
	require.Equal(t, "ok", string(page.Body))
	require.Equal(t, 3, f.calls)
}

func TestFetchWithRetryGivesUp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ref := PageRef{Kind: PageScorecard, ID: "1"}
	f := &scriptedFetcher{errs: []error{transient(ref), transient(ref), transient(ref)}}

	_, err := FetchWithRetry(t.Context(), f, ref, RetryPolicy{MaxRetries: 2}, logger)
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, 3, f.calls)
}

func TestFetchWithRetryStopsOnPermanent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ref := PageRef{Kind: PageSquads, ID: "9"}
	perm := &FetchError{Ref: ref, Kind: FetchPermanent, StatusCode: 404, Err: errors.New("not found")}
	f := &scriptedFetcher{errs: []error{perm}}

	_, err := FetchWithRetry(t.Context(), f, ref, RetryPolicy{MaxRetries: 5}, logger)
	require.Error(t, err)
	require.False(t, IsTransient(err))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, 404, fe.StatusCode)
	require.Equal(t, 1, f.calls)
}

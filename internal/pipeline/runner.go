// Package pipeline runs the detail stages (scorecard, awards, squad) over
// registered matches.
//
// Every stage follows the same steps per match:
//
//  1. fetch the stage's page, retrying transient failures with backoff
//  2. extract records lazily from the page
//  3. resolve each record's player and upsert the record, both in one
//     transaction
//  4. mark the stage completed for the match once every extracted record
//     has been written
//
// A match that cannot finish is recorded as failed and stays pending until
// it succeeds or reaches the failure limit. Malformed source rows are
// skipped and do not hold back completion, since re-running would meet the
// same rows. A page without records completes only for stages that allow
// it, such as awards for an abandoned match. Matches are processed sequentially; cancellation takes effect
// between records and leaves the current match pending.
package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/registry"
	"github.com/albapepper/cricket-data/internal/resolve"
	"github.com/albapepper/cricket-data/internal/store"
)

// ErrStoreUnavailable aborts a stage when a write fails and the store no
// longer answers a ping.
var ErrStoreUnavailable = errors.New("store unavailable")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Extractor parses the pages the detail stages read.
type Extractor interface {
	Scorecard(page provider.Page) iter.Seq2[provider.ScorecardLine, error]
	Awards(page provider.Page) iter.Seq2[provider.AwardEntry, error]
	Squad(page provider.Page) iter.Seq2[provider.SquadEntry, error]
	Profile(page provider.Page) (provider.Biography, error)
}

// Config tunes the stage runner.
type Config struct {
	Retry provider.RetryPolicy
	// FetchBiographies enables profile enrichment after a squad completes.
	FetchBiographies bool
}

// Options selects which matches a stage run processes.
type Options struct {
	// MatchIDs restricts the run to these matches, processed whether or not
	// the stage already completed for them. Empty means every pending match.
	MatchIDs []string
}

// Runner executes detail stages.
type Runner struct {
	store    store.Store
	registry *registry.Registry
	fetcher  provider.Fetcher
	extract  Extractor
	resolver *resolve.Resolver
	cfg      Config
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(
	st store.Store,
	reg *registry.Registry,
	fetcher provider.Fetcher,
	extract Extractor,
	resolver *resolve.Resolver,
	cfg Config,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		store:    st,
		registry: reg,
		fetcher:  fetcher,
		extract:  extract,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// stage describes one detail stage over records of type R.
type stage[R any] struct {
	name    provider.Stage
	page    provider.PageKind
	records func(provider.Page) iter.Seq2[R, error]
	player  func(R) provider.PlayerRef
	write   func(ctx context.Context, tx store.Tx, m provider.Match, playerID int64, rec R) error
	// allowEmpty completes a match whose page yields no records. Otherwise
	// an empty page counts as a failure and the match is retried.
	allowEmpty bool
	// after runs once a match completes, with the players it wrote.
	after func(ctx context.Context, m provider.Match, playerIDs []int64, res *Result)
}

// matchOutcome is the result of one match within a stage run.
type matchOutcome struct {
	rows, skipped, created int
	playerIDs              []int64
	// failure is set when the match must not be marked completed.
	failure string
}

// --------------------------------------------------------------------------
// Stage loop
// --------------------------------------------------------------------------

// runStage processes every target match of st. The returned error is
// non-nil only for cancellation or an unavailable store.
func runStage[R any](ctx context.Context, r *Runner, st stage[R], opts Options) (Result, error) {
	start := time.Now()
	res := Result{Stage: st.name}

	matches, err := r.targets(ctx, st.name, opts, &res)
	if err != nil {
		res.Duration = time.Since(start)
		return res, err
	}
	res.MatchesFound = len(matches)
	r.logger.Info("Stage starting", "stage", st.name, "matches", len(matches))

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		out, err := runMatch(ctx, r, st, m)
		res.Processed++
		res.RowsUpserted += out.rows
		res.RowsSkipped += out.skipped
		res.PlayersCreated += out.created
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		if out.failure == "" {
			if err := r.store.MarkStageComplete(ctx, st.name, m.ID); err != nil {
				if fatal := r.storeFailure(ctx, err); errors.Is(fatal, ErrStoreUnavailable) {
					res.Duration = time.Since(start)
					return res, fatal
				}
				out.failure = "mark completed: " + err.Error()
			}
		}

		if out.failure != "" {
			res.Failed++
			res.AddErrorf("%s %s: %s", st.name, m.ID, out.failure)
			r.logger.Warn("Stage failed for match", "stage", st.name, "match_id", m.ID, "reason", out.failure)
			if err := r.store.RecordStageFailure(ctx, st.name, m.ID, out.failure); err != nil {
				if fatal := r.storeFailure(ctx, err); errors.Is(fatal, ErrStoreUnavailable) {
					res.Duration = time.Since(start)
					return res, fatal
				}
				r.logger.Error("Could not record stage failure", "stage", st.name, "match_id", m.ID, "error", err)
			}
			continue
		}
		res.Completed++
		r.logger.Info("Stage completed for match",
			"stage", st.name, "match_id", m.ID, "rows", out.rows, "skipped", out.skipped)

		if st.after != nil {
			st.after(ctx, m, out.playerIDs, &res)
		}
	}

	res.Duration = time.Since(start)
	r.logger.Info("Stage finished", "summary", res.Summary())
	return res, nil
}

// runMatch fetches, extracts and writes one match. A non-nil error aborts
// the whole stage.
func runMatch[R any](ctx context.Context, r *Runner, st stage[R], m provider.Match) (matchOutcome, error) {
	var out matchOutcome
	log := r.logger.With("stage", st.name, "match_id", m.ID)

	ref := provider.PageRef{Kind: st.page, ID: m.ID, Slug: m.Slug}
	page, err := provider.FetchWithRetry(ctx, r.fetcher, ref, r.cfg.Retry, r.logger)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.failure = err.Error()
		return out, nil
	}

	seen := make(map[int64]bool)
	extracted := 0
	for rec, err := range st.records(page) {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err != nil {
			var ee *provider.ExtractionError
			if errors.As(err, &ee) {
				log.Warn("Skipping malformed row", "error", err)
				out.skipped++
				continue
			}
			out.failure = "extract: " + err.Error()
			return out, nil
		}
		extracted++

		var (
			playerID int64
			created  bool
		)
		err := r.store.WithTx(ctx, func(tx store.Tx) error {
			var err error
			playerID, created, err = r.resolver.Resolve(ctx, tx, st.player(rec))
			if err != nil {
				return err
			}
			return st.write(ctx, tx, m, playerID, rec)
		})

		var ee *provider.ExtractionError
		switch {
		case err == nil:
			out.rows++
			if created {
				out.created++
			}
			if !seen[playerID] {
				seen[playerID] = true
				out.playerIDs = append(out.playerIDs, playerID)
			}
		case errors.As(err, &ee):
			log.Warn("Skipping unresolvable row", "error", err)
			out.skipped++
		case store.IsIntegrity(err):
			log.Error("Integrity violation, row dropped", "error", err)
			out.failure = err.Error()
		case ctx.Err() != nil:
			return out, ctx.Err()
		default:
			if fatal := r.storeFailure(ctx, err); errors.Is(fatal, ErrStoreUnavailable) {
				return out, fatal
			}
			log.Warn("Row write failed", "player", st.player(rec).Name, "error", err)
			out.failure = "write: " + err.Error()
		}
	}

	if extracted == 0 && out.failure == "" && !st.allowEmpty {
		out.failure = "no records on page"
	}
	return out, nil
}

// storeFailure classifies a store error: ErrStoreUnavailable when the store
// no longer answers, the error itself otherwise.
func (r *Runner) storeFailure(ctx context.Context, err error) error {
	if pingErr := r.store.Ping(ctx); pingErr != nil {
		r.logger.Error("Store unavailable", "error", err, "ping_error", pingErr)
		return errors.WithSecondaryError(errors.Wrapf(ErrStoreUnavailable, "write failed: %v", err), err)
	}
	return err
}

// targets resolves the matches a run processes. Explicit ids that are not
// registered are skipped with a warning.
func (r *Runner) targets(ctx context.Context, name provider.Stage, opts Options, res *Result) ([]provider.Match, error) {
	if len(opts.MatchIDs) == 0 {
		return r.registry.PendingMatches(ctx, name)
	}
	found, unknown, err := r.registry.Lookup(ctx, opts.MatchIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range unknown {
		r.logger.Warn("Skipping unknown match", "stage", name, "match_id", id)
		res.Skipped++
		res.AddErrorf("%s %s: unknown match", name, id)
	}
	return found, nil
}

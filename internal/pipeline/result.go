package pipeline

import (
	"fmt"
	"time"

	"github.com/albapepper/cricket-data/internal/provider"
)

// Result tracks the outcome of one stage run across its matches.
type Result struct {
	Stage          provider.Stage
	MatchesFound   int
	Processed      int
	Completed      int
	Failed         int
	Skipped        int
	RowsUpserted   int
	RowsSkipped    int
	PlayersCreated int
	BiosFetched    int
	Duration       time.Duration
	Errors         []string
}

// Add merges another Result into this one.
func (r *Result) Add(other Result) {
	r.MatchesFound += other.MatchesFound
	r.Processed += other.Processed
	r.Completed += other.Completed
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.RowsUpserted += other.RowsUpserted
	r.RowsSkipped += other.RowsSkipped
	r.PlayersCreated += other.PlayersCreated
	r.BiosFetched += other.BiosFetched
	r.Duration += other.Duration
	r.Errors = append(r.Errors, other.Errors...)
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"stage=%s found=%d processed=%d completed=%d failed=%d skipped=%d rows=%d rows_skipped=%d players_new=%d bios=%d errors=%d dur=%s",
		r.Stage, r.MatchesFound, r.Processed, r.Completed, r.Failed, r.Skipped,
		r.RowsUpserted, r.RowsSkipped, r.PlayersCreated, r.BiosFetched,
		len(r.Errors), r.Duration.Round(time.Millisecond))
}

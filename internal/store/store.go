// Package store defines the persistence contract shared by the stage
// pipelines, the registry and the status API.
//
// Every write is an idempotent upsert keyed by natural identity, so any stage
// can run repeatedly and out of order. Detail rows are checked against the
// matches and players tables before they are written; a row pointing at a
// missing parent is rejected with *IntegrityError rather than stored.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
)

// ErrNotFound is returned by single-row lookups with no result.
var ErrNotFound = errors.New("not found")

// IntegrityError reports a detail row whose match or player does not exist.
type IntegrityError struct {
	Table    string
	MatchID  string
	PlayerID int64
	Reason   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on %s (match_id=%s player_id=%d): %s",
		e.Table, e.MatchID, e.PlayerID, e.Reason)
}

// IsIntegrity reports whether err is or wraps an *IntegrityError.
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// --------------------------------------------------------------------------
// Interfaces
// --------------------------------------------------------------------------

// Matches persists rows of the matches and match_officials tables.
// UpsertMatch is monotonic: empty fields and FormatUnknown never overwrite
// a stored value.
type Matches interface {
	UpsertMatch(ctx context.Context, m provider.Match) error
	MatchExists(ctx context.Context, matchID string) (bool, error)
	GetMatch(ctx context.Context, matchID string) (provider.Match, error)
}

// Players persists the players table.
type Players interface {
	PlayerByProfileRef(ctx context.Context, ref string) (provider.Player, error)
	// PlayerByNameKey returns the lowest-id player with the given key.
	PlayerByNameKey(ctx context.Context, key string) (provider.Player, error)
	GetPlayer(ctx context.Context, id int64) (provider.Player, error)
	PlayerExists(ctx context.Context, id int64) (bool, error)
	InsertPlayer(ctx context.Context, p provider.Player) (int64, error)
	// AttachProfileRef sets the profile ref of a player that has none.
	AttachProfileRef(ctx context.Context, id int64, ref string) error
	UpdatePlayerRole(ctx context.Context, id int64, role string) error
	// SetBiography fills biography fields monotonically and marks the
	// biography as fetched.
	SetBiography(ctx context.Context, id int64, bio provider.Biography) error
}

// Details persists the per-match detail tables.
type Details interface {
	UpsertBatter(ctx context.Context, matchID string, playerID int64, l provider.BatterLine) error
	UpsertBowler(ctx context.Context, matchID string, playerID int64, l provider.BowlerLine) error
	UpsertAward(ctx context.Context, matchID string, playerID int64, awardName string) error
	UpsertSquad(ctx context.Context, matchID string, playerID int64, e provider.SquadEntry) error
}

// StageRuns tracks per (match, stage) completion.
type StageRuns interface {
	// PendingMatches returns registered matches without a completed run of
	// stage whose failure count is below maxFailures (0 means unlimited).
	PendingMatches(ctx context.Context, stage provider.Stage, maxFailures int) ([]provider.Match, error)
	MarkStageComplete(ctx context.Context, stage provider.Stage, matchID string) error
	RecordStageFailure(ctx context.Context, stage provider.Stage, matchID, msg string) error
	// ResetStage forgets completion and failures of stage. With no match ids
	// every match is reset.
	ResetStage(ctx context.Context, stage provider.Stage, matchIDs []string) (int64, error)
}

// Reader serves the read-only queries of the status API and the audit.
type Reader interface {
	ListMatches(ctx context.Context, f MatchFilter) ([]provider.Match, error)
	Scorecard(ctx context.Context, matchID string) (Scorecard, error)
	Awards(ctx context.Context, matchID string) ([]AwardRow, error)
	Squad(ctx context.Context, matchID string) ([]SquadRow, error)
	StageRunsFor(ctx context.Context, matchID string) ([]StageRun, error)
	StageStatus(ctx context.Context, maxFailures int) ([]StageStatus, error)
	ListPlayers(ctx context.Context) ([]provider.Player, error)
}

// Tx is the unit of work handed to WithTx callbacks.
type Tx interface {
	Matches
	Players
	Details
	StageRuns
}

// Store is a persistence backend. Tx methods called directly on a Store run
// outside any explicit transaction.
type Store interface {
	Tx
	Reader
	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// --------------------------------------------------------------------------
// Read models
// --------------------------------------------------------------------------

// MatchFilter narrows ListMatches.
type MatchFilter struct {
	Format provider.Format
	Limit  int
	Offset int
}

// BattingRow is a stored batting line.
type BattingRow struct {
	PlayerID int64 `json:"player_id"`
	provider.BatterLine
}

// BowlingRow is a stored bowling line.
type BowlingRow struct {
	PlayerID int64 `json:"player_id"`
	provider.BowlerLine
}

// Scorecard groups the stored lines of one match.
type Scorecard struct {
	MatchID string       `json:"match_id"`
	Batting []BattingRow `json:"batting"`
	Bowling []BowlingRow `json:"bowling"`
}

// AwardRow is a stored award.
type AwardRow struct {
	PlayerID int64 `json:"player_id"`
	provider.AwardEntry
}

// SquadRow is a stored squad entry.
type SquadRow struct {
	PlayerID int64 `json:"player_id"`
	provider.SquadEntry
}

// Stage run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StageRun is one row of the stage_runs table.
type StageRun struct {
	MatchID     string         `json:"match_id"`
	Stage       provider.Stage `json:"stage"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StageStatus summarizes one stage across all registered matches.
type StageStatus struct {
	Stage      provider.Stage `json:"stage"`
	Registered int            `json:"registered"`
	Completed  int            `json:"completed"`
	Failing    int            `json:"failing"`
	Exhausted  int            `json:"exhausted"`
	Pending    int            `json:"pending"`
}

// BuildStageStatus derives the pending count from raw counts. failing is
// every failed, not completed match; exhausted is the subset at or above the
// failure limit.
func BuildStageStatus(stage provider.Stage, registered, completed, failing, exhausted int) StageStatus {
	return StageStatus{
		Stage:      stage,
		Registered: registered,
		Completed:  completed,
		Failing:    failing,
		Exhausted:  exhausted,
		Pending:    registered - completed - exhausted,
	}
}

// NilEmpty maps "" to a SQL NULL so COALESCE keeps the stored value.
func NilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Truncate bounds error text persisted in stage_runs.last_error.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package pipeline

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

// Scorecards runs the scorecard stage: one batting or bowling line per
// player per match.
func (r *Runner) Scorecards(ctx context.Context, opts Options) (Result, error) {
	return runStage(ctx, r, stage[provider.ScorecardLine]{
		name:    provider.StageScorecard,
		page:    provider.PageScorecard,
		records: r.extract.Scorecard,
		player:  provider.ScorecardLine.Player,
		write:   writeScorecardLine,
	}, opts)
}

func writeScorecardLine(ctx context.Context, tx store.Tx, m provider.Match, playerID int64, l provider.ScorecardLine) error {
	switch {
	case l.Batter != nil:
		return tx.UpsertBatter(ctx, m.ID, playerID, *l.Batter)
	case l.Bowler != nil:
		line := *l.Bowler
		if line.Team == "" {
			line.Team = m.Opponent(line.Against)
		}
		return tx.UpsertBowler(ctx, m.ID, playerID, line)
	}
	return &provider.ExtractionError{Page: provider.PageScorecard, Field: "line", Err: errors.New("empty scorecard line")}
}

// Awards runs the awards stage. Awards are read from the scorecard page.
// A match without awards, such as a washed-out game, still completes.
func (r *Runner) Awards(ctx context.Context, opts Options) (Result, error) {
	return runStage(ctx, r, stage[provider.AwardEntry]{
		name:       provider.StageAwards,
		page:       provider.PageScorecard,
		records:    r.extract.Awards,
		player:     func(a provider.AwardEntry) provider.PlayerRef { return a.Player },
		allowEmpty: true,
		write: func(ctx context.Context, tx store.Tx, m provider.Match, playerID int64, a provider.AwardEntry) error {
			return tx.UpsertAward(ctx, m.ID, playerID, a.AwardName)
		},
	}, opts)
}

// Squads runs the squad stage. The role listed on the squad page also
// becomes the player's current role. With FetchBiographies set, players
// without a biography are enriched from their profile page once the match
// completes.
func (r *Runner) Squads(ctx context.Context, opts Options) (Result, error) {
	st := stage[provider.SquadEntry]{
		name:    provider.StageSquad,
		page:    provider.PageSquads,
		records: r.extract.Squad,
		player:  func(e provider.SquadEntry) provider.PlayerRef { return e.Player },
		write: func(ctx context.Context, tx store.Tx, m provider.Match, playerID int64, e provider.SquadEntry) error {
			if err := tx.UpsertSquad(ctx, m.ID, playerID, e); err != nil {
				return err
			}
			return tx.UpdatePlayerRole(ctx, playerID, e.Role)
		},
	}
	if r.cfg.FetchBiographies {
		st.after = r.fetchBiographies
	}
	return runStage(ctx, r, st, opts)
}

// fetchBiographies fills in profile details for the given players. Failures
// are logged and never affect the stage.
func (r *Runner) fetchBiographies(ctx context.Context, m provider.Match, playerIDs []int64, res *Result) {
	for _, id := range playerIDs {
		if ctx.Err() != nil {
			return
		}
		p, err := r.store.GetPlayer(ctx, id)
		if err != nil {
			r.logger.Warn("Biography skipped, player unreadable", "player_id", id, "error", err)
			continue
		}
		if p.HasBio || p.ProfileRef == "" {
			continue
		}

		page, err := provider.FetchWithRetry(ctx, r.fetcher,
			provider.PageRef{Kind: provider.PageProfile, ID: p.ProfileRef}, r.cfg.Retry, r.logger)
		if err != nil {
			r.logger.Warn("Profile unavailable", "match_id", m.ID, "player_id", id, "error", err)
			continue
		}
		bio, err := r.extract.Profile(page)
		if err != nil {
			r.logger.Warn("Profile unreadable", "player_id", id, "error", err)
			continue
		}
		if err := r.store.SetBiography(ctx, id, bio); err != nil {
			r.logger.Warn("Could not store biography", "player_id", id, "error", err)
			continue
		}
		res.BiosFetched++
	}
}

// RunAll runs every detail stage in order. A stage error stops the run and
// is returned with the results gathered so far.
func (r *Runner) RunAll(ctx context.Context, opts Options) ([]Result, error) {
	stages := []func(context.Context, Options) (Result, error){r.Scorecards, r.Awards, r.Squads}
	results := make([]Result, 0, len(stages))
	for _, run := range stages {
		res, err := run(ctx, opts)
		results = append(results, res)
		if err != nil {
			return results, errors.Wrapf(err, "stage %s", res.Stage)
		}
	}
	return results, nil
}

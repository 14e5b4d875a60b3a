// Package db provides a pgxpool-based connection pool with prepared statement
// registration, schema migration and health checking.
package db

import (
	"context"
	_ "embed"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/cricket-data/internal/config"
)

//go:embed schema.sql
var Schema string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database URL")
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection. The schema must
	// exist first, so migrate on a plain connection before the pool opens.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}
	if err := Migrate(ctx, poolCfg.ConnConfig); err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &Pool{Pool: pool}, nil
}

// Migrate applies the schema over a dedicated connection. Every statement is
// idempotent.
func Migrate(ctx context.Context, connCfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return errors.Wrap(err, "connect for migration")
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "apply postgres schema")
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const matchColumns = `m.match_id, m.slug, m.team_1, m.team_2, m.match_name, m.format,
	m.winner, m.venue, o.umpire_1, o.umpire_2, o.tv_umpire, o.match_referee
	FROM matches m LEFT JOIN match_officials o ON o.match_id = m.match_id`

const playerColumns = `player_id, name, name_key, profile_ref, role, birth_date, birth_place,
	nickname, height, batting_style, bowling_style, bio_fetched_at IS NOT NULL
	FROM players`

// registerPreparedStatements registers every statement the store uses.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Matches
		"upsert_match": `
			INSERT INTO matches (match_id, slug, team_1, team_2, match_name, format, winner, venue)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (match_id) DO UPDATE SET
				slug       = COALESCE(EXCLUDED.slug, matches.slug),
				team_1     = COALESCE(EXCLUDED.team_1, matches.team_1),
				team_2     = COALESCE(EXCLUDED.team_2, matches.team_2),
				match_name = COALESCE(EXCLUDED.match_name, matches.match_name),
				format     = CASE WHEN EXCLUDED.format = 'Unknown' THEN matches.format ELSE EXCLUDED.format END,
				winner     = COALESCE(EXCLUDED.winner, matches.winner),
				venue      = COALESCE(EXCLUDED.venue, matches.venue),
				updated_at = NOW()`,
		"upsert_officials": `
			INSERT INTO match_officials (match_id, umpire_1, umpire_2, tv_umpire, match_referee)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (match_id) DO UPDATE SET
				umpire_1      = COALESCE(EXCLUDED.umpire_1, match_officials.umpire_1),
				umpire_2      = COALESCE(EXCLUDED.umpire_2, match_officials.umpire_2),
				tv_umpire     = COALESCE(EXCLUDED.tv_umpire, match_officials.tv_umpire),
				match_referee = COALESCE(EXCLUDED.match_referee, match_officials.match_referee),
				updated_at    = NOW()`,
		"match_exists": "SELECT EXISTS (SELECT 1 FROM matches WHERE match_id = $1)",
		"match_by_id":  "SELECT " + matchColumns + " WHERE m.match_id = $1",
		"list_matches": "SELECT " + matchColumns + `
			WHERE ($1 = '' OR m.format = $1)
			ORDER BY m.created_at DESC, m.match_id DESC LIMIT $2 OFFSET $3`,

		// Players
		"player_by_profile":  "SELECT " + playerColumns + " WHERE profile_ref = $1",
		"player_by_name_key": "SELECT " + playerColumns + " WHERE name_key = $1 ORDER BY player_id LIMIT 1",
		"player_by_id":       "SELECT " + playerColumns + " WHERE player_id = $1",
		"player_exists":      "SELECT EXISTS (SELECT 1 FROM players WHERE player_id = $1)",
		"list_players":       "SELECT " + playerColumns + " ORDER BY player_id",
		"insert_player": `
			INSERT INTO players (name, name_key, profile_ref, role)
			VALUES ($1, $2, $3, $4)
			RETURNING player_id`,
		"attach_profile_ref": `
			UPDATE players SET profile_ref = $2, updated_at = NOW()
			WHERE player_id = $1 AND profile_ref IS NULL`,
		"update_player_role": `UPDATE players SET role = $2, updated_at = NOW() WHERE player_id = $1`,
		"set_biography": `
			UPDATE players SET
				birth_date     = COALESCE($2, birth_date),
				birth_place    = COALESCE($3, birth_place),
				nickname       = COALESCE($4, nickname),
				height         = COALESCE($5, height),
				batting_style  = COALESCE($6, batting_style),
				bowling_style  = COALESCE($7, bowling_style),
				bio_fetched_at = NOW(),
				updated_at     = NOW()
			WHERE player_id = $1`,

		// Details
		"upsert_batter": `
			INSERT INTO batter_scorecards (match_id, player_id, team, innings, position,
				dismissal_kind, dismissal, runs, balls, fours, sixes, strike_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (match_id, player_id) DO UPDATE SET
				team           = COALESCE(EXCLUDED.team, batter_scorecards.team),
				innings        = EXCLUDED.innings,
				position       = EXCLUDED.position,
				dismissal_kind = EXCLUDED.dismissal_kind,
				dismissal      = EXCLUDED.dismissal,
				runs           = EXCLUDED.runs,
				balls          = EXCLUDED.balls,
				fours          = EXCLUDED.fours,
				sixes          = EXCLUDED.sixes,
				strike_rate    = EXCLUDED.strike_rate,
				updated_at     = NOW()`,
		"upsert_bowler": `
			INSERT INTO bowler_scorecards (match_id, player_id, team, against, innings, position,
				balls, maidens, runs, wickets, no_balls, wides, economy)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (match_id, player_id) DO UPDATE SET
				team       = COALESCE(EXCLUDED.team, bowler_scorecards.team),
				against    = COALESCE(EXCLUDED.against, bowler_scorecards.against),
				innings    = EXCLUDED.innings,
				position   = EXCLUDED.position,
				balls      = EXCLUDED.balls,
				maidens    = EXCLUDED.maidens,
				runs       = EXCLUDED.runs,
				wickets    = EXCLUDED.wickets,
				no_balls   = EXCLUDED.no_balls,
				wides      = EXCLUDED.wides,
				economy    = EXCLUDED.economy,
				updated_at = NOW()`,
		"upsert_award": `
			INSERT INTO match_awards (match_id, player_id, award_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (match_id, player_id, award_name) DO UPDATE SET updated_at = NOW()`,
		"upsert_squad": `
			INSERT INTO match_squads (match_id, player_id, team, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (match_id, player_id) DO UPDATE SET
				team       = EXCLUDED.team,
				role       = COALESCE(EXCLUDED.role, match_squads.role),
				updated_at = NOW()`,
		"match_batting": `
			SELECT b.player_id, p.name, p.profile_ref, b.team, b.innings, b.position,
				b.dismissal_kind, b.dismissal, b.runs, b.balls, b.fours, b.sixes, b.strike_rate
			FROM batter_scorecards b JOIN players p ON p.player_id = b.player_id
			WHERE b.match_id = $1
			ORDER BY b.innings, b.position, b.player_id`,
		"match_bowling": `
			SELECT b.player_id, p.name, p.profile_ref, b.team, b.against, b.innings, b.position,
				b.balls, b.maidens, b.runs, b.wickets, b.no_balls, b.wides, b.economy
			FROM bowler_scorecards b JOIN players p ON p.player_id = b.player_id
			WHERE b.match_id = $1
			ORDER BY b.innings, b.position, b.player_id`,
		"match_awards": `
			SELECT a.player_id, p.name, p.profile_ref, a.award_name
			FROM match_awards a JOIN players p ON p.player_id = a.player_id
			WHERE a.match_id = $1
			ORDER BY a.award_name, a.player_id`,
		"match_squad": `
			SELECT s.player_id, p.name, p.profile_ref, s.team, s.role
			FROM match_squads s JOIN players p ON p.player_id = s.player_id
			WHERE s.match_id = $1
			ORDER BY s.team, s.player_id`,

		// Stage runs
		"pending_matches": "SELECT " + matchColumns + `
			LEFT JOIN stage_runs r ON r.match_id = m.match_id AND r.stage = $1
			WHERE r.match_id IS NULL
			   OR (r.status <> 'completed' AND ($2::int = 0 OR r.attempts < $2::int))
			ORDER BY m.created_at, m.match_id`,
		"mark_stage_complete": `
			INSERT INTO stage_runs (match_id, stage, status, completed_at)
			VALUES ($1, $2, 'completed', NOW())
			ON CONFLICT (match_id, stage) DO UPDATE SET
				status       = 'completed',
				last_error   = NULL,
				completed_at = EXCLUDED.completed_at,
				updated_at   = NOW()`,
		"record_stage_failure": `
			INSERT INTO stage_runs (match_id, stage, status, attempts, last_error)
			VALUES ($1, $2, 'failed', 1, $3)
			ON CONFLICT (match_id, stage) DO UPDATE SET
				status     = CASE WHEN stage_runs.status = 'completed' THEN 'completed' ELSE 'failed' END,
				attempts   = stage_runs.attempts + 1,
				last_error = EXCLUDED.last_error,
				updated_at = NOW()`,
		"reset_stage": `
			DELETE FROM stage_runs
			WHERE stage = $1 AND (cardinality($2::text[]) = 0 OR match_id = ANY($2::text[]))`,
		"stage_runs_for_match": `
			SELECT match_id, stage, status, attempts, last_error, completed_at, updated_at
			FROM stage_runs WHERE match_id = $1 ORDER BY stage`,
		"count_matches": "SELECT COUNT(*) FROM matches",
		"stage_counts": `
			SELECT stage,
				COUNT(*) FILTER (WHERE status = 'completed'),
				COUNT(*) FILTER (WHERE status = 'failed'),
				COUNT(*) FILTER (WHERE status = 'failed' AND $1::int > 0 AND attempts >= $1::int)
			FROM stage_runs GROUP BY stage`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return errors.Wrapf(err, "prepare %q", name)
		}
	}
	return nil
}

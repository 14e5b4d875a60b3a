// Package pgstore implements store.Store on PostgreSQL through the shared
// pgx pool and its named prepared statements.
package pgstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/cricket-data/internal/db"
	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	*queries
	pool *db.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an open pool.
func New(pool *db.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

// Migrate re-applies the schema. db.New already migrates before preparing
// statements; this keeps the store.Store contract for the migrate command.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, db.Schema)
	return errors.Wrap(err, "apply postgres schema")
}

// WithTx runs fn inside a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.pool.HealthCheck(ctx), "ping postgres")
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// queries implements store.Tx and store.Reader over a dbtx.
type queries struct {
	db dbtx
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// --------------------------------------------------------------------------
// Matches
// --------------------------------------------------------------------------

func scanMatch(row pgx.Row) (provider.Match, error) {
	var (
		m                                 provider.Match
		format                            string
		slug, t1, t2, name, winner, venue *string
		ump1, ump2, tv, referee           *string
	)
	if err := row.Scan(&m.ID, &slug, &t1, &t2, &name, &format,
		&winner, &venue, &ump1, &ump2, &tv, &referee); err != nil {
		return m, err
	}
	m.Slug, m.Team1, m.Team2, m.Name = str(slug), str(t1), str(t2), str(name)
	m.Format = provider.Format(format)
	m.Winner, m.Venue = str(winner), str(venue)
	m.Officials = provider.Officials{
		Umpire1: str(ump1), Umpire2: str(ump2),
		TVUmpire: str(tv), MatchReferee: str(referee),
	}
	return m, nil
}

func (q *queries) UpsertMatch(ctx context.Context, m provider.Match) error {
	if m.ID == "" {
		return errors.New("upsert match: empty match id")
	}
	format := m.Format
	if format == "" {
		format = provider.FormatUnknown
	}

	if _, err := q.db.Exec(ctx, "upsert_match",
		m.ID, store.NilEmpty(m.Slug), store.NilEmpty(m.Team1), store.NilEmpty(m.Team2),
		store.NilEmpty(m.Name), string(format), store.NilEmpty(m.Winner), store.NilEmpty(m.Venue),
	); err != nil {
		return errors.Wrapf(err, "upsert match %s", m.ID)
	}

	if m.Officials.IsZero() {
		return nil
	}
	o := m.Officials
	_, err := q.db.Exec(ctx, "upsert_officials",
		m.ID, store.NilEmpty(o.Umpire1), store.NilEmpty(o.Umpire2),
		store.NilEmpty(o.TVUmpire), store.NilEmpty(o.MatchReferee))
	return errors.Wrapf(err, "upsert officials %s", m.ID)
}

func (q *queries) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, "match_exists", matchID).Scan(&ok)
	return ok, errors.Wrapf(err, "match exists %s", matchID)
}

func (q *queries) GetMatch(ctx context.Context, matchID string) (provider.Match, error) {
	m, err := scanMatch(q.db.QueryRow(ctx, "match_by_id", matchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return m, errors.Wrapf(store.ErrNotFound, "match %s", matchID)
	}
	return m, errors.Wrapf(err, "get match %s", matchID)
}

func (q *queries) ListMatches(ctx context.Context, f store.MatchFilter) ([]provider.Match, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	return q.queryMatches(ctx, "list_matches", string(f.Format), limit, f.Offset)
}

func (q *queries) queryMatches(ctx context.Context, stmt string, args ...any) ([]provider.Match, error) {
	rows, err := q.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", stmt)
	}
	defer rows.Close()

	var out []provider.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan match")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Players
// --------------------------------------------------------------------------

func scanPlayer(row pgx.Row) (provider.Player, error) {
	var (
		p                                               provider.Player
		ref, role, born, place, nick, height, bat, bowl *string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.NameKey, &ref, &role, &born, &place,
		&nick, &height, &bat, &bowl, &p.HasBio); err != nil {
		return p, err
	}
	p.ProfileRef, p.Role = str(ref), str(role)
	p.Bio = provider.Biography{
		BirthDate: str(born), BirthPlace: str(place), Nickname: str(nick),
		Height: str(height), BattingStyle: str(bat), BowlingStyle: str(bowl),
	}
	return p, nil
}

func (q *queries) getPlayer(ctx context.Context, stmt string, arg any) (provider.Player, error) {
	p, err := scanPlayer(q.db.QueryRow(ctx, stmt, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, store.ErrNotFound
	}
	return p, err
}

func (q *queries) PlayerByProfileRef(ctx context.Context, ref string) (provider.Player, error) {
	p, err := q.getPlayer(ctx, "player_by_profile", ref)
	return p, errors.Wrapf(err, "player by profile %s", ref)
}

func (q *queries) PlayerByNameKey(ctx context.Context, key string) (provider.Player, error) {
	p, err := q.getPlayer(ctx, "player_by_name_key", key)
	return p, errors.Wrapf(err, "player by name %q", key)
}

func (q *queries) GetPlayer(ctx context.Context, id int64) (provider.Player, error) {
	p, err := q.getPlayer(ctx, "player_by_id", id)
	return p, errors.Wrapf(err, "player %d", id)
}

func (q *queries) PlayerExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, "player_exists", id).Scan(&ok)
	return ok, errors.Wrapf(err, "player exists %d", id)
}

func (q *queries) InsertPlayer(ctx context.Context, p provider.Player) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, "insert_player",
		p.Name, p.NameKey, store.NilEmpty(p.ProfileRef), store.NilEmpty(p.Role)).Scan(&id)
	return id, errors.Wrapf(err, "insert player %q", p.Name)
}

func (q *queries) AttachProfileRef(ctx context.Context, id int64, ref string) error {
	if ref == "" {
		return nil
	}
	_, err := q.db.Exec(ctx, "attach_profile_ref", id, ref)
	return errors.Wrapf(err, "attach profile %s to player %d", ref, id)
}

func (q *queries) UpdatePlayerRole(ctx context.Context, id int64, role string) error {
	if role == "" {
		return nil
	}
	_, err := q.db.Exec(ctx, "update_player_role", id, role)
	return errors.Wrapf(err, "update role of player %d", id)
}

func (q *queries) SetBiography(ctx context.Context, id int64, bio provider.Biography) error {
	_, err := q.db.Exec(ctx, "set_biography", id,
		store.NilEmpty(bio.BirthDate), store.NilEmpty(bio.BirthPlace), store.NilEmpty(bio.Nickname),
		store.NilEmpty(bio.Height), store.NilEmpty(bio.BattingStyle), store.NilEmpty(bio.BowlingStyle))
	return errors.Wrapf(err, "set biography of player %d", id)
}

func (q *queries) ListPlayers(ctx context.Context) ([]provider.Player, error) {
	rows, err := q.db.Query(ctx, "list_players")
	if err != nil {
		return nil, errors.Wrap(err, "list players")
	}
	defer rows.Close()

	var out []provider.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan player")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Details
// --------------------------------------------------------------------------

// foreignKeyViolation is SQLSTATE foreign_key_violation.
const foreignKeyViolation = "23503"

func (q *queries) upsertDetail(ctx context.Context, table, matchID string, playerID int64, stmt string, args ...any) error {
	ok, err := q.MatchExists(ctx, matchID)
	if err != nil {
		return err
	}
	if !ok {
		return &store.IntegrityError{Table: table, MatchID: matchID, PlayerID: playerID, Reason: "match not registered"}
	}
	if ok, err = q.PlayerExists(ctx, playerID); err != nil {
		return err
	}
	if !ok {
		return &store.IntegrityError{Table: table, MatchID: matchID, PlayerID: playerID, Reason: "player not resolved"}
	}

	if _, err := q.db.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return &store.IntegrityError{Table: table, MatchID: matchID, PlayerID: playerID, Reason: pgErr.Message}
		}
		return errors.Wrapf(err, "upsert %s (%s, %d)", table, matchID, playerID)
	}
	return nil
}

func (q *queries) UpsertBatter(ctx context.Context, matchID string, playerID int64, l provider.BatterLine) error {
	return q.upsertDetail(ctx, "batter_scorecards", matchID, playerID, "upsert_batter",
		matchID, playerID, store.NilEmpty(l.Team), l.Innings, l.Position,
		string(l.Dismissal.Kind), store.NilEmpty(l.Dismissal.Raw),
		l.Runs, l.Balls, l.Fours, l.Sixes, l.StrikeRate)
}

func (q *queries) UpsertBowler(ctx context.Context, matchID string, playerID int64, l provider.BowlerLine) error {
	return q.upsertDetail(ctx, "bowler_scorecards", matchID, playerID, "upsert_bowler",
		matchID, playerID, store.NilEmpty(l.Team), store.NilEmpty(l.Against), l.Innings, l.Position,
		l.Overs.Balls, l.Maidens, l.Runs, l.Wickets, l.NoBalls, l.Wides, l.Economy)
}

func (q *queries) UpsertAward(ctx context.Context, matchID string, playerID int64, awardName string) error {
	return q.upsertDetail(ctx, "match_awards", matchID, playerID, "upsert_award",
		matchID, playerID, awardName)
}

func (q *queries) UpsertSquad(ctx context.Context, matchID string, playerID int64, e provider.SquadEntry) error {
	return q.upsertDetail(ctx, "match_squads", matchID, playerID, "upsert_squad",
		matchID, playerID, e.Team, store.NilEmpty(e.Role))
}

func (q *queries) Scorecard(ctx context.Context, matchID string) (store.Scorecard, error) {
	sc := store.Scorecard{MatchID: matchID}

	rows, err := q.db.Query(ctx, "match_batting", matchID)
	if err != nil {
		return sc, errors.Wrapf(err, "query batting %s", matchID)
	}
	for rows.Next() {
		var (
			r               store.BattingRow
			ref, team, desc *string
			kind            string
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &team, &r.Innings, &r.Position,
			&kind, &desc, &r.Runs, &r.Balls, &r.Fours, &r.Sixes, &r.StrikeRate); err != nil {
			rows.Close()
			return sc, errors.Wrap(err, "scan batting row")
		}
		r.Player.ProfileRef, r.Team = str(ref), str(team)
		r.Dismissal = provider.Dismissal{Kind: provider.DismissalKind(kind), Raw: str(desc)}
		sc.Batting = append(sc.Batting, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sc, err
	}

	rows, err = q.db.Query(ctx, "match_bowling", matchID)
	if err != nil {
		return sc, errors.Wrapf(err, "query bowling %s", matchID)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r                  store.BowlingRow
			ref, team, against *string
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &team, &against, &r.Innings, &r.Position,
			&r.Overs.Balls, &r.Maidens, &r.Runs, &r.Wickets, &r.NoBalls, &r.Wides, &r.Economy); err != nil {
			return sc, errors.Wrap(err, "scan bowling row")
		}
		r.Player.ProfileRef, r.Team, r.Against = str(ref), str(team), str(against)
		sc.Bowling = append(sc.Bowling, r)
	}
	return sc, rows.Err()
}

func (q *queries) Awards(ctx context.Context, matchID string) ([]store.AwardRow, error) {
	rows, err := q.db.Query(ctx, "match_awards", matchID)
	if err != nil {
		return nil, errors.Wrapf(err, "query awards %s", matchID)
	}
	defer rows.Close()

	var out []store.AwardRow
	for rows.Next() {
		var (
			r   store.AwardRow
			ref *string
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &r.AwardName); err != nil {
			return nil, errors.Wrap(err, "scan award")
		}
		r.Player.ProfileRef = str(ref)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) Squad(ctx context.Context, matchID string) ([]store.SquadRow, error) {
	rows, err := q.db.Query(ctx, "match_squad", matchID)
	if err != nil {
		return nil, errors.Wrapf(err, "query squad %s", matchID)
	}
	defer rows.Close()

	var out []store.SquadRow
	for rows.Next() {
		var (
			r         store.SquadRow
			ref, role *string
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &r.Team, &role); err != nil {
			return nil, errors.Wrap(err, "scan squad entry")
		}
		r.Player.ProfileRef, r.Role = str(ref), str(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Stage runs
// --------------------------------------------------------------------------

func (q *queries) PendingMatches(ctx context.Context, stage provider.Stage, maxFailures int) ([]provider.Match, error) {
	return q.queryMatches(ctx, "pending_matches", string(stage), maxFailures)
}

func (q *queries) MarkStageComplete(ctx context.Context, stage provider.Stage, matchID string) error {
	_, err := q.db.Exec(ctx, "mark_stage_complete", matchID, string(stage))
	return errors.Wrapf(err, "mark %s complete for %s", stage, matchID)
}

func (q *queries) RecordStageFailure(ctx context.Context, stage provider.Stage, matchID, msg string) error {
	_, err := q.db.Exec(ctx, "record_stage_failure", matchID, string(stage), store.Truncate(msg, 500))
	return errors.Wrapf(err, "record %s failure for %s", stage, matchID)
}

func (q *queries) ResetStage(ctx context.Context, stage provider.Stage, matchIDs []string) (int64, error) {
	if matchIDs == nil {
		matchIDs = []string{}
	}
	tag, err := q.db.Exec(ctx, "reset_stage", string(stage), matchIDs)
	if err != nil {
		return 0, errors.Wrapf(err, "reset stage %s", stage)
	}
	return tag.RowsAffected(), nil
}

func (q *queries) StageRunsFor(ctx context.Context, matchID string) ([]store.StageRun, error) {
	rows, err := q.db.Query(ctx, "stage_runs_for_match", matchID)
	if err != nil {
		return nil, errors.Wrapf(err, "query stage runs %s", matchID)
	}
	defer rows.Close()

	var out []store.StageRun
	for rows.Next() {
		var (
			r           store.StageRun
			stage       string
			lastErr     *string
			completedAt *time.Time
		)
		if err := rows.Scan(&r.MatchID, &stage, &r.Status, &r.Attempts, &lastErr, &completedAt, &r.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan stage run")
		}
		r.Stage, r.LastError, r.CompletedAt = provider.Stage(stage), str(lastErr), completedAt
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) StageStatus(ctx context.Context, maxFailures int) ([]store.StageStatus, error) {
	var registered int
	if err := q.db.QueryRow(ctx, "count_matches").Scan(&registered); err != nil {
		return nil, errors.Wrap(err, "count matches")
	}

	rows, err := q.db.Query(ctx, "stage_counts", maxFailures)
	if err != nil {
		return nil, errors.Wrap(err, "count stage runs")
	}
	defer rows.Close()

	type counts struct{ completed, failing, exhausted int }
	byStage := make(map[provider.Stage]counts)
	for rows.Next() {
		var (
			stage string
			c     counts
		)
		if err := rows.Scan(&stage, &c.completed, &c.failing, &c.exhausted); err != nil {
			return nil, errors.Wrap(err, "scan stage counts")
		}
		byStage[provider.Stage(stage)] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]store.StageStatus, 0, len(provider.Stages))
	for _, s := range provider.Stages {
		c := byStage[s]
		out = append(out, store.BuildStageStatus(s, registered, c.completed, c.failing, c.exhausted))
	}
	return out, nil
}

package sqlitestore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
	"github.com/albapepper/cricket-data/internal/store"
)

// queries implements store.Tx and store.Reader over a dbtx.
type queries struct {
	db dbtx
}

type scanner interface {
	Scan(dest ...any) error
}

// --------------------------------------------------------------------------
// Matches
// --------------------------------------------------------------------------

const matchColumns = `m.match_id, m.slug, m.team_1, m.team_2, m.match_name, m.format,
	m.winner, m.venue, o.umpire_1, o.umpire_2, o.tv_umpire, o.match_referee`

const matchFrom = ` FROM matches m LEFT JOIN match_officials o ON o.match_id = m.match_id`

func scanMatch(row scanner) (provider.Match, error) {
	var (
		m                                 provider.Match
		format                            string
		slug, t1, t2, name, winner, venue sql.NullString
		ump1, ump2, tv, referee           sql.NullString
	)
	if err := row.Scan(&m.ID, &slug, &t1, &t2, &name, &format,
		&winner, &venue, &ump1, &ump2, &tv, &referee); err != nil {
		return m, err
	}
	m.Slug, m.Team1, m.Team2, m.Name = slug.String, t1.String, t2.String, name.String
	m.Format = provider.Format(format)
	m.Winner, m.Venue = winner.String, venue.String
	m.Officials = provider.Officials{
		Umpire1: ump1.String, Umpire2: ump2.String,
		TVUmpire: tv.String, MatchReferee: referee.String,
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

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, slug, team_1, team_2, match_name, format, winner, venue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO UPDATE SET
			slug       = COALESCE(excluded.slug, matches.slug),
			team_1     = COALESCE(excluded.team_1, matches.team_1),
			team_2     = COALESCE(excluded.team_2, matches.team_2),
			match_name = COALESCE(excluded.match_name, matches.match_name),
			format     = CASE WHEN excluded.format = 'Unknown' THEN matches.format ELSE excluded.format END,
			winner     = COALESCE(excluded.winner, matches.winner),
			venue      = COALESCE(excluded.venue, matches.venue),
			updated_at = `+now,
		m.ID, store.NilEmpty(m.Slug), store.NilEmpty(m.Team1), store.NilEmpty(m.Team2),
		store.NilEmpty(m.Name), string(format), store.NilEmpty(m.Winner), store.NilEmpty(m.Venue),
	)
	if err != nil {
		return errors.Wrapf(err, "upsert match %s", m.ID)
	}

	if m.Officials.IsZero() {
		return nil
	}
	o := m.Officials
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO match_officials (match_id, umpire_1, umpire_2, tv_umpire, match_referee)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (match_id) DO UPDATE SET
			umpire_1      = COALESCE(excluded.umpire_1, match_officials.umpire_1),
			umpire_2      = COALESCE(excluded.umpire_2, match_officials.umpire_2),
			tv_umpire     = COALESCE(excluded.tv_umpire, match_officials.tv_umpire),
			match_referee = COALESCE(excluded.match_referee, match_officials.match_referee),
			updated_at    = `+now,
		m.ID, store.NilEmpty(o.Umpire1), store.NilEmpty(o.Umpire2),
		store.NilEmpty(o.TVUmpire), store.NilEmpty(o.MatchReferee),
	)
	return errors.Wrapf(err, "upsert officials %s", m.ID)
}

func (q *queries) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE match_id = ?`, matchID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "match exists %s", matchID)
	}
	return true, nil
}

func (q *queries) GetMatch(ctx context.Context, matchID string) (provider.Match, error) {
	m, err := scanMatch(q.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+matchFrom+` WHERE m.match_id = ?`, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return m, errors.Wrapf(store.ErrNotFound, "match %s", matchID)
	}
	return m, errors.Wrapf(err, "get match %s", matchID)
}

func (q *queries) ListMatches(ctx context.Context, f store.MatchFilter) ([]provider.Match, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + matchColumns + matchFrom
	var args []any
	if f.Format != "" {
		query += ` WHERE m.format = ?`
		args = append(args, string(f.Format))
	}
	query += ` ORDER BY m.created_at DESC, m.match_id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	return q.queryMatches(ctx, query, args...)
}

func (q *queries) queryMatches(ctx context.Context, query string, args ...any) ([]provider.Match, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query matches")
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

const playerColumns = `player_id, name, name_key, profile_ref, role, birth_date, birth_place,
	nickname, height, batting_style, bowling_style, bio_fetched_at IS NOT NULL`

func scanPlayer(row scanner) (provider.Player, error) {
	var (
		p                                               provider.Player
		ref, role, born, place, nick, height, bat, bowl sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.NameKey, &ref, &role, &born, &place,
		&nick, &height, &bat, &bowl, &p.HasBio); err != nil {
		return p, err
	}
	p.ProfileRef, p.Role = ref.String, role.String
	p.Bio = provider.Biography{
		BirthDate: born.String, BirthPlace: place.String, Nickname: nick.String,
		Height: height.String, BattingStyle: bat.String, BowlingStyle: bowl.String,
	}
	return p, nil
}

func (q *queries) getPlayerWhere(ctx context.Context, where string, arg any) (provider.Player, error) {
	p, err := scanPlayer(q.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE `+where+` ORDER BY player_id LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return p, store.ErrNotFound
	}
	return p, err
}

func (q *queries) PlayerByProfileRef(ctx context.Context, ref string) (provider.Player, error) {
	p, err := q.getPlayerWhere(ctx, "profile_ref = ?", ref)
	return p, errors.Wrapf(err, "player by profile %s", ref)
}

func (q *queries) PlayerByNameKey(ctx context.Context, key string) (provider.Player, error) {
	p, err := q.getPlayerWhere(ctx, "name_key = ?", key)
	return p, errors.Wrapf(err, "player by name %q", key)
}

func (q *queries) GetPlayer(ctx context.Context, id int64) (provider.Player, error) {
	p, err := q.getPlayerWhere(ctx, "player_id = ?", id)
	return p, errors.Wrapf(err, "player %d", id)
}

func (q *queries) PlayerExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT 1 FROM players WHERE player_id = ?`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "player exists %d", id)
	}
	return true, nil
}

func (q *queries) InsertPlayer(ctx context.Context, p provider.Player) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO players (name, name_key, profile_ref, role)
		VALUES (?, ?, ?, ?)
		RETURNING player_id`,
		p.Name, p.NameKey, store.NilEmpty(p.ProfileRef), store.NilEmpty(p.Role),
	).Scan(&id)
	return id, errors.Wrapf(err, "insert player %q", p.Name)
}

func (q *queries) AttachProfileRef(ctx context.Context, id int64, ref string) error {
	if ref == "" {
		return nil
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE players SET profile_ref = ?, updated_at = `+now+`
		WHERE player_id = ? AND profile_ref IS NULL`, ref, id)
	return errors.Wrapf(err, "attach profile %s to player %d", ref, id)
}

func (q *queries) UpdatePlayerRole(ctx context.Context, id int64, role string) error {
	if role == "" {
		return nil
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE players SET role = ?, updated_at = `+now+`
		WHERE player_id = ?`, role, id)
	return errors.Wrapf(err, "update role of player %d", id)
}

func (q *queries) SetBiography(ctx context.Context, id int64, bio provider.Biography) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE players SET
			birth_date     = COALESCE(?, birth_date),
			birth_place    = COALESCE(?, birth_place),
			nickname       = COALESCE(?, nickname),
			height         = COALESCE(?, height),
			batting_style  = COALESCE(?, batting_style),
			bowling_style  = COALESCE(?, bowling_style),
			bio_fetched_at = `+now+`,
			updated_at     = `+now+`
		WHERE player_id = ?`,
		store.NilEmpty(bio.BirthDate), store.NilEmpty(bio.BirthPlace), store.NilEmpty(bio.Nickname),
		store.NilEmpty(bio.Height), store.NilEmpty(bio.BattingStyle), store.NilEmpty(bio.BowlingStyle),
		id,
	)
	return errors.Wrapf(err, "set biography of player %d", id)
}

func (q *queries) ListPlayers(ctx context.Context) ([]provider.Player, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players ORDER BY player_id`)
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

// checkRefs rejects detail rows whose parents are missing.
func (q *queries) checkRefs(ctx context.Context, table, matchID string, playerID int64) error {
	ok, err := q.MatchExists(ctx, matchID)
	if err != nil {
		return err
	}
	if !ok {
		return &store.IntegrityError{Table: table, MatchID: matchID, PlayerID: playerID, Reason: "match not registered"}
	}
	ok, err = q.PlayerExists(ctx, playerID)
	if err != nil {
		return err
	}
	if !ok {
		return &store.IntegrityError{Table: table, MatchID: matchID, PlayerID: playerID, Reason: "player not resolved"}
	}
	return nil
}

func (q *queries) upsertDetail(ctx context.Context, table, matchID string, playerID int64, query string, args ...any) error {
	if err := q.checkRefs(ctx, table, matchID, playerID); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		if isForeignKeyViolation(err) {
			return &store.IntegrityError{Table: table, MatchID: matchID, PlayerID: playerID, Reason: err.Error()}
		}
		return errors.Wrapf(err, "upsert %s (%s, %d)", table, matchID, playerID)
	}
	return nil
}

func (q *queries) UpsertBatter(ctx context.Context, matchID string, playerID int64, l provider.BatterLine) error {
	return q.upsertDetail(ctx, "batter_scorecards", matchID, playerID, `
		INSERT INTO batter_scorecards (match_id, player_id, team, innings, position,
			dismissal_kind, dismissal, runs, balls, fours, sixes, strike_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id, player_id) DO UPDATE SET
			team           = COALESCE(excluded.team, batter_scorecards.team),
			innings        = excluded.innings,
			position       = excluded.position,
			dismissal_kind = excluded.dismissal_kind,
			dismissal      = excluded.dismissal,
			runs           = excluded.runs,
			balls          = excluded.balls,
			fours          = excluded.fours,
			sixes          = excluded.sixes,
			strike_rate    = excluded.strike_rate,
			updated_at     = `+now,
		matchID, playerID, store.NilEmpty(l.Team), l.Innings, l.Position,
		string(l.Dismissal.Kind), store.NilEmpty(l.Dismissal.Raw),
		l.Runs, l.Balls, l.Fours, l.Sixes, l.StrikeRate,
	)
}

func (q *queries) UpsertBowler(ctx context.Context, matchID string, playerID int64, l provider.BowlerLine) error {
	return q.upsertDetail(ctx, "bowler_scorecards", matchID, playerID, `
		INSERT INTO bowler_scorecards (match_id, player_id, team, against, innings, position,
			balls, maidens, runs, wickets, no_balls, wides, economy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (match_id, player_id) DO UPDATE SET
			team       = COALESCE(excluded.team, bowler_scorecards.team),
			against    = COALESCE(excluded.against, bowler_scorecards.against),
			innings    = excluded.innings,
			position   = excluded.position,
			balls      = excluded.balls,
			maidens    = excluded.maidens,
			runs       = excluded.runs,
			wickets    = excluded.wickets,
			no_balls   = excluded.no_balls,
			wides      = excluded.wides,
			economy    = excluded.economy,
			updated_at = `+now,
		matchID, playerID, store.NilEmpty(l.Team), store.NilEmpty(l.Against), l.Innings, l.Position,
		l.Overs.Balls, l.Maidens, l.Runs, l.Wickets, l.NoBalls, l.Wides, l.Economy,
	)
}

func (q *queries) UpsertAward(ctx context.Context, matchID string, playerID int64, awardName string) error {
	return q.upsertDetail(ctx, "match_awards", matchID, playerID, `
		INSERT INTO match_awards (match_id, player_id, award_name)
		VALUES (?, ?, ?)
		ON CONFLICT (match_id, player_id, award_name) DO UPDATE SET updated_at = `+now,
		matchID, playerID, awardName,
	)
}

func (q *queries) UpsertSquad(ctx context.Context, matchID string, playerID int64, e provider.SquadEntry) error {
	return q.upsertDetail(ctx, "match_squads", matchID, playerID, `
		INSERT INTO match_squads (match_id, player_id, team, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (match_id, player_id) DO UPDATE SET
			team       = excluded.team,
			role       = COALESCE(excluded.role, match_squads.role),
			updated_at = `+now,
		matchID, playerID, e.Team, store.NilEmpty(e.Role),
	)
}

func (q *queries) Scorecard(ctx context.Context, matchID string) (store.Scorecard, error) {
	sc := store.Scorecard{MatchID: matchID}

	rows, err := q.db.QueryContext(ctx, `
		SELECT b.player_id, p.name, p.profile_ref, b.team, b.innings, b.position,
			b.dismissal_kind, b.dismissal, b.runs, b.balls, b.fours, b.sixes, b.strike_rate
		FROM batter_scorecards b JOIN players p ON p.player_id = b.player_id
		WHERE b.match_id = ?
		ORDER BY b.innings, b.position, b.player_id`, matchID)
	if err != nil {
		return sc, errors.Wrapf(err, "query batting %s", matchID)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r               store.BattingRow
			ref, team, desc sql.NullString
			kind            string
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &team, &r.Innings, &r.Position,
			&kind, &desc, &r.Runs, &r.Balls, &r.Fours, &r.Sixes, &r.StrikeRate); err != nil {
			return sc, errors.Wrap(err, "scan batting row")
		}
		r.Player.ProfileRef, r.Team = ref.String, team.String
		r.Dismissal = provider.Dismissal{Kind: provider.DismissalKind(kind), Raw: desc.String}
		sc.Batting = append(sc.Batting, r)
	}
	if err := rows.Err(); err != nil {
		return sc, err
	}

	rows, err = q.db.QueryContext(ctx, `
		SELECT b.player_id, p.name, p.profile_ref, b.team, b.against, b.innings, b.position,
			b.balls, b.maidens, b.runs, b.wickets, b.no_balls, b.wides, b.economy
		FROM bowler_scorecards b JOIN players p ON p.player_id = b.player_id
		WHERE b.match_id = ?
		ORDER BY b.innings, b.position, b.player_id`, matchID)
	if err != nil {
		return sc, errors.Wrapf(err, "query bowling %s", matchID)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r                  store.BowlingRow
			ref, team, against sql.NullString
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &team, &against, &r.Innings, &r.Position,
			&r.Overs.Balls, &r.Maidens, &r.Runs, &r.Wickets, &r.NoBalls, &r.Wides, &r.Economy); err != nil {
			return sc, errors.Wrap(err, "scan bowling row")
		}
		r.Player.ProfileRef, r.Team, r.Against = ref.String, team.String, against.String
		sc.Bowling = append(sc.Bowling, r)
	}
	return sc, rows.Err()
}

func (q *queries) Awards(ctx context.Context, matchID string) ([]store.AwardRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT a.player_id, p.name, p.profile_ref, a.award_name
		FROM match_awards a JOIN players p ON p.player_id = a.player_id
		WHERE a.match_id = ?
		ORDER BY a.award_name, a.player_id`, matchID)
	if err != nil {
		return nil, errors.Wrapf(err, "query awards %s", matchID)
	}
	defer rows.Close()

	var out []store.AwardRow
	for rows.Next() {
		var (
			r   store.AwardRow
			ref sql.NullString
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &r.AwardName); err != nil {
			return nil, errors.Wrap(err, "scan award")
		}
		r.Player.ProfileRef = ref.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) Squad(ctx context.Context, matchID string) ([]store.SquadRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT s.player_id, p.name, p.profile_ref, s.team, s.role
		FROM match_squads s JOIN players p ON p.player_id = s.player_id
		WHERE s.match_id = ?
		ORDER BY s.team, s.player_id`, matchID)
	if err != nil {
		return nil, errors.Wrapf(err, "query squad %s", matchID)
	}
	defer rows.Close()

	var out []store.SquadRow
	for rows.Next() {
		var (
			r         store.SquadRow
			ref, role sql.NullString
		)
		if err := rows.Scan(&r.PlayerID, &r.Player.Name, &ref, &r.Team, &role); err != nil {
			return nil, errors.Wrap(err, "scan squad entry")
		}
		r.Player.ProfileRef, r.Role = ref.String, role.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// --------------------------------------------------------------------------
// Stage runs
// --------------------------------------------------------------------------

func (q *queries) PendingMatches(ctx context.Context, stage provider.Stage, maxFailures int) ([]provider.Match, error) {
	return q.queryMatches(ctx, `SELECT `+matchColumns+matchFrom+`
		LEFT JOIN stage_runs r ON r.match_id = m.match_id AND r.stage = ?
		WHERE r.match_id IS NULL
		   OR (r.status <> 'completed' AND (? = 0 OR r.attempts < ?))
		ORDER BY m.created_at, m.match_id`,
		string(stage), maxFailures, maxFailures)
}

func (q *queries) MarkStageComplete(ctx context.Context, stage provider.Stage, matchID string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stage_runs (match_id, stage, status, completed_at)
		VALUES (?, ?, 'completed', `+now+`)
		ON CONFLICT (match_id, stage) DO UPDATE SET
			status       = 'completed',
			last_error   = NULL,
			completed_at = excluded.completed_at,
			updated_at   = `+now,
		matchID, string(stage))
	return errors.Wrapf(err, "mark %s complete for %s", stage, matchID)
}

func (q *queries) RecordStageFailure(ctx context.Context, stage provider.Stage, matchID, msg string) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stage_runs (match_id, stage, status, attempts, last_error)
		VALUES (?, ?, 'failed', 1, ?)
		ON CONFLICT (match_id, stage) DO UPDATE SET
			status     = CASE WHEN stage_runs.status = 'completed' THEN 'completed' ELSE 'failed' END,
			attempts   = stage_runs.attempts + 1,
			last_error = excluded.last_error,
			updated_at = `+now,
		matchID, string(stage), store.Truncate(msg, 500))
	return errors.Wrapf(err, "record %s failure for %s", stage, matchID)
}

func (q *queries) ResetStage(ctx context.Context, stage provider.Stage, matchIDs []string) (int64, error) {
	query := `DELETE FROM stage_runs WHERE stage = ?`
	args := []any{string(stage)}
	if len(matchIDs) > 0 {
		query += ` AND match_id IN (?` + strings.Repeat(", ?", len(matchIDs)-1) + `)`
		for _, id := range matchIDs {
			args = append(args, id)
		}
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "reset stage %s", stage)
	}
	return res.RowsAffected()
}

func (q *queries) StageRunsFor(ctx context.Context, matchID string) ([]store.StageRun, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT match_id, stage, status, attempts, last_error, completed_at, updated_at
		FROM stage_runs WHERE match_id = ? ORDER BY stage`, matchID)
	if err != nil {
		return nil, errors.Wrapf(err, "query stage runs %s", matchID)
	}
	defer rows.Close()

	var out []store.StageRun
	for rows.Next() {
		var (
			r                    store.StageRun
			stage                string
			lastErr, completedAt sql.NullString
			updatedAt            string
		)
		if err := rows.Scan(&r.MatchID, &stage, &r.Status, &r.Attempts, &lastErr, &completedAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan stage run")
		}
		r.Stage, r.LastError = provider.Stage(stage), lastErr.String
		r.UpdatedAt = parseTime(updatedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) StageStatus(ctx context.Context, maxFailures int) ([]store.StageStatus, error) {
	var registered int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&registered); err != nil {
		return nil, errors.Wrap(err, "count matches")
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT stage,
			COALESCE(SUM(status = 'completed'), 0),
			COALESCE(SUM(status = 'failed'), 0),
			COALESCE(SUM(status = 'failed' AND ? > 0 AND attempts >= ?), 0)
		FROM stage_runs GROUP BY stage`, maxFailures, maxFailures)
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

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Package provider defines canonical data types that the source extractors
// normalize into. These structs are the contract between the scraping layer
// and the stage pipelines. Extractors output these and the store writes them.
//
// Free-text source fields are parsed into explicit numeric or enumerated
// values here; values that cannot be represented become an Unknown/Other
// variant rather than an error.
package provider

import "strings"

// --------------------------------------------------------------------------
// Stages
// --------------------------------------------------------------------------

// Stage is one detail-enrichment pass over registered matches.
type Stage string

const (
	StageScorecard Stage = "scorecard"
	StageAwards    Stage = "awards"
	StageSquad     Stage = "squad"
)

// Stages lists every detail stage in the recommended run order.
var Stages = []Stage{StageScorecard, StageAwards, StageSquad}

// ParseStage maps a user supplied stage name onto a Stage.
func ParseStage(s string) (Stage, bool) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case StageScorecard, "scorecards":
		return StageScorecard, true
	case StageAwards, "award":
		return StageAwards, true
	case StageSquad, "squads":
		return StageSquad, true
	}
	return "", false
}

// --------------------------------------------------------------------------
// Matches
// --------------------------------------------------------------------------

// Format is the international match format.
type Format string

const (
	FormatT20I    Format = "T20I"
	FormatODI     Format = "ODI"
	FormatTest    Format = "Test"
	FormatUnknown Format = "Unknown"
)

// Officials are the on-field and off-field officials of a match.
type Officials struct {
	Umpire1      string `json:"umpire_1,omitempty"`
	Umpire2      string `json:"umpire_2,omitempty"`
	TVUmpire     string `json:"tv_umpire,omitempty"`
	MatchReferee string `json:"match_referee,omitempty"`
}

// IsZero reports whether no official is known.
func (o Officials) IsZero() bool {
	return o == Officials{}
}

// Match is the canonical match shape written to the matches table.
// Empty strings mean "unknown" and never overwrite a stored value.
type Match struct {
	ID        string    `json:"match_id"`
	Slug      string    `json:"slug,omitempty"`
	Team1     string    `json:"team_1,omitempty"`
	Team2     string    `json:"team_2,omitempty"`
	Name      string    `json:"match_name,omitempty"`
	Format    Format    `json:"format"`
	Winner    string    `json:"winner,omitempty"`
	Venue     string    `json:"venue,omitempty"`
	Officials Officials `json:"officials"`
}

// Teams renders the team pair the way the source does ("India vs Australia").
func (m Match) Teams() string {
	if m.Team1 == "" && m.Team2 == "" {
		return ""
	}
	return orUnknown(m.Team1) + " vs " + orUnknown(m.Team2)
}

// MatchListing is one match link found on a listing page.
type MatchListing struct {
	MatchID string
	Slug    string
	Href    string
}

// MatchInfo is the metadata extracted from one match detail page.
type MatchInfo struct {
	Name      string
	Format    Format
	Winner    string
	Venue     string
	Officials Officials
}

// --------------------------------------------------------------------------
// Players
// --------------------------------------------------------------------------

// PlayerRef is a scraped reference to a player: a display name and, when the
// page links one, the source profile id.
type PlayerRef struct {
	Name       string `json:"name"`
	ProfileRef string `json:"profile_ref,omitempty"`
}

// Biography holds the profile fields filled in after first sighting.
type Biography struct {
	BirthDate    string `json:"birth_date,omitempty"`
	BirthPlace   string `json:"birth_place,omitempty"`
	Nickname     string `json:"nickname,omitempty"`
	Height       string `json:"height,omitempty"`
	BattingStyle string `json:"batting_style,omitempty"`
	BowlingStyle string `json:"bowling_style,omitempty"`
}

// IsZero reports whether the biography carries no fields.
func (b Biography) IsZero() bool {
	return b == Biography{}
}

// Player is the canonical player shape written to the players table.
type Player struct {
	ID         int64     `json:"player_id"`
	Name       string    `json:"name"`
	NameKey    string    `json:"-"`
	ProfileRef string    `json:"profile_ref,omitempty"`
	Role       string    `json:"role,omitempty"`
	Bio        Biography `json:"biography"`
	HasBio     bool      `json:"has_biography"`
}

// --------------------------------------------------------------------------
// Detail records
// --------------------------------------------------------------------------

// BatterLine is one batting row of a scorecard.
type BatterLine struct {
	Player     PlayerRef `json:"player"`
	Team       string    `json:"team,omitempty"`
	Innings    int       `json:"innings"`
	Position   int       `json:"position"`
	Dismissal  Dismissal `json:"dismissal"`
	Runs       int       `json:"runs"`
	Balls      int       `json:"balls"`
	Fours      int       `json:"fours"`
	Sixes      int       `json:"sixes"`
	StrikeRate float64   `json:"strike_rate"`
}

// BowlerLine is one bowling row of a scorecard. Against is the batting side
// of the innings; Team is filled in once the match teams are known.
type BowlerLine struct {
	Player   PlayerRef `json:"player"`
	Team     string    `json:"team,omitempty"`
	Against  string    `json:"against,omitempty"`
	Innings  int       `json:"innings"`
	Position int       `json:"position"`
	Overs    Overs     `json:"overs"`
	Maidens  int       `json:"maidens"`
	Runs     int       `json:"runs"`
	Wickets  int       `json:"wickets"`
	NoBalls  int       `json:"no_balls"`
	Wides    int       `json:"wides"`
	Economy  float64   `json:"economy"`
}

// ScorecardLine is either a batter or a bowler line.
type ScorecardLine struct {
	Batter *BatterLine
	Bowler *BowlerLine
}

// Player returns the player referenced by whichever line is set.
func (l ScorecardLine) Player() PlayerRef {
	if l.Batter != nil {
		return l.Batter.Player
	}
	if l.Bowler != nil {
		return l.Bowler.Player
	}
	return PlayerRef{}
}

// AwardEntry is one award given in a match.
type AwardEntry struct {
	Player    PlayerRef `json:"player"`
	AwardName string    `json:"award_name"`
}

// SquadEntry is one squad inclusion.
type SquadEntry struct {
	Player PlayerRef `json:"player"`
	Team   string    `json:"team"`
	Role   string    `json:"role,omitempty"`
}

// Opponent returns the other side of the match, or "" when team is not one
// of the two registered teams.
func (m Match) Opponent(team string) string {
	switch {
	case team == "":
		return ""
	case strings.EqualFold(team, m.Team1):
		return m.Team2
	case strings.EqualFold(team, m.Team2):
		return m.Team1
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

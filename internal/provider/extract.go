package provider

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTextLen = 100

var (
	innerWhitespace = regexp.MustCompile(`\s+`)
	matchIDPattern  = regexp.MustCompile(`/live-cricket-scores/(\d+)/`)
	profilePattern  = regexp.MustCompile(`/profiles/(\d+)(?:/|$)`)
	formatTokens    = regexp.MustCompile(`[A-Za-z0-9]+`)
)

// CleanText collapses whitespace and caps the result at 100 runes.
func CleanText(s string) string {
	s = strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
	if r := []rune(s); len(r) > maxTextLen {
		s = strings.TrimSpace(string(r[:maxTextLen]))
	}
	return s
}

// NormalizeName is the identity key for a player name: trimmed, inner
// whitespace collapsed, Unicode case folded.
func NormalizeName(name string) string {
	name = strings.TrimSpace(innerWhitespace.ReplaceAllString(name, " "))
	return cases.Fold().String(name)
}

// --------------------------------------------------------------------------
// Numeric cells
// --------------------------------------------------------------------------

// ParseCount parses an integer scorecard cell. Blank and "-" cells are zero.
func ParseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Newf("invalid count %q", s)
	}
	return n, nil
}

// ParseRate parses a strike rate or economy cell. Blank and "-" cells are zero.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, errors.Newf("invalid rate %q", s)
	}
	return f, nil
}

// Overs counts legal deliveries. "3.4" is three overs and four balls.
type Overs struct {
	Balls int `json:"balls"`
}

// ParseOvers parses the source's "O.B" notation.
func ParseOvers(s string) (Overs, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return Overs{}, nil
	}
	whole, part, hasPart := strings.Cut(s, ".")
	o, err := strconv.Atoi(whole)
	if err != nil || o < 0 {
		return Overs{}, errors.Newf("invalid overs %q", s)
	}
	b := 0
	if hasPart {
		b, err = strconv.Atoi(part)
		if err != nil || b < 0 || b > 5 {
			return Overs{}, errors.Newf("invalid overs %q", s)
		}
	}
	return Overs{Balls: o*6 + b}, nil
}

func (o Overs) String() string {
	return strconv.Itoa(o.Balls/6) + "." + strconv.Itoa(o.Balls%6)
}

// --------------------------------------------------------------------------
// Dismissals
// --------------------------------------------------------------------------

// DismissalKind is the constrained classification of a batter's dismissal.
type DismissalKind string

const (
	DismissalCaught           DismissalKind = "caught"
	DismissalBowled           DismissalKind = "bowled"
	DismissalLBW              DismissalKind = "lbw"
	DismissalRunOut           DismissalKind = "run out"
	DismissalStumped          DismissalKind = "stumped"
	DismissalNotOut           DismissalKind = "not out"
	DismissalHitWicket        DismissalKind = "hit wicket"
	DismissalRetiredHurt      DismissalKind = "retired hurt"
	DismissalRetiredOut       DismissalKind = "retired out"
	DismissalObstructingField DismissalKind = "obstructing the field"
	DismissalHandledBall      DismissalKind = "handled the ball"
	DismissalTimedOut         DismissalKind = "timed out"
	DismissalOther            DismissalKind = "other"
)

// Dismissal keeps the classification alongside the source text. Raw is the
// only information carried by DismissalOther.
type Dismissal struct {
	Kind DismissalKind `json:"kind"`
	Raw  string        `json:"raw,omitempty"`
}

// Checked before the bare "c " / "b " prefixes, which are ambiguous.
var dismissalPrefixes = []struct {
	prefix string
	kind   DismissalKind
}{
	{"not out", DismissalNotOut},
	{"batting", DismissalNotOut},
	{"retired hurt", DismissalRetiredHurt},
	{"retired out", DismissalRetiredOut},
	{"run out", DismissalRunOut},
	{"lbw", DismissalLBW},
	{"hit wicket", DismissalHitWicket},
	{"hit wkt", DismissalHitWicket},
	{"obstructing", DismissalObstructingField},
	{"handled the ball", DismissalHandledBall},
	{"timed out", DismissalTimedOut},
	{"stumped", DismissalStumped},
	{"st ", DismissalStumped},
	{"caught", DismissalCaught},
	{"c&b", DismissalCaught},
	{"c & b", DismissalCaught},
	{"c ", DismissalCaught},
	{"bowled", DismissalBowled},
	{"b ", DismissalBowled},
}

// ParseDismissal classifies free-text dismissal descriptions such as
// "c Smith b Starc" or "run out (Carey)". Unknown text maps to DismissalOther.
func ParseDismissal(text string) Dismissal {
	raw := CleanText(text)
	lower := strings.ToLower(raw)
	for _, p := range dismissalPrefixes {
		if strings.HasPrefix(lower, p.prefix) || lower == strings.TrimSpace(p.prefix) {
			return Dismissal{Kind: p.kind, Raw: raw}
		}
	}
	return Dismissal{Kind: DismissalOther, Raw: raw}
}

// --------------------------------------------------------------------------
// Formats and teams
// --------------------------------------------------------------------------

var formatLabels = map[string]Format{
	"T20I":  FormatT20I,
	"T20IS": FormatT20I,
	"ODI":   FormatODI,
	"ODIS":  FormatODI,
	"TEST":  FormatTest,
	"TESTS": FormatTest,
}

// ParseFormat maps a source label ("2nd T20I, India tour of ...") onto the
// fixed format enumeration. The first recognised token wins.
func ParseFormat(label string) Format {
	for _, tok := range formatTokens.FindAllString(strings.ToUpper(label), -1) {
		if f, ok := formatLabels[tok]; ok {
			return f
		}
	}
	return FormatUnknown
}

// TeamCodes maps the source's team abbreviations onto team names.
var TeamCodes = map[string]string{
	"IND": "India", "NZ": "New Zealand", "AUS": "Australia", "ENG": "England",
	"RSA": "South Africa", "SA": "South Africa", "PAK": "Pakistan", "WI": "West Indies",
	"SL": "Sri Lanka", "BAN": "Bangladesh", "AFG": "Afghanistan", "ZIM": "Zimbabwe",
	"IRE": "Ireland", "ITA": "Italy", "SCO": "Scotland", "NED": "Netherlands",
}

// TeamsFromSlug derives the team pair from a slug like
// "ind-vs-aus-1st-t20i-australia-tour-of-india-2024".
func TeamsFromSlug(slug string) (string, string) {
	parts := strings.Split(strings.ToUpper(slug), "-")
	for i, p := range parts {
		if p != "VS" {
			continue
		}
		t1, t2 := "Unknown", "Unknown"
		if i > 0 {
			t1 = teamName(parts[i-1])
		}
		if i < len(parts)-1 {
			t2 = teamName(parts[i+1])
		}
		return t1, t2
	}
	return "Unknown", "Unknown"
}

func teamName(code string) string {
	if name, ok := TeamCodes[code]; ok {
		return name
	}
	if code == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(code)
}

var titleSeparators = []string{",", "Squads", "Scorecard", "Live", "Match",
	"1st", "2nd", "3rd", "4th", "5th", "T20I", "ODI", "Test"}

// TeamsFromTitle splits a page title like "India vs Australia, 1st T20I"
// into its two team names.
func TeamsFromTitle(title string) (string, string, bool) {
	left, right, ok := strings.Cut(title, " vs ")
	if !ok {
		return "", "", false
	}
	idx := len(right)
	for _, sep := range titleSeparators {
		if i := strings.Index(right, sep); i != -1 && i < idx {
			idx = i
		}
	}
	t1 := CleanText(left)
	if _, after, found := strings.Cut(t1, "|"); found {
		t1 = CleanText(after)
	}
	t2 := CleanText(right[:idx])
	if t1 == "" || t2 == "" {
		return "", "", false
	}
	return t1, t2, true
}

// --------------------------------------------------------------------------
// Links
// --------------------------------------------------------------------------

var (
	internationalPatterns = []string{"tour-of", "t20i", "odi", "test-"}
	excludedPatterns      = []string{
		"premier-league", "super-smash", "big-bash", "psl", "ipl", "bpl", "cpl", "sa20",
		"hundred", "ranji", "u19", "women", "domestic", "first-class",
	}
)

// IsInternational reports whether a match link belongs to a men's
// international fixture rather than a franchise or domestic competition.
func IsInternational(href string) bool {
	lower := strings.ToLower(href)
	for _, p := range excludedPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	for _, p := range internationalPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// ListingFromHref extracts match identity from a live-score link.
func ListingFromHref(href string) (MatchListing, bool) {
	m := matchIDPattern.FindStringSubmatch(href)
	if m == nil {
		return MatchListing{}, false
	}
	slug := strings.TrimRight(href, "/")
	if i := strings.LastIndex(slug, "/"); i != -1 {
		slug = slug[i+1:]
	}
	if slug == m[1] {
		slug = ""
	}
	return MatchListing{MatchID: m[1], Slug: slug, Href: href}, true
}

// ProfileRefFromHref returns the numeric profile id of a "/profiles/{id}/..." link.
func ProfileRefFromHref(href string) string {
	if m := profilePattern.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return ""
}

// KnownRoles are the role suffixes squad pages append to names, longest first.
var KnownRoles = []string{
	"Batting Allrounder",
	"Bowling Allrounder",
	"WK-Batter",
	"Batter",
	"Bowler",
	"Head Coach",
	"Assistant coach",
	"Fielding Coach",
	"Batting Coach",
	"Bowling Coach",
	"Coach",
}

// SplitNameRole separates "Kristian ClarkeBowler" into "Kristian Clarke" and "Bowler".
func SplitNameRole(text string) (string, string) {
	text = CleanText(text)
	for _, role := range KnownRoles {
		if strings.HasSuffix(text, role) {
			return strings.TrimSpace(strings.TrimSuffix(text, role)), role
		}
	}
	return text, ""
}

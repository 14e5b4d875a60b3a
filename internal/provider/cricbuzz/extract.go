package cricbuzz

import (
	"bytes"
	"iter"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/cricket-data/internal/provider"
)

// Extractor parses Cricbuzz pages into canonical records. All sequences are
// lazy and restartable: each iteration re-reads the page body.
type Extractor struct{}

var (
	resultText    = regexp.MustCompile(`(?i)won by|match tied|no result`)
	captainMarker = regexp.MustCompile(`(?i)\s*\((?:c|wk|c\s*&\s*wk)\)`)
	inningsSuffix = regexp.MustCompile(`(?i)\s+innings.*$`)

	nameSuffixes = []string{" - Live Cricket Score", " Live Score", " - Scorecard"}
)

func parse(page provider.Page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", page.Ref)
	}
	return doc, nil
}

// --------------------------------------------------------------------------
// Match listing and metadata
// --------------------------------------------------------------------------

// Listings yields every live-score link on a listing page, in page order.
// Duplicates and non-international links are left to the caller.
func (Extractor) Listings(page provider.Page) iter.Seq2[provider.MatchListing, error] {
	return func(yield func(provider.MatchListing, error) bool) {
		doc, err := parse(page)
		if err != nil {
			yield(provider.MatchListing{}, err)
			return
		}
		doc.Find(`a[href*="/live-cricket-scores/"]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			listing, ok := provider.ListingFromHref(a.AttrOr("href", ""))
			if !ok {
				return true
			}
			return yield(listing, nil)
		})
	}
}

// MatchInfo reads the live-score page: match name, format, venue and the
// result banner.
func (Extractor) MatchInfo(page provider.Page) (provider.MatchInfo, error) {
	doc, err := parse(page)
	if err != nil {
		return provider.MatchInfo{}, err
	}

	info := provider.MatchInfo{Format: provider.FormatUnknown}
	if venue := doc.Find(`a[href*="/venues/"]`).First(); venue.Length() > 0 {
		info.Venue = provider.CleanText(venue.Text())
	}
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		name := strings.TrimSpace(h1.Text())
		for _, suffix := range nameSuffixes {
			name = strings.ReplaceAll(name, suffix, "")
		}
		info.Name = provider.CleanText(name)
		info.Format = provider.ParseFormat(info.Name)
	}
	if banner := doc.Find("#sticky-mcomplete div div").First(); banner.Length() > 0 {
		info.Winner = provider.CleanText(banner.Text())
	}
	return info, nil
}

// MatchFacts reads the match-facts page: venue, result text and officials.
func (Extractor) MatchFacts(page provider.Page) (provider.MatchInfo, error) {
	doc, err := parse(page)
	if err != nil {
		return provider.MatchInfo{}, err
	}

	info := provider.MatchInfo{Format: provider.FormatUnknown}
	venue := doc.Find(`a[href*="/venues/"]`).First()
	if venue.Length() == 0 {
		venue = doc.Find(`a[href*="/cricket-grounds/"]`).First()
	}
	if venue.Length() > 0 {
		info.Venue = provider.CleanText(venue.Text())
	}

	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := ownText(s); resultText.MatchString(t) {
			info.Winner = provider.CleanText(t)
			return false
		}
		return true
	})

	doc.Find(".cb-mtch-info-itm, .facts-row-grid").Each(func(_ int, row *goquery.Selection) {
		txt := provider.CleanText(spacedText(row))
		switch {
		case strings.HasPrefix(txt, "Umpires"):
			names := splitNames(trimLabel(txt, "Umpires"))
			if len(names) >= 1 {
				info.Officials.Umpire1 = names[0]
			}
			if len(names) >= 2 {
				info.Officials.Umpire2 = names[1]
			}
		case strings.HasPrefix(txt, "3rd Umpire"):
			info.Officials.TVUmpire = trimLabel(txt, "3rd Umpire")
		case strings.HasPrefix(txt, "Referee"):
			info.Officials.MatchReferee = trimLabel(txt, "Referee")
		}
	})
	return info, nil
}

// --------------------------------------------------------------------------
// Scorecard
// --------------------------------------------------------------------------

// Scorecard yields batter and bowler lines for every innings. Rows whose
// numeric cells cannot be parsed are yielded as *provider.ExtractionError.
func (Extractor) Scorecard(page provider.Page) iter.Seq2[provider.ScorecardLine, error] {
	return func(yield func(provider.ScorecardLine, error) bool) {
		doc, err := parse(page)
		if err != nil {
			yield(provider.ScorecardLine{}, err)
			return
		}

		doc.Find(`div[id^="innings_"]`).EachWithBreak(func(i int, inn *goquery.Selection) bool {
			innings := i + 1
			team := provider.CleanText(inningsSuffix.ReplaceAllString(
				inn.Find(".cb-scrd-hdr-rw span").First().Text(), ""))

			tables := inn.Find(".cb-ltst-wgt-hdr")
			cont := true
			pos := 0
			tables.Eq(0).Find(".cb-scrd-itms").EachWithBreak(func(_ int, row *goquery.Selection) bool {
				link := row.Find(`a[href*="/profiles/"]`).First()
				if link.Length() == 0 {
					return true
				}
				pos++
				line, err := batterLine(row, link, team, innings, pos)
				if err != nil {
					cont = yield(provider.ScorecardLine{}, err)
				} else {
					cont = yield(provider.ScorecardLine{Batter: &line}, nil)
				}
				return cont
			})
			if !cont {
				return false
			}
			pos = 0
			tables.Eq(1).Find(".cb-scrd-itms").EachWithBreak(func(_ int, row *goquery.Selection) bool {
				link := row.Find(`a[href*="/profiles/"]`).First()
				if link.Length() == 0 {
					return true
				}
				pos++
				line, err := bowlerLine(row, link, team, innings, pos)
				if err != nil {
					cont = yield(provider.ScorecardLine{}, err)
				} else {
					cont = yield(provider.ScorecardLine{Bowler: &line}, nil)
				}
				return cont
			})
			return cont
		})
	}
}

func batterLine(row, link *goquery.Selection, team string, innings, pos int) (provider.BatterLine, error) {
	cells := cellTexts(row.Find(".text-right"))
	if len(cells) < 5 {
		return provider.BatterLine{}, rowError(provider.PageScorecard, "cells", strings.Join(cells, "|"),
			errors.Newf("batting row has %d numeric cells, want 5", len(cells)))
	}

	line := provider.BatterLine{
		Player:    playerRef(link),
		Team:      team,
		Innings:   innings,
		Position:  pos,
		Dismissal: provider.ParseDismissal(row.Find(".cb-col-33").First().Text()),
	}
	var err error
	if line.Runs, err = provider.ParseCount(cells[0]); err != nil {
		return line, rowError(provider.PageScorecard, "runs", cells[0], err)
	}
	if line.Balls, err = provider.ParseCount(cells[1]); err != nil {
		return line, rowError(provider.PageScorecard, "balls", cells[1], err)
	}
	if line.Fours, err = provider.ParseCount(cells[2]); err != nil {
		return line, rowError(provider.PageScorecard, "fours", cells[2], err)
	}
	if line.Sixes, err = provider.ParseCount(cells[3]); err != nil {
		return line, rowError(provider.PageScorecard, "sixes", cells[3], err)
	}
	if line.StrikeRate, err = provider.ParseRate(cells[4]); err != nil {
		return line, rowError(provider.PageScorecard, "strike_rate", cells[4], err)
	}
	return line, nil
}

func bowlerLine(row, link *goquery.Selection, team string, innings, pos int) (provider.BowlerLine, error) {
	cells := cellTexts(row.Find(".text-right"))
	if len(cells) < 7 {
		return provider.BowlerLine{}, rowError(provider.PageScorecard, "cells", strings.Join(cells, "|"),
			errors.Newf("bowling row has %d numeric cells, want 7", len(cells)))
	}

	line := provider.BowlerLine{Player: playerRef(link), Against: team, Innings: innings, Position: pos}
	var err error
	if line.Overs, err = provider.ParseOvers(cells[0]); err != nil {
		return line, rowError(provider.PageScorecard, "overs", cells[0], err)
	}
	counts := []struct {
		field string
		dst   *int
	}{
		{"maidens", &line.Maidens},
		{"runs", &line.Runs},
		{"wickets", &line.Wickets},
		{"no_balls", &line.NoBalls},
		{"wides", &line.Wides},
	}
	for i, c := range counts {
		if *c.dst, err = provider.ParseCount(cells[i+1]); err != nil {
			return line, rowError(provider.PageScorecard, c.field, cells[i+1], err)
		}
	}
	if line.Economy, err = provider.ParseRate(cells[6]); err != nil {
		return line, rowError(provider.PageScorecard, "economy", cells[6], err)
	}
	return line, nil
}

// --------------------------------------------------------------------------
// Awards
// --------------------------------------------------------------------------

// Awards yields the "Player of the Match" style entries of a scorecard page.
func (Extractor) Awards(page provider.Page) iter.Seq2[provider.AwardEntry, error] {
	return func(yield func(provider.AwardEntry, error) bool) {
		doc, err := parse(page)
		if err != nil {
			yield(provider.AwardEntry{}, err)
			return
		}
		doc.Find(".cb-mom-itm").EachWithBreak(func(_ int, item *goquery.Selection) bool {
			label := strings.TrimSuffix(provider.CleanText(item.Find("span").First().Text()), ":")
			cont := true
			item.Find(`a[href*="/profiles/"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
				ref := playerRef(link)
				if label == "" {
					cont = yield(provider.AwardEntry{}, rowError(provider.PageScorecard, "award_name", ref.Name,
						errors.New("award without a label")))
					return cont
				}
				cont = yield(provider.AwardEntry{Player: ref, AwardName: label}, nil)
				return cont
			})
			return cont
		})
	}
}

// --------------------------------------------------------------------------
// Squads and profiles
// --------------------------------------------------------------------------

// Squad yields every profile link of both team columns of a squads page.
func (Extractor) Squad(page provider.Page) iter.Seq2[provider.SquadEntry, error] {
	return func(yield func(provider.SquadEntry, error) bool) {
		doc, err := parse(page)
		if err != nil {
			yield(provider.SquadEntry{}, err)
			return
		}

		t1, t2, ok := provider.TeamsFromTitle(doc.Find("title").First().Text())
		if !ok {
			t1, t2 = "Unknown A", "Unknown B"
		}
		teams := []string{t1, t2}

		cols := doc.Find(`div[class~="w-1/2"]`)
		if cols.Length() < 2 {
			yield(provider.SquadEntry{}, errors.Newf("squads page %s has %d team columns", page.Ref, cols.Length()))
			return
		}

		cols.Slice(0, 2).EachWithBreak(func(i int, col *goquery.Selection) bool {
			cont := true
			col.Find(`a[href*="/profiles/"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
				ref := playerRef(link)
				name, role := provider.SplitNameRole(ref.Name)
				ref.Name = name
				if name == "" {
					cont = yield(provider.SquadEntry{}, rowError(provider.PageSquads, "name", link.Text(),
						errors.New("empty player name")))
					return cont
				}
				cont = yield(provider.SquadEntry{Player: ref, Team: teams[i], Role: role}, nil)
				return cont
			})
			return cont
		})
	}
}

var profileLabels = []struct {
	label string
	set   func(*provider.Biography, string)
}{
	{"Born", func(b *provider.Biography, v string) { b.BirthDate = v }},
	{"Birth Place", func(b *provider.Biography, v string) { b.BirthPlace = v }},
	{"Nickname", func(b *provider.Biography, v string) { b.Nickname = v }},
	{"Height", func(b *provider.Biography, v string) { b.Height = v }},
	{"Batting Style", func(b *provider.Biography, v string) { b.BattingStyle = v }},
	{"Bowling Style", func(b *provider.Biography, v string) { b.BowlingStyle = v }},
}

// Profile reads the personal information block of a player profile page.
// Each label div is followed by a sibling div holding the value.
func (Extractor) Profile(page provider.Page) (provider.Biography, error) {
	doc, err := parse(page)
	if err != nil {
		return provider.Biography{}, err
	}

	var bio provider.Biography
	found := make(map[string]bool, len(profileLabels))
	doc.Find("div").Each(func(_ int, div *goquery.Selection) {
		text := strings.TrimSpace(div.Text())
		for _, pl := range profileLabels {
			if found[pl.label] || text != pl.label {
				continue
			}
			value := provider.CleanText(div.NextFiltered("div").Text())
			if value == "" || isProfileLabel(value) {
				continue
			}
			pl.set(&bio, value)
			found[pl.label] = true
		}
	})
	return bio, nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func playerRef(link *goquery.Selection) provider.PlayerRef {
	name := captainMarker.ReplaceAllString(link.Text(), "")
	return provider.PlayerRef{
		Name:       provider.CleanText(name),
		ProfileRef: provider.ProfileRefFromHref(link.AttrOr("href", "")),
	}
}

func rowError(kind provider.PageKind, field, value string, err error) error {
	return &provider.ExtractionError{Page: kind, Field: field, Value: value, Err: err}
}

func cellTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

// ownText is the text of s's direct text nodes, without descendants.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return b.String()
}

// spacedText joins the text of s's children with spaces so label and value
// cells stay separated.
func spacedText(s *goquery.Selection) string {
	children := s.Children()
	if children.Length() == 0 {
		return s.Text()
	}
	return strings.Join(cellTexts(children), " ")
}

func trimLabel(text, label string) string {
	text = strings.TrimPrefix(text, label)
	text = strings.TrimPrefix(text, ":")
	return strings.TrimSpace(text)
}

func splitNames(s string) []string {
	var out []string
	for _, n := range strings.Split(s, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func isProfileLabel(s string) bool {
	for _, pl := range profileLabels {
		if s == pl.label {
			return true
		}
	}
	return false
}

package maintenance

import (
	"cmp"
	"slices"

	"github.com/antzucaro/matchr"

	"github.com/albapepper/cricket-data/internal/provider"
)

// DefaultAuditThreshold is the Jaro-Winkler score above which two player
// names are reported as possible duplicates.
const DefaultAuditThreshold = 0.92

// DuplicatePair is two distinct players whose names are close enough to be
// the same person.
type DuplicatePair struct {
	A, B  provider.Player
	Score float64
}

// DuplicateCandidates compares every pair of players by normalized name and
// returns those scoring at least threshold, best first. Pairs with two
// different profile refs are known to be different people and are left out.
func DuplicateCandidates(players []provider.Player, threshold float64) []DuplicatePair {
	if threshold <= 0 {
		threshold = DefaultAuditThreshold
	}

	var out []DuplicatePair
	for i := range players {
		for j := i + 1; j < len(players); j++ {
			a, b := players[i], players[j]
			if a.ProfileRef != "" && b.ProfileRef != "" && a.ProfileRef != b.ProfileRef {
				continue
			}
			score := matchr.JaroWinkler(a.NameKey, b.NameKey, false)
			if score >= threshold {
				out = append(out, DuplicatePair{A: a, B: b, Score: score})
			}
		}
	}

	slices.SortStableFunc(out, func(x, y DuplicatePair) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		return cmp.Compare(x.A.ID, y.A.ID)
	})
	return out
}

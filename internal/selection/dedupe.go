package selection

import (
	"sort"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
)

// MaxBookmakersPerKey bounds how many prices survive per
// (fixture, market, side, line) when all bookmakers are requested.
const MaxBookmakersPerKey = 3

// Dedupe reduces candidates to best price per key. With allBookmakers it
// keeps up to MaxBookmakersPerKey distinct bookmakers ranked descending by
// odds; otherwise only the single highest-odds entry survives.
func Dedupe(cands []domain.QualifiedSelection, allBookmakers bool) []domain.QualifiedSelection {
	groups := map[string][]domain.QualifiedSelection{}
	var order []string
	for _, c := range cands {
		k := c.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	keep := 1
	if allBookmakers {
		keep = MaxBookmakersPerKey
	}

	var out []domain.QualifiedSelection
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool { return g[i].Odds > g[j].Odds })

		seen := map[string]bool{}
		for _, c := range g {
			if seen[c.Bookmaker] {
				continue
			}
			seen[c.Bookmaker] = true
			out = append(out, c)
			if len(seen) == keep {
				break
			}
		}
	}
	return out
}

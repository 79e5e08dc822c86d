package ticket

import (
	"math/rand"
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
)

// ShuffleRequest drives the randomized composer. A supplied seed makes the
// draw fully deterministic for the same candidate pool.
type ShuffleRequest struct {
	LockedLegIDs   []string
	TargetLegs     int
	MinOdds        float64
	MaxOdds        float64
	IncludeMarkets []domain.Market
	PreviousHash   string
	Seed           int64
	HasSeed        bool
}

// Selection weight mix: mostly model edge, some price, a pinch of noise.
const (
	weightEdge   = 0.65
	weightOdds   = 0.25
	weightRandom = 0.10
)

// Shuffle keeps the locked legs and fills the remaining slots with a
// weighted Fisher-Yates draw over the candidate pool, one leg per fixture,
// inside the odds band. The second return value reports whether the result
// differs from the previously supplied ticket hash.
func Shuffle(pool []domain.QualifiedSelection, req ShuffleRequest, now time.Time) (Ticket, bool) {
	seed := req.Seed
	if !req.HasSeed {
		seed = now.UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	minOdds := req.MinOdds
	if minOdds < rules.MinOdds {
		minOdds = rules.MinOdds
	}
	maxOdds := req.MaxOdds
	if maxOdds == 0 || maxOdds > rules.MaxOdds {
		maxOdds = rules.MaxOdds
	}

	lockedIDs := map[string]bool{}
	for _, id := range req.LockedLegIDs {
		lockedIDs[id] = true
	}

	var legs []domain.QualifiedSelection
	usedFixtures := map[int64]bool{}
	for _, c := range pool {
		if lockedIDs[c.LegID()] && !usedFixtures[c.FixtureID] {
			legs = append(legs, c)
			usedFixtures[c.FixtureID] = true
		}
	}

	cands := filterPool(pool, req.IncludeMarkets, nil, minOdds, maxOdds)
	var open []domain.QualifiedSelection
	for _, c := range cands {
		if !usedFixtures[c.FixtureID] {
			open = append(open, c)
		}
	}

	weights := drawWeights(open, rng)
	for len(legs) < req.TargetLegs && len(open) > 0 {
		i := weightedPick(open, weights, rng)
		picked := open[i]
		legs = append(legs, picked)
		usedFixtures[picked.FixtureID] = true

		// drop the winner and everything else on its fixture
		var nextOpen []domain.QualifiedSelection
		var nextWeights []float64
		for j, c := range open {
			if c.FixtureID == picked.FixtureID {
				continue
			}
			nextOpen = append(nextOpen, c)
			nextWeights = append(nextWeights, weights[j])
		}
		open, weights = nextOpen, nextWeights
	}

	t := build(legs, ModeShuffle, &seed, now)
	t.PoolSize = len(pool)
	t.TargetMet = len(legs) == req.TargetLegs
	isDifferent := req.PreviousHash == "" || t.Hash != req.PreviousHash
	return t, isDifferent
}

// drawWeights assigns each candidate its selection weight, normalizing edge
// and odds over the open pool.
func drawWeights(open []domain.QualifiedSelection, rng *rand.Rand) []float64 {
	if len(open) == 0 {
		return nil
	}

	minEdge, maxEdge := open[0].EdgePct, open[0].EdgePct
	minOdds, maxOdds := open[0].Odds, open[0].Odds
	for _, c := range open[1:] {
		minEdge = min(minEdge, c.EdgePct)
		maxEdge = max(maxEdge, c.EdgePct)
		minOdds = min(minOdds, c.Odds)
		maxOdds = max(maxOdds, c.Odds)
	}

	norm := func(v, lo, hi float64) float64 {
		if hi == lo {
			return 0.5
		}
		return (v - lo) / (hi - lo)
	}

	weights := make([]float64, len(open))
	for i, c := range open {
		weights[i] = weightEdge*norm(c.EdgePct, minEdge, maxEdge) +
			weightOdds*norm(c.Odds, minOdds, maxOdds) +
			weightRandom*rng.Float64()
	}
	return weights
}

// weightedPick draws one index proportionally to weight.
func weightedPick(open []domain.QualifiedSelection, weights []float64, rng *rand.Rand) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return rng.Intn(len(open))
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return i
		}
	}
	return len(open) - 1
}

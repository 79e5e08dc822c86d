package ticket

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
)

const (
	ModeOptimizer = "optimizer"
	ModeShuffle   = "shuffle"
)

// Ticket is an immutable multi-leg composition. Total odds are the product
// of leg odds; the win probability is the product of leg model
// probabilities (legs are assumed independent, correlation is not checked).
type Ticket struct {
	Legs        []domain.QualifiedSelection `json:"legs"`
	TotalOdds   float64                     `json:"total_odds"`
	EstWinProb  float64                     `json:"estimated_win_prob"`
	Mode        string                      `json:"mode"`
	Seed        *int64                      `json:"seed,omitempty"`
	Hash        string                      `json:"ticket_hash"`
	PoolSize    int                         `json:"pool_size"`
	TargetMet   bool                        `json:"target_met"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// OptimizeRequest drives the deterministic composer.
type OptimizeRequest struct {
	TargetMin      float64
	TargetMax      float64
	MinLegs        int
	MaxLegs        int
	IncludeMarkets []domain.Market
	ExcludeMarkets []domain.Market
	Risk           string // "safe" | "balanced" | "aggressive"
}

func riskCeiling(risk string) float64 {
	switch risk {
	case "safe":
		return 1.9
	case "balanced":
		return 2.6
	default:
		return rules.MaxOdds
	}
}

// Optimize greedily assembles legs, one per fixture, until the running odds
// product lands inside [TargetMin, TargetMax] or the leg bound is hit. When
// the pool cannot reach the target the closest feasible ticket is returned,
// never an error; PoolSize tells the caller how thin the pool was.
func Optimize(pool []domain.QualifiedSelection, req OptimizeRequest, now time.Time) Ticket {
	cands := filterPool(pool, req.IncludeMarkets, req.ExcludeMarkets, rules.MinOdds, riskCeiling(req.Risk))
	cands = bestPerFixture(cands)

	// highest edge first, so equally useful legs favor model value
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].EdgePct > cands[j].EdgePct })

	target := math.Sqrt(req.TargetMin * req.TargetMax) // geometric midpoint
	product := 1.0
	var legs []domain.QualifiedSelection
	used := map[int]bool{}

	for len(legs) < req.MaxLegs {
		if len(legs) >= req.MinLegs && product >= req.TargetMin && product <= req.TargetMax {
			break
		}

		best := -1
		bestDist := math.MaxFloat64
		for i, c := range cands {
			if used[i] {
				continue
			}
			next := product * c.Odds
			if next > req.TargetMax && len(legs)+1 >= req.MinLegs {
				continue // would overshoot with the leg floor already met
			}
			dist := math.Abs(math.Log(next) - math.Log(target))
			if dist < bestDist {
				bestDist = dist
				best = i
			}
		}
		if best == -1 {
			break
		}

		used[best] = true
		legs = append(legs, cands[best])
		product *= cands[best].Odds
		cands = dropFixture(cands, used, cands[best].FixtureID)
	}

	t := build(legs, ModeOptimizer, nil, now)
	t.PoolSize = len(pool)
	t.TargetMet = len(legs) >= req.MinLegs && product >= req.TargetMin && product <= req.TargetMax
	return t
}

func filterPool(pool []domain.QualifiedSelection, include, exclude []domain.Market, minOdds, maxOdds float64) []domain.QualifiedSelection {
	inc := map[domain.Market]bool{}
	for _, m := range include {
		inc[m] = true
	}
	exc := map[domain.Market]bool{}
	for _, m := range exclude {
		exc[m] = true
	}

	var out []domain.QualifiedSelection
	for _, c := range pool {
		if len(inc) > 0 && !inc[c.Market] {
			continue
		}
		if exc[c.Market] {
			continue
		}
		if c.Odds < minOdds || c.Odds > maxOdds {
			continue
		}
		out = append(out, c)
	}
	return out
}

// bestPerFixture keeps the highest-edge candidate per fixture.
func bestPerFixture(cands []domain.QualifiedSelection) []domain.QualifiedSelection {
	best := map[int64]domain.QualifiedSelection{}
	var order []int64
	for _, c := range cands {
		cur, ok := best[c.FixtureID]
		if !ok {
			order = append(order, c.FixtureID)
			best[c.FixtureID] = c
			continue
		}
		if c.EdgePct > cur.EdgePct {
			best[c.FixtureID] = c
		}
	}
	out := make([]domain.QualifiedSelection, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// dropFixture marks every remaining candidate on the given fixture as used.
func dropFixture(cands []domain.QualifiedSelection, used map[int]bool, fixtureID int64) []domain.QualifiedSelection {
	for i, c := range cands {
		if c.FixtureID == fixtureID {
			used[i] = true
		}
	}
	return cands
}

func build(legs []domain.QualifiedSelection, mode string, seed *int64, now time.Time) Ticket {
	product := 1.0
	prob := 1.0
	for _, l := range legs {
		product *= l.Odds
		prob *= l.ModelProb
	}
	if len(legs) == 0 {
		product = 0
		prob = 0
	}
	return Ticket{
		Legs:        legs,
		TotalOdds:   product,
		EstWinProb:  prob,
		Mode:        mode,
		Seed:        seed,
		Hash:        ContentHash(legs),
		GeneratedAt: now,
	}
}

// ContentHash identifies a leg set independently of ordering, for "is this
// different from my last ticket" checks.
func ContentHash(legs []domain.QualifiedSelection) string {
	ids := make([]string, 0, len(legs))
	for _, l := range legs {
		ids = append(ids, l.LegID())
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "|")))
	return hex.EncodeToString(sum[:])
}

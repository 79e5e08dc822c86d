package rules

import (
	"fmt"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
)

// CurrentVersion tags every selection produced by the active matrix. Two
// versions never mix inside one run; consumers check the tag before mixing
// selection sets.
const CurrentVersion = "v2-2025-06"

// Pick is a qualification outcome: the fixture is eligible for this exact
// market/side/line. Odds lookup happens later, with no nearest-line
// fallback.
type Pick struct {
	Market domain.Market
	Side   domain.Side
	Line   float64
}

// Rule is one matrix row. Over rules fire when the combined metric reaches
// MinCombined; under rules when it stays at or below MaxCombined.
type Rule struct {
	Side        domain.Side
	Line        float64
	MinCombined float64
	MaxCombined float64
}

var matrices = map[string]map[domain.Market][]Rule{
	"v1-2024-11": {
		domain.MarketGoals: {
			{Side: domain.SideOver, Line: 2.5, MinCombined: 2.6},
		},
		domain.MarketCorners: {
			{Side: domain.SideOver, Line: 9.5, MinCombined: 10.0},
		},
	},
	"v2-2025-06": {
		domain.MarketGoals: {
			{Side: domain.SideOver, Line: 1.5, MinCombined: 2.2},
			{Side: domain.SideOver, Line: 2.5, MinCombined: 2.8},
			{Side: domain.SideUnder, Line: 2.5, MaxCombined: 2.0},
		},
		domain.MarketCorners: {
			{Side: domain.SideOver, Line: 8.5, MinCombined: 9.8},
			{Side: domain.SideOver, Line: 9.5, MinCombined: 10.5},
			{Side: domain.SideUnder, Line: 9.5, MaxCombined: 8.5},
		},
		domain.MarketCards: {
			{Side: domain.SideOver, Line: 4.5, MinCombined: 5.2},
			{Side: domain.SideUnder, Line: 4.5, MaxCombined: 3.6},
		},
	},
}

// Qualify resolves the combined metric value against one matrix version.
// Unknown versions are an error, never a silent fallback to another epoch.
func Qualify(version string, market domain.Market, combined float64) ([]Pick, error) {
	matrix, ok := matrices[version]
	if !ok {
		return nil, fmt.Errorf("rules: unknown version %q", version)
	}
	var picks []Pick
	for _, r := range matrix[market] {
		switch r.Side {
		case domain.SideOver:
			if combined >= r.MinCombined {
				picks = append(picks, Pick{Market: market, Side: r.Side, Line: r.Line})
			}
		case domain.SideUnder:
			if combined <= r.MaxCombined {
				picks = append(picks, Pick{Market: market, Side: r.Side, Line: r.Line})
			}
		}
	}
	return picks, nil
}

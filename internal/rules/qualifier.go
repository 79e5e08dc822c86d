package rules

import (
	"math"
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/model"
)

// Global odds band enforced on every qualified selection and ticket leg.
const (
	MinOdds = 1.25
	MaxOdds = 5.0
)

// Qualification stages, in drop order. Every candidate that does not make
// it through is counted at the stage that dropped it, so an empty result
// set is always explainable.
const (
	StageNoStats     = "no_stats"
	StageNoOdds      = "no_odds"
	StageNoPick      = "no_pick"
	StageNoExactLine = "no_exact_line"
	StageOutOfBand   = "out_of_band"
	StageSuspicious  = "suspicious"
	StageQualified   = "qualified"
)

// StageCounters tallies per-stage drops across a run.
type StageCounters map[string]int

func NewStageCounters() StageCounters { return StageCounters{} }

func (c StageCounters) Inc(stage string) { c[stage]++ }

func (c StageCounters) Merge(other StageCounters) {
	for k, v := range other {
		c[k] += v
	}
}

// Qualifier applies one matrix version plus the odds band and the
// suspicious-odds guard to a fixture's normalized quotes.
type Qualifier struct {
	Version string
	Params  model.Params
}

// Evaluate decides which of the fixture's quotes become tradable
// selections. Line matching is exact: a pick for over 2.5 never settles
// for a 2.25 or 3.0 quote.
func (q *Qualifier) Evaluate(
	fx domain.Fixture,
	home, away domain.TeamStatsSnapshot,
	quotes []domain.OddsQuote,
	counters StageCounters,
	now time.Time,
) ([]domain.QualifiedSelection, error) {
	if !home.Usable() || !away.Usable() {
		counters.Inc(StageNoStats)
		return nil, nil
	}
	if len(quotes) == 0 {
		counters.Inc(StageNoOdds)
		return nil, nil
	}

	forecast := model.Forecast(home, away, q.Params)
	sample := home.SampleSize
	if away.SampleSize < sample {
		sample = away.SampleSize
	}

	var out []domain.QualifiedSelection
	for _, market := range domain.TradableMarkets {
		combined := q.combined(market, forecast, home, away)
		picks, err := Qualify(q.Version, market, combined)
		if err != nil {
			return nil, err
		}
		if len(picks) == 0 {
			counters.Inc(StageNoPick)
			continue
		}

		for _, pick := range picks {
			matched := exactLineQuotes(quotes, pick)
			if len(matched) == 0 {
				counters.Inc(StageNoExactLine)
				continue
			}
			for _, quote := range matched {
				if quote.Odds < MinOdds || quote.Odds > MaxOdds {
					counters.Inc(StageOutOfBand)
					continue
				}
				prob := pickProbability(combined, pick)
				if suspicious(prob, quote.Odds) {
					counters.Inc(StageSuspicious)
					continue
				}
				counters.Inc(StageQualified)
				out = append(out, domain.QualifiedSelection{
					FixtureID:    fx.ID,
					LeagueID:     fx.LeagueID,
					CountryCode:  fx.CountryCode,
					Market:       pick.Market,
					Side:         pick.Side,
					Line:         pick.Line,
					Bookmaker:    quote.Bookmaker,
					Odds:         quote.Odds,
					ModelProb:    prob,
					EdgePct:      (prob - 1/quote.Odds) * 100,
					SampleSize:   sample,
					RulesVersion: q.Version,
					Live:         quote.Live,
					KickoffAt:    fx.KickoffAt,
					ComputedAt:   now,
				})
			}
		}
	}
	return out, nil
}

// combined is the per-market value looked up against the matrix. Goals use
// the shrunk, home-advantage-adjusted lambda; other markets use the plain
// sum of both teams' rolling averages.
func (q *Qualifier) combined(market domain.Market, f model.MatchForecast, home, away domain.TeamStatsSnapshot) float64 {
	if market == domain.MarketGoals {
		return f.LambdaTotal
	}
	return home.Avg(market) + away.Avg(market)
}

func pickProbability(combined float64, pick Pick) float64 {
	if pick.Side == domain.SideOver {
		return model.OverProbability(combined, pick.Line)
	}
	return model.UnderProbability(combined, pick.Line)
}

func exactLineQuotes(quotes []domain.OddsQuote, pick Pick) []domain.OddsQuote {
	var out []domain.OddsQuote
	for _, quote := range quotes {
		if quote.Market == pick.Market && quote.Side == pick.Side && sameLine(quote.Line, pick.Line) {
			out = append(out, quote)
		}
	}
	return out
}

func sameLine(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// suspicious rejects prices statistically implausible against the model:
// either the market disagrees with the model by a wide margin, or a
// near-impossible outcome is priced as likely.
func suspicious(modelProb, odds float64) bool {
	implied := 1 / odds
	if math.Abs(modelProb-implied) > 0.45 {
		return true
	}
	if modelProb < 0.02 && implied > 0.25 {
		return true
	}
	return false
}

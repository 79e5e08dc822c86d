package model

import (
	"math"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
)

// GoalCap bounds the modeled goal-count range; mass beyond it is dropped.
const GoalCap = 4

// Params are the league-level modeling constants.
type Params struct {
	LeagueMean    float64 // mean goals per team per match, ~1.4
	Tau           float64 // shrinkage weight, ~10
	HomeAdvantage float64 // multiplier on the home goal estimate, ~1.06
}

// Shrink pulls a small-sample average toward the league mean:
// (n·x + τ·mean) / (n + τ). With n=0 the estimate is exactly the mean.
func Shrink(avg float64, sampleSize int, tau, mean float64) float64 {
	n := float64(sampleSize)
	return (n*avg + tau*mean) / (n + tau)
}

// PoissonPMF is P(N = k) for N ~ Poisson(lambda).
func PoissonPMF(lambda float64, k int) float64 {
	if lambda <= 0 || k < 0 {
		return 0
	}
	logp := float64(k)*math.Log(lambda) - lambda - logFactorial(k)
	return math.Exp(logp)
}

func logFactorial(k int) float64 {
	var lf float64
	for i := 2; i <= k; i++ {
		lf += math.Log(float64(i))
	}
	return lf
}

// PoissonCDF is P(N <= k).
func PoissonCDF(lambda float64, k int) float64 {
	var sum float64
	for i := 0; i <= k; i++ {
		sum += PoissonPMF(lambda, i)
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

// OverProbability is P(N > line) for a half-step line (2.5 → P(N ≥ 3)).
func OverProbability(lambda, line float64) float64 {
	return 1 - PoissonCDF(lambda, int(math.Floor(line)))
}

// UnderProbability is P(N < line) for a half-step line (2.5 → P(N ≤ 2)).
func UnderProbability(lambda, line float64) float64 {
	return PoissonCDF(lambda, int(math.Floor(line)))
}

// MatchForecast carries the modeled goal distribution for one fixture.
type MatchForecast struct {
	LambdaHome  float64            `json:"lambda_home"`
	LambdaAway  float64            `json:"lambda_away"`
	LambdaTotal float64            `json:"lambda_total"`
	HomeMass    [GoalCap+1]float64 `json:"home_mass"`
	AwayMass    [GoalCap+1]float64 `json:"away_mass"`
	HomeCDF     [GoalCap+1]float64 `json:"home_cdf"`
	AwayCDF     [GoalCap+1]float64 `json:"away_cdf"`
}

// Forecast shrinks both teams' goal averages toward the league mean, applies
// the home-advantage multiplier to the home side and expands the Poisson
// mass and CDF over 0..GoalCap goals per side.
func Forecast(home, away domain.TeamStatsSnapshot, p Params) MatchForecast {
	lh := Shrink(home.AvgGoals, home.SampleSize, p.Tau, p.LeagueMean) * p.HomeAdvantage
	la := Shrink(away.AvgGoals, away.SampleSize, p.Tau, p.LeagueMean)

	f := MatchForecast{
		LambdaHome:  lh,
		LambdaAway:  la,
		LambdaTotal: lh + la,
	}
	for k := 0; k <= GoalCap; k++ {
		f.HomeMass[k] = PoissonPMF(lh, k)
		f.AwayMass[k] = PoissonPMF(la, k)
		if k == 0 {
			f.HomeCDF[k] = f.HomeMass[k]
			f.AwayCDF[k] = f.AwayMass[k]
		} else {
			f.HomeCDF[k] = f.HomeCDF[k-1] + f.HomeMass[k]
			f.AwayCDF[k] = f.AwayCDF[k-1] + f.AwayMass[k]
		}
	}
	return f
}

// OneXTwo is the modeled full-time outcome split.
type OneXTwo struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// OneXTwo sums the independent joint grid over the modeled range. The three
// probabilities sum to at most 1; tail mass beyond GoalCap is dropped.
func (f MatchForecast) OneXTwo() OneXTwo {
	var out OneXTwo
	for h := 0; h <= GoalCap; h++ {
		for a := 0; a <= GoalCap; a++ {
			p := f.HomeMass[h] * f.AwayMass[a]
			switch {
			case h > a:
				out.Home += p
			case h == a:
				out.Draw += p
			default:
				out.Away += p
			}
		}
	}
	return out
}

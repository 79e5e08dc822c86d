package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
)

func TestShrinkHandComputed(t *testing.T) {
	// (n*x + tau*mean) / (n + tau)
	got := Shrink(1.8, 5, 10, 1.4)
	assert.InDelta(t, (5*1.8+10*1.4)/15, got, 1e-12)

	got = Shrink(1.1, 5, 10, 1.4)
	assert.InDelta(t, (5*1.1+10*1.4)/15, got, 1e-12)
}

func TestShrinkMovesTowardMeanAsSampleShrinks(t *testing.T) {
	const mean = 1.4
	prev := math.Abs(Shrink(2.4, 5, 10, mean) - mean)
	for n := 4; n >= 0; n-- {
		cur := math.Abs(Shrink(2.4, n, 10, mean) - mean)
		assert.Less(t, cur, prev, "sample size %d should sit closer to the mean", n)
		prev = cur
	}
	assert.InDelta(t, mean, Shrink(2.4, 0, 10, mean), 1e-12)
}

func TestPoissonPMFProperties(t *testing.T) {
	for _, lambda := range []float64{0.3, 0.9, 1.4, 2.8, 9.5} {
		var sum float64
		for k := 0; k <= 40; k++ {
			p := PoissonPMF(lambda, k)
			require.GreaterOrEqual(t, p, 0.0)
			require.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "mass should sum to ~1 over a wide range, lambda=%v", lambda)
	}
}

func TestPoissonPMFDecreasesPastModeForSmallLambda(t *testing.T) {
	// for lambda < 1 the mode is 0, so the mass must be non-increasing in k
	const lambda = 0.8
	prev := PoissonPMF(lambda, 0)
	for k := 1; k <= 8; k++ {
		cur := PoissonPMF(lambda, k)
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestPoissonCDFNonDecreasing(t *testing.T) {
	const lambda = 2.7
	prev := 0.0
	for k := 0; k <= 10; k++ {
		cur := PoissonCDF(lambda, k)
		assert.GreaterOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, 1.0)
		prev = cur
	}
}

func TestOverUnderComplement(t *testing.T) {
	over := OverProbability(2.9, 2.5)
	under := UnderProbability(2.9, 2.5)
	assert.InDelta(t, 1.0, over+under, 1e-12)
}

func TestForecastScenario(t *testing.T) {
	p := Params{LeagueMean: 1.4, Tau: 10, HomeAdvantage: 1.06}
	home := domain.TeamStatsSnapshot{TeamID: 1, AvgGoals: 1.8, SampleSize: 5}
	away := domain.TeamStatsSnapshot{TeamID: 2, AvgGoals: 1.1, SampleSize: 5}

	f := Forecast(home, away, p)

	wantHome := (5*1.8 + 10*1.4) / 15 * 1.06
	wantAway := (5*1.1 + 10*1.4) / 15
	assert.InDelta(t, wantHome, f.LambdaHome, 1e-9)
	assert.InDelta(t, wantAway, f.LambdaAway, 1e-9)
	assert.InDelta(t, wantHome+wantAway, f.LambdaTotal, 1e-9)
	assert.Greater(t, f.LambdaHome, 0.0)
	assert.Greater(t, f.LambdaAway, 0.0)

	var sumHome float64
	for k := 0; k <= GoalCap; k++ {
		assert.GreaterOrEqual(t, f.HomeMass[k], 0.0)
		assert.GreaterOrEqual(t, f.AwayMass[k], 0.0)
		sumHome += f.HomeMass[k]
		if k > 0 {
			assert.GreaterOrEqual(t, f.HomeCDF[k], f.HomeCDF[k-1])
			assert.GreaterOrEqual(t, f.AwayCDF[k], f.AwayCDF[k-1])
		}
	}
	// tail mass beyond the cap is dropped, never invented
	assert.LessOrEqual(t, sumHome, 1.0)
	assert.InDelta(t, sumHome, f.HomeCDF[GoalCap], 1e-12)
}

func TestOneXTwoIsAProperSubdistribution(t *testing.T) {
	p := Params{LeagueMean: 1.4, Tau: 10, HomeAdvantage: 1.06}
	f := Forecast(
		domain.TeamStatsSnapshot{AvgGoals: 2.1, SampleSize: 5},
		domain.TeamStatsSnapshot{AvgGoals: 0.8, SampleSize: 4},
		p,
	)
	oxt := f.OneXTwo()
	assert.GreaterOrEqual(t, oxt.Home, 0.0)
	assert.GreaterOrEqual(t, oxt.Draw, 0.0)
	assert.GreaterOrEqual(t, oxt.Away, 0.0)
	assert.LessOrEqual(t, oxt.Home+oxt.Draw+oxt.Away, 1.0)
	// stronger home attack should tilt the split
	assert.Greater(t, oxt.Home, oxt.Away)
}

package stats

import (
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/feed"
)

// WindowSize caps how many finished fixtures feed a snapshot.
const WindowSize = 5

// BuildSnapshot computes plain arithmetic means over the team's most recent
// finished fixtures (at most WindowSize, newest first). No shrinkage here;
// that belongs to the probability model. A team with no finished fixtures
// still yields a snapshot with sample size 0, so zero-sample teams are
// identifiable instead of missing.
func BuildSnapshot(teamID int64, recent []feed.FixtureMetrics, now time.Time) domain.TeamStatsSnapshot {
	if len(recent) > WindowSize {
		recent = recent[:WindowSize]
	}

	snap := domain.TeamStatsSnapshot{
		TeamID:     teamID,
		SampleSize: len(recent),
		ComputedAt: now,
	}
	if len(recent) == 0 {
		return snap
	}

	var goals, corners, cards, fouls, offsides float64
	for _, m := range recent {
		snap.SourceFixtures = append(snap.SourceFixtures, m.FixtureID)
		goals += m.Goals
		corners += m.Corners
		cards += m.Cards
		fouls += m.Fouls
		offsides += m.Offsides
	}

	n := float64(len(recent))
	snap.AvgGoals = goals / n
	snap.AvgCorners = corners / n
	snap.AvgCards = cards / n
	snap.AvgFouls = fouls / n
	snap.AvgOffsides = offsides / n
	return snap
}

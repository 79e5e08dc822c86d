package pipeline

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/model"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/odds"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/selection"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/stats"
	"github.com/anjelocrypto/fixture-vision-sub001/pkg/contracts/events"
)

const defaultWindowHours = 48

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func windowDaysFor(windowHours int) int {
	if windowHours <= 0 {
		windowHours = defaultWindowHours
	}
	days := (windowHours + 23) / 24
	if days > selection.WindowDays {
		days = selection.WindowDays
	}
	return days
}

// runSelectionRefresh is the full pipeline: stats -> fetch/normalize ->
// qualify -> store, stage by stage, each stage reporting the uniform
// counter set.
func (o *Orchestrator) runSelectionRefresh(ctx context.Context, windowHours int, force bool, run *events.PipelineRun) {
	day0 := dayStart(time.Now())
	days := windowDaysFor(windowHours)
	deadline := time.Now().Add(o.SoftDeadline)

	fixtures, partial := o.fixturesStage(ctx, day0, days, force, deadline, run)

	snapshots, p := o.statsStage(ctx, fixtures, force, deadline, run)
	partial = partial || p

	cands, stages, p := o.qualifyStage(ctx, fixtures, snapshots, force, deadline, run)
	partial = partial || p

	o.storeStage(ctx, day0, days, cands, stages, run)
	run.Partial = partial
}

func (o *Orchestrator) runStatsRefresh(ctx context.Context, windowHours int, force bool, run *events.PipelineRun) {
	day0 := dayStart(time.Now())
	days := windowDaysFor(windowHours)
	deadline := time.Now().Add(o.SoftDeadline)

	fixtures, partial := o.fixturesStage(ctx, day0, days, force, deadline, run)
	// a stats refresh always overwrites snapshots wholesale
	_, p := o.statsStage(ctx, fixtures, true, deadline, run)
	run.Partial = partial || p
}

func (o *Orchestrator) runOddsBackfill(ctx context.Context, windowHours int, force bool, run *events.PipelineRun) {
	day0 := dayStart(time.Now())
	days := windowDaysFor(windowHours)
	deadline := time.Now().Add(o.SoftDeadline)

	fixtures, partial := o.fixturesStage(ctx, day0, days, force, deadline, run)

	stageStart := time.Now()
	c := &Counters{}
	p := o.forEach(ctx, len(fixtures), deadline, c, func(i int) error {
		fx := fixtures[i]
		c.Scanned.Add(1)
		if fx.Status != domain.StatusScheduled {
			c.Skipped.Add(1)
			return nil
		}
		_, fetched, err := o.loadQuotes(ctx, fx, force)
		if err != nil {
			return err
		}
		if fetched {
			c.Upserted.Add(1)
		} else {
			c.Skipped.Add(1)
		}
		return nil
	})
	run.Stages = append(run.Stages, c.Report("odds", stageStart))
	run.Partial = partial || p
}

// runResultsRefresh closes the book on recently finished fixtures and runs
// the retention cleanup on the results cache.
func (o *Orchestrator) runResultsRefresh(ctx context.Context, windowHours int, run *events.PipelineRun) {
	if windowHours <= 0 {
		windowHours = defaultWindowHours
	}
	now := time.Now()

	// look back over recent match days
	var fixtures []domain.Fixture
	for d := 0; d <= (windowHours+23)/24; d++ {
		day := dayStart(now.Add(-time.Duration(d) * 24 * time.Hour))
		var cached []domain.Fixture
		hit, err := o.Cache.Get(ctx, cachestore.EntityFixtures, day.Format("2006-01-02"), &cached)
		if err != nil || !hit.Found {
			continue
		}
		fixtures = append(fixtures, cached...)
	}

	stageStart := time.Now()
	c := &Counters{}
	deadline := now.Add(o.SoftDeadline)
	partial := o.forEach(ctx, len(fixtures), deadline, c, func(i int) error {
		fx := fixtures[i]
		c.Scanned.Add(1)
		if now.Sub(fx.KickoffAt) < 2*time.Hour {
			c.Skipped.Add(1)
			return nil
		}
		id := strconv.FormatInt(fx.ID, 10)

		var existing domain.FinalResult
		if hit, err := o.Cache.Get(ctx, cachestore.EntityResults, id, &existing); err == nil && hit.Found {
			c.Skipped.Add(1)
			return nil
		}

		res, err := o.Feed.FinalResult(ctx, fx.ID)
		if err != nil {
			return err
		}
		if res == nil {
			c.Skipped.Add(1) // still not finished
			return nil
		}
		if err := o.Cache.Put(ctx, cachestore.EntityResults, id, res); err != nil {
			return err
		}
		c.Upserted.Add(1)
		return nil
	})
	run.Stages = append(run.Stages, c.Report("results", stageStart))

	cleanupStart := time.Now()
	cc := &Counters{}
	removed, err := o.Cache.CleanupResults(ctx, o.ResultRetention)
	if err != nil {
		cc.Failed.Add(1)
		o.Log.Warn("results cleanup failed", zap.Error(err))
	}
	cc.Scanned.Add(int64(removed))
	cc.Upserted.Add(int64(removed))
	run.Stages = append(run.Stages, cc.Report("cleanup", cleanupStart))
	run.Partial = partial
}

// fixturesStage loads the fixture list for each day of the window,
// cache-first.
func (o *Orchestrator) fixturesStage(ctx context.Context, day0 time.Time, days int, force bool, deadline time.Time, run *events.PipelineRun) ([]domain.Fixture, bool) {
	stageStart := time.Now()
	c := &Counters{}

	var mu sync.Mutex
	var fixtures []domain.Fixture

	partial := o.forEach(ctx, days, deadline, c, func(i int) error {
		day := day0.AddDate(0, 0, i)
		id := day.Format("2006-01-02")
		c.Scanned.Add(1)

		var cached []domain.Fixture
		if !force {
			if hit, err := o.Cache.Get(ctx, cachestore.EntityFixtures, id, &cached); err == nil && hit.Found && hit.Fresh {
				c.Skipped.Add(1)
				mu.Lock()
				fixtures = append(fixtures, cached...)
				mu.Unlock()
				return nil
			}
		}

		fetched, err := o.Feed.FixturesByDate(ctx, day)
		if err != nil {
			return err
		}
		if err := o.Cache.Put(ctx, cachestore.EntityFixtures, id, fetched); err != nil {
			o.Log.Warn("fixture cache write failed", zap.String("day", id), zap.Error(err))
		}
		c.Upserted.Add(1)
		mu.Lock()
		fixtures = append(fixtures, fetched...)
		mu.Unlock()
		return nil
	})

	run.Stages = append(run.Stages, c.Report("fixtures", stageStart))
	return fixtures, partial
}

// statsStage ensures a snapshot exists for every team in the fixture set.
func (o *Orchestrator) statsStage(ctx context.Context, fixtures []domain.Fixture, force bool, deadline time.Time, run *events.PipelineRun) (map[int64]domain.TeamStatsSnapshot, bool) {
	stageStart := time.Now()
	c := &Counters{}

	seen := map[int64]bool{}
	var teams []int64
	for _, fx := range fixtures {
		for _, id := range []int64{fx.HomeTeamID, fx.AwayTeamID} {
			if !seen[id] {
				seen[id] = true
				teams = append(teams, id)
			}
		}
	}

	var mu sync.Mutex
	snapshots := map[int64]domain.TeamStatsSnapshot{}

	partial := o.forEach(ctx, len(teams), deadline, c, func(i int) error {
		teamID := teams[i]
		c.Scanned.Add(1)
		id := strconv.FormatInt(teamID, 10)

		var snap domain.TeamStatsSnapshot
		if !force {
			if hit, err := o.Cache.Get(ctx, cachestore.EntityTeamStats, id, &snap); err == nil && hit.Found && hit.Fresh {
				c.Skipped.Add(1)
				mu.Lock()
				snapshots[teamID] = snap
				mu.Unlock()
				return nil
			}
		}

		recent, err := o.Feed.TeamLastFinished(ctx, teamID, stats.WindowSize)
		if err != nil {
			return err
		}
		snap = stats.BuildSnapshot(teamID, recent, time.Now())
		if err := o.Cache.Put(ctx, cachestore.EntityTeamStats, id, snap); err != nil {
			o.Log.Warn("snapshot cache write failed", zap.Int64("team_id", teamID), zap.Error(err))
		}
		c.Upserted.Add(1)
		mu.Lock()
		snapshots[teamID] = snap
		mu.Unlock()
		return nil
	})

	run.Stages = append(run.Stages, c.Report("stats", stageStart))
	return snapshots, partial
}

// qualifyStage fetches and normalizes odds, caches the fixture forecast and
// runs the rules qualifier, collecting candidates and the per-stage drop
// breakdown.
func (o *Orchestrator) qualifyStage(ctx context.Context, fixtures []domain.Fixture, snapshots map[int64]domain.TeamStatsSnapshot, force bool, deadline time.Time, run *events.PipelineRun) ([]domain.QualifiedSelection, rules.StageCounters, bool) {
	stageStart := time.Now()
	c := &Counters{}

	var mu sync.Mutex
	var cands []domain.QualifiedSelection
	stageDrops := rules.NewStageCounters()

	partial := o.forEach(ctx, len(fixtures), deadline, c, func(i int) error {
		fx := fixtures[i]
		c.Scanned.Add(1)
		if fx.Status != domain.StatusScheduled {
			c.Skipped.Add(1)
			return nil
		}

		home, okH := snapshots[fx.HomeTeamID]
		away, okA := snapshots[fx.AwayTeamID]
		local := rules.NewStageCounters()
		if !okH || !okA {
			local.Inc(rules.StageNoStats)
			c.Skipped.Add(1)
			mu.Lock()
			stageDrops.Merge(local)
			mu.Unlock()
			return nil
		}

		quotes, _, err := o.loadQuotes(ctx, fx, force)
		if err != nil {
			return err
		}

		forecast := model.Forecast(home, away, o.Params)
		prediction := struct {
			Forecast model.MatchForecast `json:"forecast"`
			OneXTwo  model.OneXTwo       `json:"one_x_two"`
		}{forecast, forecast.OneXTwo()}
		if err := o.Cache.Put(ctx, cachestore.EntityPredictions, strconv.FormatInt(fx.ID, 10), prediction); err != nil {
			o.Log.Warn("prediction cache write failed", zap.Int64("fixture_id", fx.ID), zap.Error(err))
		}

		sels, err := o.Qualifier.Evaluate(fx, home, away, quotes, local, time.Now())
		if err != nil {
			return err
		}

		mu.Lock()
		stageDrops.Merge(local)
		cands = append(cands, sels...)
		mu.Unlock()

		if len(sels) == 0 {
			c.Skipped.Add(1) // QualificationMiss: visible in the stage breakdown
			return nil
		}
		c.Upserted.Add(int64(len(sels)))
		return nil
	})

	run.Stages = append(run.Stages, c.Report("qualify", stageStart))
	return cands, stageDrops, partial
}

// storeStage dedupes to best price (top-3 bookmakers retained) and swaps
// the window's qualified set, then parks the drop breakdown for debug
// reads.
func (o *Orchestrator) storeStage(ctx context.Context, day0 time.Time, days int, cands []domain.QualifiedSelection, stageDrops rules.StageCounters, run *events.PipelineRun) {
	stageStart := time.Now()
	c := &Counters{}
	c.Scanned.Add(int64(len(cands)))

	deduped := selection.Dedupe(cands, true)
	c.Skipped.Add(int64(len(cands) - len(deduped)))

	end := day0.AddDate(0, 0, days)
	n, err := o.Selections.ReplaceWindow(ctx, day0, end, deduped)
	c.Upserted.Add(int64(n))
	if err != nil {
		c.Failed.Add(1)
		o.Log.Error("selection window replace failed", zap.Error(err))
	}

	if err := o.Cache.Put(ctx, cachestore.EntityStages, day0.Format("2006-01-02"), stageDrops); err != nil {
		o.Log.Warn("stage breakdown cache write failed", zap.Error(err))
	}

	run.Stages = append(run.Stages, c.Report("store", stageStart))
}

// loadQuotes returns normalized quotes for the fixture, cache-first. Live
// odds are never cached. The bool reports whether the provider was hit.
func (o *Orchestrator) loadQuotes(ctx context.Context, fx domain.Fixture, force bool) ([]domain.OddsQuote, bool, error) {
	id := strconv.FormatInt(fx.ID, 10)
	live := fx.Status == domain.StatusLive

	if !force && !live {
		var cached []domain.OddsQuote
		if hit, err := o.Cache.Get(ctx, cachestore.EntityOdds, id, &cached); err == nil && hit.Found && hit.Fresh {
			return cached, false, nil
		}
	}

	raw, err := o.Feed.OddsByFixture(ctx, fx.ID)
	if err != nil {
		return nil, false, err
	}
	raw.Live = live
	quotes := odds.Normalize(raw, time.Now())
	if !live {
		if err := o.Cache.Put(ctx, cachestore.EntityOdds, id, quotes); err != nil {
			o.Log.Warn("odds cache write failed", zap.Int64("fixture_id", fx.ID), zap.Error(err))
		}
	}
	return quotes, true, nil
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/feed"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/joblock"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/model"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
	"github.com/anjelocrypto/fixture-vision-sub001/pkg/contracts/events"
)

// Job names double as lock keys.
const (
	JobSelectionRefresh = "selection_refresh"
	JobStatsRefresh     = "stats_refresh"
	JobOddsBackfill     = "odds_backfill"
	JobResultsRefresh   = "results_refresh"
)

func KnownJob(name string) bool {
	switch name {
	case JobSelectionRefresh, JobStatsRefresh, JobOddsBackfill, JobResultsRefresh:
		return true
	}
	return false
}

// Fetcher is the slice of the feed client the pipeline consumes.
type Fetcher interface {
	FixturesByDate(ctx context.Context, day time.Time) ([]domain.Fixture, error)
	TeamLastFinished(ctx context.Context, teamID int64, n int) ([]feed.FixtureMetrics, error)
	OddsByFixture(ctx context.Context, fixtureID int64) (feed.RawOddsPayload, error)
	FinalResult(ctx context.Context, fixtureID int64) (*domain.FinalResult, error)
}

// Cache is the slice of the TTL cache store the pipeline consumes.
type Cache interface {
	Get(ctx context.Context, et cachestore.EntityType, id string, dst any) (cachestore.Hit, error)
	Put(ctx context.Context, et cachestore.EntityType, id string, v any) error
	CleanupResults(ctx context.Context, retention time.Duration) (int, error)
}

// SelectionStore persists the qualified set for a window.
type SelectionStore interface {
	ReplaceWindow(ctx context.Context, start, end time.Time, sels []domain.QualifiedSelection) (int, error)
}

// RunPublisher reports finished runs; kafka in production.
type RunPublisher interface {
	PublishRun(ctx context.Context, run events.PipelineRun) error
}

// Orchestrator sequences the refresh stages (stats -> fetch/normalize ->
// qualify -> store) as single-flight background jobs guarded by the
// cross-process lock.
type Orchestrator struct {
	Log        *zap.Logger
	Feed       Fetcher
	Cache      Cache
	Selections SelectionStore
	Locks      joblock.Guard
	Publisher  RunPublisher
	Qualifier  *rules.Qualifier
	Params     model.Params

	Workers         int
	SoftDeadline    time.Duration
	LockDuration    time.Duration
	ResultRetention time.Duration

	// optional metric hook, wired from main
	OnRunFinished func(job string, run events.PipelineRun)
}

// TriggerResult is the immediate acknowledgment returned to the caller
// while the job executes out-of-band.
type TriggerResult struct {
	Started        bool   `json:"started"`
	AlreadyRunning bool   `json:"already_running"`
	RunID          string `json:"run_id,omitempty"`
}

// Trigger acquires the job lock synchronously and, on success, launches
// the job body in the background. A second trigger while one run is
// in-flight is a no-op reported as "already running", never an error and
// never a queue. With force the cache freshness short-circuit is ignored
// and every entity is refetched.
func (o *Orchestrator) Trigger(job string, windowHours int, triggeredBy string, force bool) (TriggerResult, error) {
	holder := uuid.NewString()
	acquired, err := o.Locks.Acquire(context.Background(), job, holder, o.LockDuration)
	if err != nil {
		return TriggerResult{}, err
	}
	if !acquired {
		o.Log.Info("job already running", zap.String("job", job))
		return TriggerResult{AlreadyRunning: true}, nil
	}

	runID := uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.LockDuration)
		defer cancel()
		defer func() {
			if err := o.Locks.Release(context.Background(), job, holder); err != nil {
				o.Log.Warn("lock release failed", zap.String("job", job), zap.Error(err))
			}
		}()

		run := o.runJob(ctx, job, runID, windowHours, triggeredBy, force)

		if o.Publisher != nil {
			if err := o.Publisher.PublishRun(ctx, run); err != nil {
				o.Log.Warn("run report publish failed", zap.String("job", job), zap.Error(err))
			}
		}
		if o.OnRunFinished != nil {
			o.OnRunFinished(job, run)
		}
		o.Log.Info("job finished",
			zap.String("job", job),
			zap.String("run_id", runID),
			zap.Int("scanned", run.Scanned),
			zap.Int("upserted", run.Upserted),
			zap.Int("skipped", run.Skipped),
			zap.Int("failed", run.Failed),
			zap.Bool("partial", run.Partial),
			zap.Int64("duration_ms", run.DurationMS),
		)
	}()

	return TriggerResult{Started: true, RunID: runID}, nil
}

func (o *Orchestrator) runJob(ctx context.Context, job, runID string, windowHours int, triggeredBy string, force bool) events.PipelineRun {
	started := time.Now()
	run := events.PipelineRun{
		RunID:       runID,
		Job:         job,
		TriggeredBy: triggeredBy,
		StartedAt:   started,
	}

	switch job {
	case JobSelectionRefresh:
		run.RulesVersion = o.Qualifier.Version
		o.runSelectionRefresh(ctx, windowHours, force, &run)
	case JobStatsRefresh:
		o.runStatsRefresh(ctx, windowHours, force, &run)
	case JobOddsBackfill:
		o.runOddsBackfill(ctx, windowHours, force, &run)
	case JobResultsRefresh:
		o.runResultsRefresh(ctx, windowHours, &run)
	default:
		o.Log.Error("unknown job", zap.String("job", job))
	}

	run.FinishedAt = time.Now()
	run.DurationMS = run.FinishedAt.Sub(started).Milliseconds()
	sumRun(&run)
	return run
}

// forEach fans units out over the bounded worker pool. Past the soft
// deadline no new unit is scheduled; in-flight units finish and the run is
// reported partial. A budget-exhausted unit stops further scheduling the
// same way. Per-unit failures increment Failed and never abort the batch.
func (o *Orchestrator) forEach(ctx context.Context, n int, deadline time.Time, c *Counters, fn func(i int) error) (partial bool) {
	workers := o.Workers
	if workers < 1 {
		workers = 1
	}

	var stop atomic.Bool
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if stop.Load() || time.Now().After(deadline) || ctx.Err() != nil {
			partial = true
			c.Skipped.Add(int64(n - i))
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := fn(i); err != nil {
				if errors.Is(err, feed.ErrBudgetExhausted) {
					stop.Store(true)
					c.Skipped.Add(1)
					return
				}
				c.Failed.Add(1)
				o.Log.Warn("work unit failed", zap.Error(err))
			}
		}(i)
	}
	wg.Wait()

	if stop.Load() {
		partial = true
	}
	return partial
}

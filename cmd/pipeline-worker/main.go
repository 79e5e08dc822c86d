package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/feed"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/joblock"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/model"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/pipeline"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/selection"
	sharedcache "github.com/anjelocrypto/fixture-vision-sub001/internal/shared/cache"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/shared/config"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/shared/db"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/shared/logger"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/shared/metrics"
	"github.com/anjelocrypto/fixture-vision-sub001/pkg/contracts/events"
)

// schedule maps each job to its refresh interval. Triggers that land while
// a run is in flight no-op via the lock.
var schedule = []struct {
	job      string
	interval time.Duration
}{
	{pipeline.JobStatsRefresh, 24 * time.Hour},
	{pipeline.JobOddsBackfill, 6 * time.Hour},
	{pipeline.JobSelectionRefresh, 6 * time.Hour},
	{pipeline.JobResultsRefresh, 12 * time.Hour},
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	store := cachestore.New(redisClient, cachestore.TTLs{
		Fixtures:        cfg.FixtureTTL,
		Odds:            cfg.OddsTTL,
		TeamStats:       cfg.TeamStatsTTL,
		Predictions:     cfg.PredictionTTL,
		Stages:          7 * 24 * time.Hour,
		OddsFreshWindow: cfg.OddsFreshWindow,
	})

	feedCalls := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_calls_total", Help: "provider calls issued"})
	feedRetries := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_retries_total", Help: "provider call retries"})
	feedDenied := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_budget_denied_total", Help: "calls denied by the daily budget"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_runs_total", Help: "finished job runs"}, []string{"job", "result"})
	jobUnits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_units_total", Help: "work units by outcome"}, []string{"job", "outcome"})
	prometheus.MustRegister(feedCalls, feedRetries, feedDenied, jobRuns, jobUnits)

	budget := feed.NewRedisBudget(redisClient, cfg.ProviderDailyCap)
	feedClient := feed.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderRPM, budget, log)
	feedClient.OnCall = feedCalls.Inc
	feedClient.OnRetry = feedRetries.Inc
	feedClient.OnBudgetDenied = feedDenied.Inc

	publisher := pipeline.NewKafkaPublisher(strings.Split(cfg.KafkaBrokers, ","), cfg.TopicPipelineRuns, log)
	defer publisher.Close()

	params := model.Params{
		LeagueMean:    cfg.LeagueMeanGoals,
		Tau:           cfg.ShrinkTau,
		HomeAdvantage: cfg.HomeAdvantage,
	}
	orch := &pipeline.Orchestrator{
		Log:             log,
		Feed:            feedClient,
		Cache:           store,
		Selections:      selection.NewRepo(pg),
		Locks:           joblock.NewStore(pg),
		Publisher:       publisher,
		Qualifier:       &rules.Qualifier{Version: rules.CurrentVersion, Params: params},
		Params:          params,
		Workers:         cfg.Workers,
		SoftDeadline:    cfg.SoftDeadline,
		LockDuration:    time.Duration(cfg.LockMinutes) * time.Minute,
		ResultRetention: cfg.ResultRetention,
		OnRunFinished: func(job string, run events.PipelineRun) {
			result := "ok"
			if run.Partial {
				result = "partial"
			}
			jobRuns.WithLabelValues(job, result).Inc()
			jobUnits.WithLabelValues(job, "scanned").Add(float64(run.Scanned))
			jobUnits.WithLabelValues(job, "upserted").Add(float64(run.Upserted))
			jobUnits.WithLabelValues(job, "skipped").Add(float64(run.Skipped))
			jobUnits.WithLabelValues(job, "failed").Add(float64(run.Failed))
		},
	}

	metricsSrv := metrics.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	defer metricsSrv.Shutdown(context.Background())

	log.Info("pipeline-worker started")

	// kick everything once on boot, then tick
	for _, s := range schedule {
		trigger(log, orch, s.job)
	}

	tickers := make([]*time.Ticker, len(schedule))
	for i, s := range schedule {
		tickers[i] = time.NewTicker(s.interval)
		defer tickers[i].Stop()

		go func(job string, tk *time.Ticker) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-tk.C:
					trigger(log, orch, job)
				}
			}
		}(s.job, tickers[i])
	}

	<-ctx.Done()
	log.Info("pipeline-worker stopped")
}

func trigger(log *zap.Logger, orch *pipeline.Orchestrator, job string) {
	res, err := orch.Trigger(job, 0, "schedule", false)
	if err != nil {
		log.Error("job trigger failed", zap.String("job", job), zap.Error(err))
		return
	}
	if res.AlreadyRunning {
		log.Info("job still running, trigger skipped", zap.String("job", job))
	}
}

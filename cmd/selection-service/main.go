package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/feed"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/httpapi"
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

	// Feed metrics, wired as callbacks the way every counter here is.
	feedCalls := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_calls_total", Help: "provider calls issued"})
	feedRetries := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_retries_total", Help: "provider call retries"})
	feedDenied := prometheus.NewCounter(prometheus.CounterOpts{Name: "feed_budget_denied_total", Help: "calls denied by the daily budget"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_runs_total", Help: "finished job runs"}, []string{"job", "result"})
	prometheus.MustRegister(feedCalls, feedRetries, feedDenied, jobRuns)

	budget := feed.NewRedisBudget(redisClient, cfg.ProviderDailyCap)
	feedClient := feed.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderRPM, budget, log)
	feedClient.OnCall = feedCalls.Inc
	feedClient.OnRetry = feedRetries.Inc
	feedClient.OnBudgetDenied = feedDenied.Inc

	repo := selection.NewRepo(pg)
	locks := joblock.NewStore(pg)
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
		Selections:      repo,
		Locks:           locks,
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

	api := &httpapi.API{
		Log:         log,
		Selections:  repo,
		Stages:      store,
		Jobs:        orch,
		Locks:       locks,
		InternalKey: cfg.InternalJobKey,
	}
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	go func() {
		log.Info("api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("api server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

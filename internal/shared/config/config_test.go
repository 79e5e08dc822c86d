package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "selection-service", cfg.ServiceName)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 48, cfg.ProviderRPM)
	assert.Equal(t, 70000, cfg.ProviderDailyCap)
	assert.Equal(t, 12*time.Hour, cfg.FixtureTTL)
	assert.Equal(t, 6*time.Hour, cfg.OddsTTL)
	assert.Equal(t, time.Hour, cfg.OddsFreshWindow)
	assert.InDelta(t, 1.4, cfg.LeagueMeanGoals, 1e-12)
	assert.InDelta(t, 10, cfg.ShrinkTau, 1e-12)
	assert.InDelta(t, 1.06, cfg.HomeAdvantage, 1e-12)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 15, cfg.LockMinutes)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, "pipeline_runs", cfg.TopicPipelineRuns)
}

func TestLoadWorkerPorts(t *testing.T) {
	t.Setenv("SERVICE_NAME", "pipeline-worker")

	cfg := Load()
	assert.Equal(t, "pipeline-worker", cfg.ServiceName)
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, "9091", cfg.MetricsPort)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROVIDER_RPM", "120")
	t.Setenv("CACHE_ODDS_TTL", "30m")
	t.Setenv("MODEL_SHRINK_TAU", "6.5")
	t.Setenv("PIPELINE_SOFT_DEADLINE", "2m")

	cfg := Load()
	assert.Equal(t, 120, cfg.ProviderRPM)
	assert.Equal(t, 30*time.Minute, cfg.OddsTTL)
	assert.InDelta(t, 6.5, cfg.ShrinkTau, 1e-12)
	assert.Equal(t, 2*time.Minute, cfg.SoftDeadline)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PROVIDER_RPM", "many")
	t.Setenv("CACHE_ODDS_TTL", "soon")
	t.Setenv("MODEL_HOME_ADVANTAGE", "big")

	cfg := Load()
	assert.Equal(t, 48, cfg.ProviderRPM)
	assert.Equal(t, 6*time.Hour, cfg.OddsTTL)
	assert.InDelta(t, 1.06, cfg.HomeAdvantage, 1e-12)
}

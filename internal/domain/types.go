package domain

import (
	"fmt"
	"time"
)

// Market is a statistical market we model and price.
type Market string

const (
	MarketGoals    Market = "goals"
	MarketCorners  Market = "corners"
	MarketCards    Market = "cards"
	MarketFouls    Market = "fouls"
	MarketOffsides Market = "offsides"
)

// Markets with bookmaker coverage. Fouls and offsides are tracked as team
// stats only; no allow-listed bet type exists for them.
var TradableMarkets = []Market{MarketGoals, MarketCorners, MarketCards}

func ValidMarket(m Market) bool {
	switch m {
	case MarketGoals, MarketCorners, MarketCards, MarketFouls, MarketOffsides:
		return true
	}
	return false
}

type Side string

const (
	SideOver  Side = "over"
	SideUnder Side = "under"
)

func ValidSide(s Side) bool { return s == SideOver || s == SideUnder }

type FixtureStatus string

const (
	StatusScheduled FixtureStatus = "scheduled"
	StatusLive      FixtureStatus = "live"
	StatusFinished  FixtureStatus = "finished"
)

// Fixture is one match as delivered by the provider feed.
type Fixture struct {
	ID          int64         `json:"id"`
	LeagueID    int64         `json:"league_id"`
	CountryCode string        `json:"country_code"`
	HomeTeamID  int64         `json:"home_team_id"`
	AwayTeamID  int64         `json:"away_team_id"`
	HomeTeam    string        `json:"home_team"`
	AwayTeam    string        `json:"away_team"`
	KickoffAt   time.Time     `json:"kickoff_at"`
	Status      FixtureStatus `json:"status"`
}

// TeamStatsSnapshot holds per-metric rolling averages over the team's last
// finished fixtures (window of 5). It is overwritten wholesale on refresh.
type TeamStatsSnapshot struct {
	TeamID         int64     `json:"team_id"`
	AvgGoals       float64   `json:"avg_goals"`
	AvgCorners     float64   `json:"avg_corners"`
	AvgCards       float64   `json:"avg_cards"`
	AvgFouls       float64   `json:"avg_fouls"`
	AvgOffsides    float64   `json:"avg_offsides"`
	SampleSize     int       `json:"sample_size"`
	SourceFixtures []int64   `json:"source_fixtures"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Avg returns the rolling average for a metric.
func (s TeamStatsSnapshot) Avg(m Market) float64 {
	switch m {
	case MarketGoals:
		return s.AvgGoals
	case MarketCorners:
		return s.AvgCorners
	case MarketCards:
		return s.AvgCards
	case MarketFouls:
		return s.AvgFouls
	case MarketOffsides:
		return s.AvgOffsides
	}
	return 0
}

// Usable reports whether the snapshot carries enough history to price from.
func (s TeamStatsSnapshot) Usable() bool { return s.SampleSize >= 3 }

// OddsQuote is one normalized bookmaker price. Ephemeral: replaced on every
// odds fetch, never merged across bookmakers.
type OddsQuote struct {
	FixtureID  int64     `json:"fixture_id"`
	Bookmaker  string    `json:"bookmaker"`
	Market     Market    `json:"market"`
	Side       Side      `json:"side"`
	Line       float64   `json:"line"`
	Odds       float64   `json:"odds"`
	Live       bool      `json:"live"`
	CapturedAt time.Time `json:"captured_at"`
}

// QualifiedSelection is an OddsQuote that passed the rules matrix, the odds
// band and the suspicious-odds guard, stamped with the rules version that
// produced it.
type QualifiedSelection struct {
	FixtureID    int64     `json:"fixture_id"`
	LeagueID     int64     `json:"league_id"`
	CountryCode  string    `json:"country_code"`
	Market       Market    `json:"market"`
	Side         Side      `json:"side"`
	Line         float64   `json:"line"`
	Bookmaker    string    `json:"bookmaker"`
	Odds         float64   `json:"odds"`
	ModelProb    float64   `json:"model_prob"`
	EdgePct      float64   `json:"edge_pct"`
	SampleSize   int       `json:"sample_size"`
	RulesVersion string    `json:"rules_version"`
	Live         bool      `json:"live"`
	KickoffAt    time.Time `json:"kickoff_at"`
	ComputedAt   time.Time `json:"computed_at"`
}

// LegID is a stable identifier for a selection, usable across pipeline runs
// to lock ticket legs.
func (q QualifiedSelection) LegID() string {
	return fmt.Sprintf("%d:%s:%s:%.1f:%s", q.FixtureID, q.Market, q.Side, q.Line, q.Bookmaker)
}

// Key identifies the dedup group a selection belongs to.
func (q QualifiedSelection) Key() string {
	return fmt.Sprintf("%d:%s:%s:%.1f", q.FixtureID, q.Market, q.Side, q.Line)
}

// FinalResult is the closed book on a finished fixture.
type FinalResult struct {
	FixtureID  int64     `json:"fixture_id"`
	HomeGoals  int       `json:"home_goals"`
	AwayGoals  int       `json:"away_goals"`
	FinishedAt time.Time `json:"finished_at"`
}

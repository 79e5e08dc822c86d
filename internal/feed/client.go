package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
)

const maxAttempts = 3

// HTTPError is a non-retryable provider response (4xx).
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("feed: provider returned %d", e.StatusCode)
}

// Client talks to the sports-data provider under a per-minute token bucket
// and a shared daily call budget. Transient failures (5xx, timeouts) are
// retried with bounded exponential backoff; 4xx propagate immediately.
type Client struct {
	httpc   *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	budget  Budget
	log     *zap.Logger

	calls atomic.Int64

	// optional metric hooks, wired from main
	OnCall         func()
	OnRetry        func()
	OnBudgetDenied func()
}

func NewClient(baseURL, apiKey string, rpm int, budget Budget, log *zap.Logger) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		budget:  budget,
		log:     log,
	}
}

// Calls returns the monotonically increasing call counter.
func (c *Client) Calls() int64 { return c.calls.Load() }

func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if c.OnRetry != nil {
				c.OnRetry()
			}
			backoff := time.Duration(1<<uint(attempt-2)) * 250 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.budget.Take(ctx); err != nil {
			if c.OnBudgetDenied != nil && err == ErrBudgetExhausted {
				c.OnBudgetDenied()
			}
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		n := c.calls.Add(1)
		if c.OnCall != nil {
			c.OnCall()
		}
		c.log.Debug("feed call",
			zap.Int64("call_no", n),
			zap.String("path", path),
			zap.Int("attempt", attempt),
		)

		err := c.doOnce(ctx, path, query, dst)
		if err == nil {
			return nil
		}
		if herr, ok := err.(*HTTPError); ok && herr.StatusCode < 500 {
			return err // client error, retrying will not help
		}
		lastErr = err
		c.log.Warn("feed call failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
	}
	return fmt.Errorf("feed: %s failed after %d attempts: %w", path, maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values, dst any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-apisports-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// FixturesByDate returns every fixture kicking off on the given UTC day.
func (c *Client) FixturesByDate(ctx context.Context, day time.Time) ([]domain.Fixture, error) {
	q := url.Values{"date": {day.UTC().Format("2006-01-02")}}
	var env envelope[rawFixture]
	if err := c.get(ctx, "/fixtures", q, &env); err != nil {
		return nil, err
	}
	out := make([]domain.Fixture, 0, len(env.Response))
	for _, rf := range env.Response {
		fx, err := toFixture(rf)
		if err != nil {
			c.log.Warn("skipping malformed fixture", zap.Int64("fixture_id", rf.Fixture.ID), zap.Error(err))
			continue
		}
		out = append(out, fx)
	}
	return out, nil
}

// TeamLastFinished returns realized metrics for the team's last n finished
// fixtures, newest first. One extra provider call per fixture is spent on
// the statistics document (corners, cards, fouls, offsides).
func (c *Client) TeamLastFinished(ctx context.Context, teamID int64, n int) ([]FixtureMetrics, error) {
	q := url.Values{
		"team":   {strconv.FormatInt(teamID, 10)},
		"last":   {strconv.Itoa(n)},
		"status": {"FT"},
	}
	var env envelope[rawFixture]
	if err := c.get(ctx, "/fixtures", q, &env); err != nil {
		return nil, err
	}

	out := make([]FixtureMetrics, 0, len(env.Response))
	for _, rf := range env.Response {
		m := FixtureMetrics{FixtureID: rf.Fixture.ID}
		if rf.Teams.Home.ID == teamID && rf.Goals.Home != nil {
			m.Goals = float64(*rf.Goals.Home)
		} else if rf.Teams.Away.ID == teamID && rf.Goals.Away != nil {
			m.Goals = float64(*rf.Goals.Away)
		}
		if err := c.fixtureStatistics(ctx, rf.Fixture.ID, teamID, &m); err != nil {
			// statistics are best effort; goals alone still make a usable row
			c.log.Warn("fixture statistics unavailable",
				zap.Int64("fixture_id", rf.Fixture.ID),
				zap.Int64("team_id", teamID),
				zap.Error(err),
			)
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) fixtureStatistics(ctx context.Context, fixtureID, teamID int64, m *FixtureMetrics) error {
	q := url.Values{
		"fixture": {strconv.FormatInt(fixtureID, 10)},
		"team":    {strconv.FormatInt(teamID, 10)},
	}
	var env envelope[rawTeamStatistics]
	if err := c.get(ctx, "/fixtures/statistics", q, &env); err != nil {
		return err
	}
	for _, ts := range env.Response {
		if ts.Team.ID != teamID {
			continue
		}
		for _, st := range ts.Statistics {
			v, ok := numericValue(st.Value)
			if !ok {
				continue
			}
			switch st.Type {
			case "Corner Kicks":
				m.Corners = v
			case "Yellow Cards":
				m.Cards += v
			case "Red Cards":
				m.Cards += v
			case "Fouls":
				m.Fouls = v
			case "Offsides":
				m.Offsides = v
			}
		}
	}
	return nil
}

// OddsByFixture returns the raw prematch odds document for one fixture.
func (c *Client) OddsByFixture(ctx context.Context, fixtureID int64) (RawOddsPayload, error) {
	q := url.Values{"fixture": {strconv.FormatInt(fixtureID, 10)}}
	var env envelope[rawOdds]
	if err := c.get(ctx, "/odds", q, &env); err != nil {
		return RawOddsPayload{}, err
	}
	payload := RawOddsPayload{FixtureID: fixtureID}
	for _, ro := range env.Response {
		if ro.Fixture.ID != fixtureID {
			continue
		}
		payload.Bookmakers = append(payload.Bookmakers, ro.Bookmakers...)
	}
	return payload, nil
}

// FinalResult returns the final score of a finished fixture, or nil when
// the fixture has not finished yet.
func (c *Client) FinalResult(ctx context.Context, fixtureID int64) (*domain.FinalResult, error) {
	q := url.Values{"id": {strconv.FormatInt(fixtureID, 10)}}
	var env envelope[rawFixture]
	if err := c.get(ctx, "/fixtures", q, &env); err != nil {
		return nil, err
	}
	for _, rf := range env.Response {
		if rf.Fixture.ID != fixtureID || statusFromShort(rf.Fixture.Status.Short) != domain.StatusFinished {
			continue
		}
		if rf.Goals.Home == nil || rf.Goals.Away == nil {
			continue
		}
		finished, _ := time.Parse(time.RFC3339, rf.Fixture.Date)
		return &domain.FinalResult{
			FixtureID:  fixtureID,
			HomeGoals:  *rf.Goals.Home,
			AwayGoals:  *rf.Goals.Away,
			FinishedAt: finished,
		}, nil
	}
	return nil, nil
}

func toFixture(rf rawFixture) (domain.Fixture, error) {
	kickoff, err := time.Parse(time.RFC3339, rf.Fixture.Date)
	if err != nil {
		return domain.Fixture{}, fmt.Errorf("parse kickoff: %w", err)
	}
	return domain.Fixture{
		ID:          rf.Fixture.ID,
		LeagueID:    rf.League.ID,
		CountryCode: rf.League.Code,
		HomeTeamID:  rf.Teams.Home.ID,
		AwayTeamID:  rf.Teams.Away.ID,
		HomeTeam:    rf.Teams.Home.Name,
		AwayTeam:    rf.Teams.Away.Name,
		KickoffAt:   kickoff,
		Status:      statusFromShort(rf.Fixture.Status.Short),
	}, nil
}

func statusFromShort(short string) domain.FixtureStatus {
	switch short {
	case "FT", "AET", "PEN":
		return domain.StatusFinished
	case "1H", "HT", "2H", "ET", "BT", "P", "LIVE":
		return domain.StatusLive
	default:
		return domain.StatusScheduled
	}
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

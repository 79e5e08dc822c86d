package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/joblock"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/pipeline"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/selection"
)

type fakeSelections struct {
	res       selection.Result
	err       error
	lastQuery selection.Query
}

func (f *fakeSelections) Search(_ context.Context, q selection.Query) (selection.Result, error) {
	f.lastQuery = q
	return f.res, f.err
}

type fakeStages struct {
	stages rules.StageCounters
}

func (f *fakeStages) Get(_ context.Context, _ cachestore.EntityType, _ string, dst any) (cachestore.Hit, error) {
	if f.stages == nil {
		return cachestore.Hit{}, nil
	}
	*dst.(*rules.StageCounters) = f.stages
	return cachestore.Hit{Found: true, Fresh: true}, nil
}

type fakeTrigger struct {
	job    string
	window int
	force  bool
	res    pipeline.TriggerResult
}

func (f *fakeTrigger) Trigger(job string, windowHours int, _ string, force bool) (pipeline.TriggerResult, error) {
	f.job, f.window, f.force = job, windowHours, force
	return f.res, nil
}

type fakeLocks struct {
	locks []joblock.Lock
}

func (f *fakeLocks) List(context.Context) ([]joblock.Lock, error) { return f.locks, nil }

func newTestAPI(sels *fakeSelections, stages *fakeStages, trig *fakeTrigger, locks *fakeLocks) *API {
	if sels == nil {
		sels = &fakeSelections{}
	}
	if stages == nil {
		stages = &fakeStages{}
	}
	if trig == nil {
		trig = &fakeTrigger{}
	}
	if locks == nil {
		locks = &fakeLocks{}
	}
	return &API{
		Log:         zap.NewNop(),
		Selections:  sels,
		Stages:      stages,
		Jobs:        trig,
		Locks:       locks,
		InternalKey: "secret",
	}
}

func doRequest(api *API, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	return rec
}

func sampleSelection() domain.QualifiedSelection {
	return domain.QualifiedSelection{
		FixtureID: 1001, LeagueID: 39, CountryCode: "GB",
		Market: domain.MarketGoals, Side: domain.SideOver, Line: 2.5,
		Bookmaker: "Bet365", Odds: 1.85, ModelProb: 0.60, EdgePct: 5.95,
		SampleSize: 5, RulesVersion: rules.CurrentVersion,
		KickoffAt: time.Now().Add(24 * time.Hour),
	}
}

func TestGetSelections(t *testing.T) {
	sels := &fakeSelections{res: selection.Result{
		Selections:     []domain.QualifiedSelection{sampleSelection()},
		Count:          1,
		TotalQualified: 3,
		WindowStart:    time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		WindowEnd:      time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
	}}
	stages := &fakeStages{stages: rules.StageCounters{rules.StageQualified: 3}}
	api := newTestAPI(sels, stages, nil, nil)

	rec := doRequest(api, http.MethodGet,
		"/v1/selections?date=2025-06-14&market=goals&side=over&line=2.5&minOdds=1.5&leagueIds=39,61&live=false&limit=10",
		"", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SelectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 3, resp.TotalQualified)
	require.Len(t, resp.Selections, 1)
	assert.Equal(t, int64(1001), resp.Selections[0].FixtureID)
	assert.Empty(t, resp.Reasons)
	assert.Equal(t, 1, resp.Debug.Counters["matched"])
	assert.Equal(t, 3, resp.Debug.Stages[rules.StageQualified])

	q := sels.lastQuery
	assert.Equal(t, domain.MarketGoals, q.Market)
	assert.Equal(t, domain.SideOver, q.Side)
	require.NotNil(t, q.Line)
	assert.Equal(t, 2.5, *q.Line)
	assert.Equal(t, 1.5, q.MinOdds)
	assert.Equal(t, []int64{39, 61}, q.LeagueIDs)
	require.NotNil(t, q.Live)
	assert.False(t, *q.Live)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, "2025-06-14", q.Date.Format("2006-01-02"))
}

func TestGetSelectionsValidation(t *testing.T) {
	api := newTestAPI(nil, nil, nil, nil)

	cases := []string{
		"/v1/selections?market=handicaps",
		"/v1/selections?side=both",
		"/v1/selections?date=14-06-2025",
		"/v1/selections?line=-1",
		"/v1/selections?minOdds=abc",
		"/v1/selections?leagueIds=39,xx",
		"/v1/selections?live=maybe",
		"/v1/selections?limit=0",
		"/v1/selections?limit=1000",
		"/v1/selections?offset=-1",
	}
	for _, target := range cases {
		rec := doRequest(api, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), target)
		assert.NotEmpty(t, resp.Error, target)
	}
}

func TestGetSelectionsEmptyWindowReasons(t *testing.T) {
	sels := &fakeSelections{res: selection.Result{
		WindowStart: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC),
	}}
	stages := &fakeStages{stages: rules.StageCounters{
		rules.StageNoStats:    4,
		rules.StageOutOfBand:  2,
		rules.StageSuspicious: 1,
	}}
	api := newTestAPI(sels, stages, nil, nil)

	rec := doRequest(api, http.MethodGet, "/v1/selections?date=2025-06-14", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SelectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	require.NotEmpty(t, resp.Reasons)
	assert.Equal(t, "qualified=0 in window 2025-06-14..2025-06-21", resp.Reasons[0])
	assert.Contains(t, resp.Reasons, "stage no_stats: 4")
	assert.Contains(t, resp.Reasons, "stage out_of_band: 2")
	assert.Contains(t, resp.Reasons, "stage suspicious: 1")
}

func TestGetSelectionsFiltersEmptiedResult(t *testing.T) {
	sels := &fakeSelections{res: selection.Result{TotalQualified: 5}}
	api := newTestAPI(sels, nil, nil, nil)

	rec := doRequest(api, http.MethodGet, "/v1/selections?market=cards", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SelectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Reasons, "filters matched 0 of 5 qualified selections")
}

func TestOptimizeTicket(t *testing.T) {
	a := sampleSelection()
	b := sampleSelection()
	b.FixtureID = 1002
	b.Odds = 1.5
	b.ModelProb = 0.7
	b.EdgePct = 3.3
	sels := &fakeSelections{res: selection.Result{
		Selections: []domain.QualifiedSelection{a, b},
		Count:      2,
	}}
	api := newTestAPI(sels, nil, nil, nil)

	body := `{"targetMin":2.5,"targetMax":3.5,"minLegs":2,"maxLegs":2}`
	rec := doRequest(api, http.MethodPost, "/v1/tickets/optimize", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "optimizer", resp.Mode)
	require.Len(t, resp.Legs, 2)
	assert.InDelta(t, 1.85*1.5, resp.TotalOdds, 1e-9)
	assert.True(t, resp.TargetMet)
	assert.Nil(t, resp.IsDifferent)
	assert.Empty(t, resp.Reasons)
}

func TestOptimizeTicketValidation(t *testing.T) {
	api := newTestAPI(nil, nil, nil, nil)

	cases := []string{
		`not json`,
		`{"targetMin":0,"targetMax":5,"minLegs":1,"maxLegs":3}`,
		`{"targetMin":5,"targetMax":2,"minLegs":1,"maxLegs":3}`,
		`{"targetMin":2,"targetMax":5,"minLegs":0,"maxLegs":3}`,
		`{"targetMin":2,"targetMax":5,"minLegs":3,"maxLegs":1}`,
		`{"targetMin":2,"targetMax":5,"minLegs":1,"maxLegs":99}`,
		`{"targetMin":2,"targetMax":5,"minLegs":1,"maxLegs":3,"includeMarkets":["handicaps"]}`,
	}
	for _, body := range cases {
		rec := doRequest(api, http.MethodPost, "/v1/tickets/optimize", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestOptimizeTicketEmptyPool(t *testing.T) {
	api := newTestAPI(&fakeSelections{}, nil, nil, nil)

	body := `{"targetMin":2.5,"targetMax":3.5,"minLegs":2,"maxLegs":4}`
	rec := doRequest(api, http.MethodPost, "/v1/tickets/optimize", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Legs)
	assert.False(t, resp.TargetMet)
	assert.NotEmpty(t, resp.Reasons)
}

func TestShuffleTicket(t *testing.T) {
	pool := make([]domain.QualifiedSelection, 0, 8)
	for i := int64(1); i <= 8; i++ {
		s := sampleSelection()
		s.FixtureID = 1000 + i
		s.Odds = 1.4 + float64(i)*0.15
		s.EdgePct = float64(i)
		pool = append(pool, s)
	}
	sels := &fakeSelections{res: selection.Result{Selections: pool, Count: len(pool)}}
	api := newTestAPI(sels, nil, nil, nil)

	body := `{"targetLegs":3,"seed":42}`
	rec := doRequest(api, http.MethodPost, "/v1/tickets/shuffle", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "shuffle", resp.Mode)
	require.Len(t, resp.Legs, 3)
	require.NotNil(t, resp.Seed)
	assert.Equal(t, int64(42), *resp.Seed)
	require.NotNil(t, resp.IsDifferent)
	assert.True(t, *resp.IsDifferent)

	// same seed and pool with the previous hash supplied: same ticket, not new
	body = `{"targetLegs":3,"seed":42,"previousTicketHash":"` + resp.Hash + `"}`
	rec = doRequest(api, http.MethodPost, "/v1/tickets/shuffle", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var second TicketResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, resp.Hash, second.Hash)
	require.NotNil(t, second.IsDifferent)
	assert.False(t, *second.IsDifferent)
}

func TestShuffleTicketValidation(t *testing.T) {
	api := newTestAPI(nil, nil, nil, nil)

	cases := []string{
		`not json`,
		`{"targetLegs":0}`,
		`{"targetLegs":99}`,
		`{"targetLegs":3,"minOdds":3,"maxOdds":2}`,
		`{"targetLegs":3,"includeMarkets":["handicaps"]}`,
	}
	for _, body := range cases {
		rec := doRequest(api, http.MethodPost, "/v1/tickets/shuffle", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestRunJobAuth(t *testing.T) {
	trig := &fakeTrigger{res: pipeline.TriggerResult{Started: true, RunID: "run-1"}}
	api := newTestAPI(nil, nil, trig, nil)

	rec := doRequest(api, http.MethodPost, "/v1/jobs/selection_refresh/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(api, http.MethodPost, "/v1/jobs/selection_refresh/run", "",
		http.Header{"X-Internal-Key": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// an unset key disables triggers entirely
	api.InternalKey = ""
	rec = doRequest(api, http.MethodPost, "/v1/jobs/selection_refresh/run", "",
		http.Header{"X-Internal-Key": {""}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunJob(t *testing.T) {
	trig := &fakeTrigger{res: pipeline.TriggerResult{Started: true, RunID: "run-1"}}
	api := newTestAPI(nil, nil, trig, nil)
	auth := http.Header{"X-Internal-Key": {"secret"}}

	rec := doRequest(api, http.MethodPost, "/v1/jobs/selection_refresh/run",
		`{"window_hours":72,"force":true}`, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var res pipeline.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Started)
	assert.Equal(t, "run-1", res.RunID)

	assert.Equal(t, "selection_refresh", trig.job)
	assert.Equal(t, 72, trig.window)
	assert.True(t, trig.force)

	rec = doRequest(api, http.MethodPost, "/v1/jobs/reindex_everything/run", "", auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunJobAlreadyRunning(t *testing.T) {
	trig := &fakeTrigger{res: pipeline.TriggerResult{AlreadyRunning: true}}
	api := newTestAPI(nil, nil, trig, nil)

	rec := doRequest(api, http.MethodPost, "/v1/jobs/odds_backfill/run", "",
		http.Header{"X-Internal-Key": {"secret"}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var res pipeline.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.AlreadyRunning)
	assert.False(t, res.Started)
}

func TestListLocks(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	locks := &fakeLocks{locks: []joblock.Lock{{
		JobName: "selection_refresh", LockedBy: "worker-1",
		LockedAt: now, LockedUntil: now.Add(15 * time.Minute),
	}}}
	api := newTestAPI(nil, nil, nil, locks)

	rec := doRequest(api, http.MethodGet, "/v1/jobs/locks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []joblock.Lock
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "selection_refresh", out[0].JobName)

	// empty table renders as [], not null
	api = newTestAPI(nil, nil, nil, &fakeLocks{})
	rec = doRequest(api, http.MethodGet, "/v1/jobs/locks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

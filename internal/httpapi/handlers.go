package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/cachestore"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/joblock"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/pipeline"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/selection"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/ticket"
)

const (
	maxLimit      = 200
	defaultLimit  = 50
	maxTicketLegs = 20
)

func (a *API) getSelections(w http.ResponseWriter, r *http.Request) {
	q, reason := parseSelectionQuery(r)
	if reason != "" {
		badRequest(w, reason)
		return
	}

	res, err := a.Selections.Search(r.Context(), q)
	if err != nil {
		a.Log.Error("selection search failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "search failed"})
		return
	}

	stages := rules.NewStageCounters()
	day := q.Date.UTC().Format("2006-01-02")
	if _, err := a.Stages.Get(r.Context(), cachestore.EntityStages, day, &stages); err != nil {
		a.Log.Warn("stage breakdown unavailable", zap.String("day", day), zap.Error(err))
	}

	resp := SelectionsResponse{
		Selections:     res.Selections,
		Count:          res.Count,
		TotalQualified: res.TotalQualified,
		Window:         Window{Start: res.WindowStart, End: res.WindowEnd},
		Debug: Debug{
			Counters: map[string]int{
				"matched":         res.Count,
				"total_qualified": res.TotalQualified,
			},
			Stages: stages,
		},
	}
	if res.Count == 0 {
		resp.Reasons = emptyReasons(res, stages)
	}
	writeJSON(w, http.StatusOK, resp)
}

// emptyReasons explains which qualification or filter stage emptied the
// response.
func emptyReasons(res selection.Result, stages rules.StageCounters) []string {
	var reasons []string
	if res.TotalQualified == 0 {
		reasons = append(reasons, fmt.Sprintf("qualified=0 in window %s..%s",
			res.WindowStart.Format("2006-01-02"), res.WindowEnd.Format("2006-01-02")))
		if len(stages) == 0 {
			reasons = append(reasons, "no qualification run recorded for this window")
		}
	} else {
		reasons = append(reasons, fmt.Sprintf("filters matched 0 of %d qualified selections", res.TotalQualified))
	}

	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		reasons = append(reasons, fmt.Sprintf("stage %s: %d", name, stages[name]))
	}
	return reasons
}

func parseSelectionQuery(r *http.Request) (selection.Query, string) {
	v := r.URL.Query()
	q := selection.Query{Limit: defaultLimit}

	q.Date = time.Now().UTC()
	if s := v.Get("date"); s != "" {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return q, "date must be YYYY-MM-DD"
		}
		q.Date = d
	}

	if s := v.Get("market"); s != "" {
		m := domain.Market(s)
		if !domain.ValidMarket(m) {
			return q, "unknown market: " + s
		}
		q.Market = m
	}
	if s := v.Get("side"); s != "" {
		side := domain.Side(s)
		if !domain.ValidSide(side) {
			return q, "side must be over or under"
		}
		q.Side = side
	}
	if s := v.Get("line"); s != "" {
		line, err := strconv.ParseFloat(s, 64)
		if err != nil || line <= 0 {
			return q, "line must be a positive number"
		}
		q.Line = &line
	}
	if s := v.Get("minOdds"); s != "" {
		mo, err := strconv.ParseFloat(s, 64)
		if err != nil || mo < 0 {
			return q, "minOdds must be a non-negative number"
		}
		q.MinOdds = mo
	}
	q.CountryCode = v.Get("countryCode")
	if s := v.Get("leagueIds"); s != "" {
		for _, part := range strings.Split(s, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return q, "leagueIds must be a comma-separated list of ids"
			}
			q.LeagueIDs = append(q.LeagueIDs, id)
		}
	}
	if s := v.Get("live"); s != "" {
		live, err := strconv.ParseBool(s)
		if err != nil {
			return q, "live must be a boolean"
		}
		q.Live = &live
	}
	if s := v.Get("showAllOdds"); s != "" {
		all, err := strconv.ParseBool(s)
		if err != nil {
			return q, "showAllOdds must be a boolean"
		}
		q.ShowAllOdds = all
	}
	if s := v.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxLimit {
			return q, fmt.Sprintf("limit must be between 1 and %d", maxLimit)
		}
		q.Limit = limit
	}
	if s := v.Get("offset"); s != "" {
		off, err := strconv.Atoi(s)
		if err != nil || off < 0 {
			return q, "offset must be a non-negative integer"
		}
		q.Offset = off
	}
	return q, ""
}

func (a *API) optimizeTicket(w http.ResponseWriter, r *http.Request) {
	var req OptimizeTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if req.TargetMin < 1 || req.TargetMax < req.TargetMin {
		badRequest(w, "target range must satisfy 1 <= targetMin <= targetMax")
		return
	}
	if req.MinLegs < 1 || req.MaxLegs < req.MinLegs || req.MaxLegs > maxTicketLegs {
		badRequest(w, fmt.Sprintf("leg bounds must satisfy 1 <= minLegs <= maxLegs <= %d", maxTicketLegs))
		return
	}
	include, reason := parseMarkets(req.IncludeMarkets)
	if reason != "" {
		badRequest(w, reason)
		return
	}
	exclude, reason := parseMarkets(req.ExcludeMarkets)
	if reason != "" {
		badRequest(w, reason)
		return
	}

	pool, err := a.ticketPool(r, 0)
	if err != nil {
		a.Log.Error("ticket pool load failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "pool load failed"})
		return
	}

	t := ticket.Optimize(pool, ticket.OptimizeRequest{
		TargetMin:      req.TargetMin,
		TargetMax:      req.TargetMax,
		MinLegs:        req.MinLegs,
		MaxLegs:        req.MaxLegs,
		IncludeMarkets: include,
		ExcludeMarkets: exclude,
		Risk:           req.Risk,
	}, time.Now())

	resp := TicketResponse{Ticket: t}
	if len(t.Legs) == 0 {
		resp.Reasons = []string{fmt.Sprintf("candidate pool of %d produced no usable legs", t.PoolSize)}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) shuffleTicket(w http.ResponseWriter, r *http.Request) {
	var req ShuffleTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if req.TargetLegs < 1 || req.TargetLegs > maxTicketLegs {
		badRequest(w, fmt.Sprintf("targetLegs must be between 1 and %d", maxTicketLegs))
		return
	}
	if req.MaxOdds != 0 && req.MaxOdds < req.MinOdds {
		badRequest(w, "maxOdds must be >= minOdds")
		return
	}
	include, reason := parseMarkets(req.IncludeMarkets)
	if reason != "" {
		badRequest(w, reason)
		return
	}

	pool, err := a.ticketPool(r, req.MinOdds)
	if err != nil {
		a.Log.Error("ticket pool load failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "pool load failed"})
		return
	}

	sreq := ticket.ShuffleRequest{
		LockedLegIDs:   req.LockedLegIDs,
		TargetLegs:     req.TargetLegs,
		MinOdds:        req.MinOdds,
		MaxOdds:        req.MaxOdds,
		IncludeMarkets: include,
		PreviousHash:   req.PreviousTicketHash,
	}
	if req.Seed != nil {
		sreq.Seed = *req.Seed
		sreq.HasSeed = true
	}

	t, isDifferent := ticket.Shuffle(pool, sreq, time.Now())
	resp := TicketResponse{Ticket: t, IsDifferent: &isDifferent}
	if len(t.Legs) == 0 {
		resp.Reasons = []string{fmt.Sprintf("candidate pool of %d produced no usable legs", t.PoolSize)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ticketPool is the read-only candidate set tickets are composed from:
// best price per key over the current window.
func (a *API) ticketPool(r *http.Request, minOdds float64) ([]domain.QualifiedSelection, error) {
	res, err := a.Selections.Search(r.Context(), selection.Query{
		Date:    time.Now().UTC(),
		MinOdds: minOdds,
		Limit:   maxLimit,
	})
	if err != nil {
		return nil, err
	}
	return res.Selections, nil
}

func parseMarkets(names []string) ([]domain.Market, string) {
	var out []domain.Market
	for _, name := range names {
		m := domain.Market(name)
		if !domain.ValidMarket(m) {
			return nil, "unknown market: " + name
		}
		out = append(out, m)
	}
	return out, ""
}

func (a *API) runJob(w http.ResponseWriter, r *http.Request) {
	if a.InternalKey == "" || r.Header.Get("X-Internal-Key") != a.InternalKey {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid internal key"})
		return
	}

	job := chi.URLParam(r, "job")
	if !pipeline.KnownJob(job) {
		badRequest(w, "unknown job: "+job)
		return
	}

	var req JobRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid json body")
			return
		}
	}

	res, err := a.Jobs.Trigger(job, req.WindowHours, "api", req.Force)
	if err != nil {
		a.Log.Error("job trigger failed", zap.String("job", job), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "trigger failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (a *API) listLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := a.Locks.List(r.Context())
	if err != nil {
		a.Log.Error("lock list failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "lock list failed"})
		return
	}
	if locks == nil {
		locks = []joblock.Lock{}
	}
	writeJSON(w, http.StatusOK, locks)
}

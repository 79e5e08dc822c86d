package selection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
)

// WindowDays is the fixed span of every selection read: 7 days anchored at
// UTC midnight of the requested date. Deliberately not a rolling "now+Nh"
// window.
const WindowDays = 7

// Query filters a windowed selection read.
type Query struct {
	Date        time.Time
	Market      domain.Market
	Side        domain.Side
	Line        *float64
	MinOdds     float64
	CountryCode string
	LeagueIDs   []int64
	Live        *bool
	ShowAllOdds bool
	Limit       int
	Offset      int
}

// Window returns the [start, end) read window for the query date.
func (q Query) Window() (time.Time, time.Time) {
	d := q.Date.UTC()
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, WindowDays)
}

// Result is a windowed read plus the counts the debug block reports.
type Result struct {
	Selections     []domain.QualifiedSelection
	Count          int // matched by the filters
	TotalQualified int // everything qualified inside the window, pre-filter
	WindowStart    time.Time
	WindowEnd      time.Time
}

// Repo persists qualified selections in Postgres.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo { return &Repo{DB: db} }

// ReplaceWindow swaps the qualified set for the window in one transaction:
// a refresh replaces, never appends. Candidates should already be deduped.
func (r *Repo) ReplaceWindow(ctx context.Context, start, end time.Time, sels []domain.QualifiedSelection) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace window: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM qualified_selections WHERE kickoff_at >= $1 AND kickoff_at < $2`,
		start, end,
	); err != nil {
		return 0, fmt.Errorf("clear window: %w", err)
	}

	const q = `
		INSERT INTO qualified_selections
		  (fixture_id, league_id, country_code, market, side, line, bookmaker,
		   odds, model_prob, edge_pct, sample_size, rules_version, live,
		   kickoff_at, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (fixture_id, market, side, line, bookmaker) DO UPDATE SET
		  odds          = EXCLUDED.odds,
		  model_prob    = EXCLUDED.model_prob,
		  edge_pct      = EXCLUDED.edge_pct,
		  sample_size   = EXCLUDED.sample_size,
		  rules_version = EXCLUDED.rules_version,
		  live          = EXCLUDED.live,
		  computed_at   = EXCLUDED.computed_at
	`
	var inserted int
	for _, s := range sels {
		if _, err := tx.ExecContext(ctx, q,
			s.FixtureID, s.LeagueID, s.CountryCode, string(s.Market), string(s.Side), s.Line,
			s.Bookmaker, s.Odds, s.ModelProb, s.EdgePct, s.SampleSize, s.RulesVersion,
			s.Live, s.KickoffAt, s.ComputedAt,
		); err != nil {
			return inserted, fmt.Errorf("upsert selection %s: %w", s.LegID(), err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("commit replace window: %w", err)
	}
	return inserted, nil
}

// Search runs a filtered, paginated window read. With ShowAllOdds=false the
// best-odds row per (fixture, market, side, line) is returned; otherwise up
// to MaxBookmakersPerKey rows per key, descending by odds (enforced at
// write time).
func (r *Repo) Search(ctx context.Context, q Query) (Result, error) {
	start, end := q.Window()
	res := Result{WindowStart: start, WindowEnd: end}

	if err := r.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM qualified_selections WHERE kickoff_at >= $1 AND kickoff_at < $2`,
		start, end,
	).Scan(&res.TotalQualified); err != nil {
		return res, fmt.Errorf("count window: %w", err)
	}

	where := []string{"kickoff_at >= $1", "kickoff_at < $2"}
	args := []any{start, end}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Market != "" {
		where = append(where, "market = "+arg(string(q.Market)))
	}
	if q.Side != "" {
		where = append(where, "side = "+arg(string(q.Side)))
	}
	if q.Line != nil {
		where = append(where, "line = "+arg(*q.Line))
	}
	if q.MinOdds > 0 {
		where = append(where, "odds >= "+arg(q.MinOdds))
	}
	if q.CountryCode != "" {
		where = append(where, "country_code = "+arg(q.CountryCode))
	}
	if len(q.LeagueIDs) > 0 {
		where = append(where, "league_id = ANY("+arg(pq.Array(q.LeagueIDs))+")")
	}
	if q.Live != nil {
		where = append(where, "live = "+arg(*q.Live))
	}

	cols := `fixture_id, league_id, country_code, market, side, line, bookmaker,
	         odds, model_prob, edge_pct, sample_size, rules_version, live,
	         kickoff_at, computed_at`

	base := fmt.Sprintf(`SELECT %s FROM qualified_selections WHERE %s`, cols, strings.Join(where, " AND "))
	if !q.ShowAllOdds {
		base = fmt.Sprintf(
			`SELECT DISTINCT ON (fixture_id, market, side, line) %s
			 FROM qualified_selections WHERE %s
			 ORDER BY fixture_id, market, side, line, odds DESC`,
			cols, strings.Join(where, " AND "),
		)
	}

	if err := r.DB.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT count(*) FROM (%s) matched`, base), args...,
	).Scan(&res.Count); err != nil {
		return res, fmt.Errorf("count matched: %w", err)
	}

	full := fmt.Sprintf(
		`SELECT * FROM (%s) matched ORDER BY kickoff_at, fixture_id, market, side, line, odds DESC LIMIT %s OFFSET %s`,
		base, arg(q.Limit), arg(q.Offset),
	)

	rows, err := r.DB.QueryContext(ctx, full, args...)
	if err != nil {
		return res, fmt.Errorf("search selections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.QualifiedSelection
		var market, side string
		if err := rows.Scan(
			&s.FixtureID, &s.LeagueID, &s.CountryCode, &market, &side, &s.Line,
			&s.Bookmaker, &s.Odds, &s.ModelProb, &s.EdgePct, &s.SampleSize,
			&s.RulesVersion, &s.Live, &s.KickoffAt, &s.ComputedAt,
		); err != nil {
			return res, err
		}
		s.Market = domain.Market(market)
		s.Side = domain.Side(side)
		res.Selections = append(res.Selections, s)
	}
	return res, rows.Err()
}

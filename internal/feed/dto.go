package feed

// Raw provider payload shapes. Only the fields the pipeline reads are
// declared; everything else in the provider envelope is ignored.

type envelope[T any] struct {
	Response []T `json:"response"`
}

type rawFixture struct {
	Fixture struct {
		ID     int64  `json:"id"`
		Date   string `json:"date"` // RFC3339
		Status struct {
			Short string `json:"short"` // NS, 1H, HT, 2H, FT, ...
		} `json:"status"`
	} `json:"fixture"`
	League struct {
		ID      int64  `json:"id"`
		Country string `json:"country"`
		Code    string `json:"code"`
	} `json:"league"`
	Teams struct {
		Home struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"home"`
		Away struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"away"`
	} `json:"teams"`
	Goals struct {
		Home *int `json:"home"`
		Away *int `json:"away"`
	} `json:"goals"`
}

type rawTeamStatistics struct {
	Team struct {
		ID int64 `json:"id"`
	} `json:"team"`
	Statistics []struct {
		Type  string `json:"type"`
		Value any    `json:"value"` // number or null
	} `json:"statistics"`
}

// RawOddsPayload is the unnormalized odds document for one fixture. The
// odds normalizer turns it into canonical quotes.
type RawOddsPayload struct {
	FixtureID  int64          `json:"fixture_id"`
	Live       bool           `json:"live"`
	Bookmakers []RawBookmaker `json:"bookmakers"`
}

type RawBookmaker struct {
	ID   int64    `json:"id"`
	Name string   `json:"name"`
	Bets []RawBet `json:"bets"`
}

type RawBet struct {
	ID     int           `json:"id"`
	Name   string        `json:"name"`
	Values []RawBetValue `json:"values"`
}

type RawBetValue struct {
	Value string `json:"value"` // "Over 2.5", "Under 2.5", ...
	Odd   string `json:"odd"`   // decimal odds as string
}

type rawOdds struct {
	Fixture struct {
		ID int64 `json:"id"`
	} `json:"fixture"`
	Bookmakers []RawBookmaker `json:"bookmakers"`
}

// FixtureMetrics is one finished fixture's realized numbers for a single
// team, input to the stats aggregator.
type FixtureMetrics struct {
	FixtureID int64
	Goals     float64
	Corners   float64
	Cards     float64
	Fouls     float64
	Offsides  float64
}

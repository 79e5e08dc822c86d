package odds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/feed"
)

func TestNormalizeAllowList(t *testing.T) {
	capturedAt := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	raw := feed.RawOddsPayload{
		FixtureID: 42,
		Bookmakers: []feed.RawBookmaker{
			{
				Name: "Bet365",
				Bets: []feed.RawBet{
					{ID: 5, Name: "Goals Over/Under", Values: []feed.RawBetValue{
						{Value: "Over 2.5", Odd: "1.85"},
						{Value: "Under 2.5", Odd: "1.95"},
					}},
					{ID: 45, Name: "Corners Over Under", Values: []feed.RawBetValue{
						{Value: "Over 9.5", Odd: "2.10"},
					}},
					{ID: 80, Name: "Cards Over/Under", Values: []feed.RawBetValue{
						{Value: "Under 4.5", Odd: "1.70"},
					}},
					// handicap market, not on the allow-list
					{ID: 4, Name: "Asian Handicap", Values: []feed.RawBetValue{
						{Value: "Home -1.5", Odd: "2.30"},
					}},
				},
			},
		},
	}

	quotes := Normalize(raw, capturedAt)
	require.Len(t, quotes, 4)

	assert.Equal(t, domain.OddsQuote{
		FixtureID:  42,
		Bookmaker:  "Bet365",
		Market:     domain.MarketGoals,
		Side:       domain.SideOver,
		Line:       2.5,
		Odds:       1.85,
		CapturedAt: capturedAt,
	}, quotes[0])

	markets := map[domain.Market]int{}
	for _, q := range quotes {
		markets[q.Market]++
	}
	assert.Equal(t, 2, markets[domain.MarketGoals])
	assert.Equal(t, 1, markets[domain.MarketCorners])
	assert.Equal(t, 1, markets[domain.MarketCards])
}

func TestNormalizeDropsMalformedValues(t *testing.T) {
	raw := feed.RawOddsPayload{
		FixtureID: 7,
		Bookmakers: []feed.RawBookmaker{
			{
				Name: "Pinnacle",
				Bets: []feed.RawBet{
					{ID: 5, Values: []feed.RawBetValue{
						{Value: "Over 2.5/3", Odd: "1.90"}, // asian split line
						{Value: "Exactly 2", Odd: "5.50"},
						{Value: "Over abc", Odd: "1.80"},
						{Value: "Over 2.5", Odd: "not-a-number"},
						{Value: "Over 2.5", Odd: "1.00"}, // no payout
						{Value: "Over 2.5", Odd: "0.95"},
						{Value: "Under 2.5", Odd: "2.05"}, // the one survivor
					}},
				},
			},
		},
	}

	quotes := Normalize(raw, time.Now())
	require.Len(t, quotes, 1)
	assert.Equal(t, domain.SideUnder, quotes[0].Side)
	assert.Equal(t, 2.05, quotes[0].Odds)
}

func TestNormalizeCarriesLiveFlag(t *testing.T) {
	raw := feed.RawOddsPayload{
		FixtureID: 9,
		Live:      true,
		Bookmakers: []feed.RawBookmaker{
			{Name: "Bwin", Bets: []feed.RawBet{
				{ID: 5, Values: []feed.RawBetValue{{Value: "Over 1.5", Odd: "1.40"}}},
			}},
		},
	}

	quotes := Normalize(raw, time.Now())
	require.Len(t, quotes, 1)
	assert.True(t, quotes[0].Live)
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		side domain.Side
		line float64
		ok   bool
	}{
		{"Over 2.5", domain.SideOver, 2.5, true},
		{"Under 9.5", domain.SideUnder, 9.5, true},
		{"Over 0", "", 0, false},
		{"Over", "", 0, false},
		{"Over 2.5 Cards", "", 0, false},
		{"over 2.5", "", 0, false},
	}
	for _, tc := range cases {
		side, line, ok := parseValue(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.side, side, tc.in)
			assert.Equal(t, tc.line, line, tc.in)
		}
	}
}

package odds

import (
	"strconv"
	"strings"
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/feed"
)

// Official bet-type ids accepted per market, full-match scope only. Partial
// time, handicap and derivative markets carry different ids and fall
// through the allow-list.
var allowedBets = map[int]domain.Market{
	5:  domain.MarketGoals,   // Goals Over/Under
	45: domain.MarketCorners, // Corners Over Under
	80: domain.MarketCards,   // Cards Over/Under
}

// Normalize maps a raw bookmaker payload into canonical quotes. Records
// outside the allow-list or with unparseable values are silently excluded;
// an unsupported market is not a fetch fault.
func Normalize(raw feed.RawOddsPayload, capturedAt time.Time) []domain.OddsQuote {
	var out []domain.OddsQuote
	for _, bm := range raw.Bookmakers {
		for _, bet := range bm.Bets {
			market, ok := allowedBets[bet.ID]
			if !ok {
				continue
			}
			for _, val := range bet.Values {
				side, line, ok := parseValue(val.Value)
				if !ok {
					continue
				}
				price, err := strconv.ParseFloat(val.Odd, 64)
				if err != nil || price <= 1.0 {
					continue
				}
				out = append(out, domain.OddsQuote{
					FixtureID:  raw.FixtureID,
					Bookmaker:  bm.Name,
					Market:     market,
					Side:       side,
					Line:       line,
					Odds:       price,
					Live:       raw.Live,
					CapturedAt: capturedAt,
				})
			}
		}
	}
	return out
}

// parseValue splits "Over 2.5" / "Under 9.5" into side and line. Anything
// else (exact totals, asian lines, "Over 2.5/3") is rejected.
func parseValue(v string) (domain.Side, float64, bool) {
	fields := strings.Fields(v)
	if len(fields) != 2 {
		return "", 0, false
	}

	var side domain.Side
	switch fields[0] {
	case "Over":
		side = domain.SideOver
	case "Under":
		side = domain.SideUnder
	default:
		return "", 0, false
	}

	line, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || line <= 0 {
		return "", 0, false
	}
	return side, line, true
}

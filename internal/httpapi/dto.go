package httpapi

import (
	"time"

	"github.com/anjelocrypto/fixture-vision-sub001/internal/domain"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/rules"
	"github.com/anjelocrypto/fixture-vision-sub001/internal/ticket"
)

type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Debug struct {
	Counters map[string]int      `json:"counters"`
	Stages   rules.StageCounters `json:"stages"`
}

// SelectionsResponse reports matches plus enough debug context to explain
// an empty result instead of returning an opaque empty list.
type SelectionsResponse struct {
	Selections     []domain.QualifiedSelection `json:"selections"`
	Count          int                         `json:"count"`
	TotalQualified int                         `json:"total_qualified"`
	Window         Window                      `json:"window"`
	Debug          Debug                       `json:"debug"`
	Reasons        []string                    `json:"reasons,omitempty"`
}

type OptimizeTicketRequest struct {
	TargetMin      float64  `json:"targetMin"`
	TargetMax      float64  `json:"targetMax"`
	MinLegs        int      `json:"minLegs"`
	MaxLegs        int      `json:"maxLegs"`
	IncludeMarkets []string `json:"includeMarkets"`
	ExcludeMarkets []string `json:"excludeMarkets,omitempty"`
	Risk           string   `json:"risk,omitempty"`
}

type ShuffleTicketRequest struct {
	LockedLegIDs       []string `json:"lockedLegIds"`
	TargetLegs         int      `json:"targetLegs"`
	MinOdds            float64  `json:"minOdds"`
	MaxOdds            float64  `json:"maxOdds"`
	IncludeMarkets     []string `json:"includeMarkets"`
	PreviousTicketHash string   `json:"previousTicketHash,omitempty"`
	Seed               *int64   `json:"seed,omitempty"`
}

// TicketResponse embeds the composed ticket; shuffle responses add
// is_different against the previously supplied hash.
type TicketResponse struct {
	ticket.Ticket
	IsDifferent *bool    `json:"is_different,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
}

type JobRunRequest struct {
	WindowHours int  `json:"window_hours,omitempty"`
	Force       bool `json:"force,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

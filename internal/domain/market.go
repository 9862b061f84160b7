// Package domain defines the core types and store interfaces shared by the
// InfoFi coordinator: markets, pricing, arbitrage records, chain events, and
// event-processing cursors.
package domain

import (
	"strings"
	"time"
)

// MarketType identifies the kind of prediction instrument attached to a
// raffle position.
type MarketType string

const (
	// MarketTypeWinnerPrediction is a binary market on whether the player
	// wins the season.
	MarketTypeWinnerPrediction MarketType = "WINNER_PREDICTION"
)

// Basis-point bounds. Probabilities and weights are integers in [0, 10000].
const (
	BpsMax = 10000
)

// Market is an InfoFi prediction market tied to a (season, player) pair. A
// market row exists only after the on-chain factory has emitted MarketCreated;
// rows are never written speculatively.
type Market struct {
	ID                    int64
	SeasonID              int64
	PlayerAddress         string // always lowercase hex
	MarketType            MarketType
	InitialProbabilityBps int
	CurrentProbabilityBps int
	ConditionID           string
	ContractAddress       string // FPMM address; empty until deployed
	IsActive              bool
	IsSettled             bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Player is a raffle participant. The lowercase address is the canonical
// identifier; the row exists for bookkeeping only.
type Player struct {
	ID        int64
	Address   string // lowercase hex
	CreatedAt time.Time
}

// NormalizeAddress lowercases a hex address so all store lookups and writes
// agree on one canonical form.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// ProbabilityBps computes a win probability in basis points as
// floor(tickets * 10000 / totalTickets). A season with zero total tickets has
// all probabilities at zero.
func ProbabilityBps(tickets, totalTickets uint64) int {
	if totalTickets == 0 {
		return 0
	}
	return int(tickets * BpsMax / totalTickets)
}

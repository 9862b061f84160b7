// Package service implements the coordination handlers: probability
// recomputation, market creation, hybrid pricing, and arbitrage detection.
package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sofmarkets/infofid/internal/domain"
)

// HybridPriceBps blends the raffle-derived probability with the FPMM
// sentiment under integer weights that sum to 10000. Integer division floors,
// so the result is within one bp of the exact blend.
func HybridPriceBps(raffleBps, sentimentBps, raffleWeightBps, marketWeightBps int) int {
	return (raffleWeightBps*raffleBps + marketWeightBps*sentimentBps) / domain.BpsMax
}

// bpsToPct converts basis points to a percentage.
func bpsToPct(bps int) float64 {
	return float64(bps) / 100
}

// DetectOpportunity compares the raffle-implied price against the FPMM's
// traded YES price and builds an arbitrage record when the absolute
// difference meets thresholdBps. The profitability is the price gap relative
// to the cheaper side, which is the side the strategy buys.
func DetectOpportunity(m domain.Market, raffleBps, sentimentBps, thresholdBps int) (domain.ArbitrageOpportunity, bool) {
	diffBps := raffleBps - sentimentBps
	if diffBps < 0 {
		diffBps = -diffBps
	}
	if diffBps < thresholdBps {
		return domain.ArbitrageOpportunity{}, false
	}

	rafflePct := bpsToPct(raffleBps)
	marketPct := bpsToPct(sentimentBps)

	cheaper := raffleBps
	var strategy string
	if raffleBps < sentimentBps {
		strategy = fmt.Sprintf(
			"Buy raffle position at %.2f%%, sell prediction-market YES at %.2f%%",
			rafflePct, marketPct,
		)
	} else {
		cheaper = sentimentBps
		strategy = fmt.Sprintf(
			"Buy prediction-market YES at %.2f%%, exit raffle exposure at %.2f%%",
			marketPct, rafflePct,
		)
	}

	profitability := 0.0
	if cheaper > 0 {
		profitability = float64(diffBps) / float64(cheaper) * 100
	}

	return domain.ArbitrageOpportunity{
		ID:                 uuid.New().String(),
		SeasonID:           m.SeasonID,
		PlayerAddress:      m.PlayerAddress,
		MarketID:           m.ID,
		RafflePricePct:     rafflePct,
		MarketPricePct:     marketPct,
		PriceDifferencePct: bpsToPct(diffBps),
		ProfitabilityPct:   profitability,
		StrategyText:       strategy,
		CreatedAt:          time.Now().UTC(),
	}, true
}

package domain

import "time"

// Default hybrid weights: 70% raffle-derived probability, 30% FPMM sentiment.
const (
	DefaultRaffleWeightBps = 7000
	DefaultMarketWeightBps = 3000
)

// PricingCacheRow is the persisted blend of raffle probability and market
// sentiment for one market. Weights always sum to exactly 10000.
type PricingCacheRow struct {
	MarketID             int64
	RaffleProbabilityBps int
	MarketSentimentBps   int
	HybridPriceBps       int
	RaffleWeightBps      int
	MarketWeightBps      int
	LastUpdated          time.Time
}

// PriceUpdate is the message fanned out to stream subscribers whenever the
// hub's cache changes.
type PriceUpdate struct {
	Type         string `json:"type"` // "initial", "update" or "heartbeat"
	MarketID     int64  `json:"marketId"`
	RaffleBps    int    `json:"raffleBps,omitempty"`
	SentimentBps int    `json:"sentimentBps,omitempty"`
	HybridBps    int    `json:"hybridBps,omitempty"`
	Ts           int64  `json:"ts"`
}

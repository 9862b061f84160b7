package domain

import "time"

// ArbitrageOpportunity records an observed divergence between the raffle's
// implied price and the FPMM's traded price for one market. Rows are
// append-only; the monitor enforces a per-market deduplication window before
// inserting.
type ArbitrageOpportunity struct {
	ID                 string    `json:"id"` // uuid
	SeasonID           int64     `json:"seasonId"`
	PlayerAddress      string    `json:"playerAddress"` // lowercase hex
	MarketID           int64     `json:"marketId"`
	RafflePricePct     float64   `json:"rafflePricePct"`
	MarketPricePct     float64   `json:"marketPricePct"`
	PriceDifferencePct float64   `json:"priceDifferencePct"`
	ProfitabilityPct   float64   `json:"profitabilityPct"`
	StrategyText       string    `json:"strategy"`
	CreatedAt          time.Time `json:"createdAt"`
}

// CreationAttempt is an audit record of one market-creation transaction
// attempt. Failures are retained for operator diagnosis; they are never
// surfaced to end users.
type CreationAttempt struct {
	ID            int64
	SeasonID      int64
	PlayerAddress string // lowercase hex
	Attempt       int
	TxHash        string
	ErrorKind     string // empty on success
	ErrorDetail   string
	Permanent     bool
	CreatedAt     time.Time
}

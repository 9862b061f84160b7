package domain

// EventType names one chain event stream tracked by a listener cursor.
type EventType string

const (
	EventPositionUpdate  EventType = "PositionUpdate"
	EventMarketCreated   EventType = "MarketCreated"
	EventTrade           EventType = "Trade"
	EventPriceUpdated    EventType = "PriceUpdated"
	EventSeasonStarted   EventType = "SeasonStarted"
	EventSeasonCompleted EventType = "SeasonCompleted"
)

// LogRef identifies one log uniquely within a chain. Handlers are idempotent
// on this pair: redelivering the same (block, index) is a no-op.
type LogRef struct {
	BlockNumber uint64
	LogIndex    uint
	TxHash      string
}

// PositionUpdateEvent is emitted by the bonding curve on every ticket
// position change.
type PositionUpdateEvent struct {
	Ref            LogRef
	SeasonID       int64
	Player         string // lowercase hex
	OldTickets     uint64
	NewTickets     uint64
	TotalTickets   uint64
	ProbabilityBps int
}

// MarketCreatedEvent is emitted by the market factory once the per-player
// market contract has been deployed.
type MarketCreatedEvent struct {
	Ref         LogRef
	SeasonID    int64
	Player      string // lowercase hex
	MarketType  MarketType
	ConditionID string
	FPMMAddress string
}

// TradeEvent is emitted by an FPMM on every swap. The emitting contract
// address identifies the market.
type TradeEvent struct {
	Ref       LogRef
	FPMM      string // lowercase hex of the emitting FPMM
	Trader    string
	BuyYes    bool
	AmountIn  uint64
	AmountOut uint64
}

// PriceUpdatedEvent is emitted by the oracle after a probability or sentiment
// write; it is the authoritative feed for the price stream hub.
type PriceUpdatedEvent struct {
	Ref       LogRef
	MarketID  int64
	RaffleBps int
	MarketBps int
	HybridBps int
}

// SeasonStartedEvent and SeasonCompletedEvent are season lifecycle markers.
type SeasonStartedEvent struct {
	Ref      LogRef
	SeasonID int64
}

type SeasonCompletedEvent struct {
	Ref      LogRef
	SeasonID int64
	Winners  []string // lowercase hex
}

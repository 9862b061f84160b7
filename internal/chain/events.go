package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sofmarkets/infofid/internal/domain"
)

// Event topic hashes, precomputed from the ABIs.
var (
	TopicPositionUpdate  = CurveABI.Events["PositionUpdate"].ID
	TopicMarketCreated   = FactoryABI.Events["MarketCreated"].ID
	TopicTrade           = FPMMABI.Events["Trade"].ID
	TopicPriceUpdated    = OracleABI.Events["PriceUpdated"].ID
	TopicSeasonStarted   = RaffleABI.Events["SeasonStarted"].ID
	TopicSeasonCompleted = RaffleABI.Events["SeasonCompleted"].ID
)

// winnerPredictionHash is keccak256("WINNER_PREDICTION"), the bytes32 the
// factory emits for the winner-prediction market type.
var winnerPredictionHash = ethcrypto.Keccak256Hash([]byte(domain.MarketTypeWinnerPrediction))

func logRef(l types.Log) domain.LogRef {
	return domain.LogRef{
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
		TxHash:      l.TxHash.Hex(),
	}
}

func topicInt64(t common.Hash) int64 {
	return new(big.Int).SetBytes(t.Bytes()).Int64()
}

func topicAddress(t common.Hash) string {
	return domain.NormalizeAddress(common.HexToAddress(t.Hex()).Hex())
}

// DecodePositionUpdate decodes a bonding-curve PositionUpdate log.
func DecodePositionUpdate(l types.Log) (domain.PositionUpdateEvent, error) {
	if len(l.Topics) < 3 {
		return domain.PositionUpdateEvent{}, fmt.Errorf("chain: PositionUpdate: want 3 topics, got %d", len(l.Topics))
	}
	vals, err := CurveABI.Events["PositionUpdate"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return domain.PositionUpdateEvent{}, fmt.Errorf("chain: PositionUpdate: unpack: %w", err)
	}
	return domain.PositionUpdateEvent{
		Ref:            logRef(l),
		SeasonID:       topicInt64(l.Topics[1]),
		Player:         topicAddress(l.Topics[2]),
		OldTickets:     bigToUint64(vals[0].(*big.Int)),
		NewTickets:     bigToUint64(vals[1].(*big.Int)),
		TotalTickets:   bigToUint64(vals[2].(*big.Int)),
		ProbabilityBps: bigToBps(vals[3].(*big.Int)),
	}, nil
}

// DecodeMarketCreated decodes a factory MarketCreated log.
func DecodeMarketCreated(l types.Log) (domain.MarketCreatedEvent, error) {
	if len(l.Topics) < 3 {
		return domain.MarketCreatedEvent{}, fmt.Errorf("chain: MarketCreated: want 3 topics, got %d", len(l.Topics))
	}
	vals, err := FactoryABI.Events["MarketCreated"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return domain.MarketCreatedEvent{}, fmt.Errorf("chain: MarketCreated: unpack: %w", err)
	}
	rawType := vals[0].([32]byte)
	rawCond := vals[1].([32]byte)
	fpmm := vals[2].(common.Address)

	return domain.MarketCreatedEvent{
		Ref:         logRef(l),
		SeasonID:    topicInt64(l.Topics[1]),
		Player:      topicAddress(l.Topics[2]),
		MarketType:  decodeMarketType(rawType),
		ConditionID: common.BytesToHash(rawCond[:]).Hex(),
		FPMMAddress: domain.NormalizeAddress(fpmm.Hex()),
	}, nil
}

// decodeMarketType maps the emitted bytes32 to a known market type. The
// factory hashes the type name; unknown hashes fall back to the hex form so
// the row is still recorded.
func decodeMarketType(raw [32]byte) domain.MarketType {
	h := common.BytesToHash(raw[:])
	if h == winnerPredictionHash {
		return domain.MarketTypeWinnerPrediction
	}
	return domain.MarketType(h.Hex())
}

// DecodeTrade decodes an FPMM Trade log. The emitting contract address
// identifies the market.
func DecodeTrade(l types.Log) (domain.TradeEvent, error) {
	if len(l.Topics) < 2 {
		return domain.TradeEvent{}, fmt.Errorf("chain: Trade: want 2 topics, got %d", len(l.Topics))
	}
	vals, err := FPMMABI.Events["Trade"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return domain.TradeEvent{}, fmt.Errorf("chain: Trade: unpack: %w", err)
	}
	return domain.TradeEvent{
		Ref:       logRef(l),
		FPMM:      domain.NormalizeAddress(l.Address.Hex()),
		Trader:    topicAddress(l.Topics[1]),
		BuyYes:    vals[0].(bool),
		AmountIn:  bigToUint64(vals[1].(*big.Int)),
		AmountOut: bigToUint64(vals[2].(*big.Int)),
	}, nil
}

// DecodePriceUpdated decodes an oracle PriceUpdated log.
func DecodePriceUpdated(l types.Log) (domain.PriceUpdatedEvent, error) {
	if len(l.Topics) < 2 {
		return domain.PriceUpdatedEvent{}, fmt.Errorf("chain: PriceUpdated: want 2 topics, got %d", len(l.Topics))
	}
	vals, err := OracleABI.Events["PriceUpdated"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return domain.PriceUpdatedEvent{}, fmt.Errorf("chain: PriceUpdated: unpack: %w", err)
	}
	return domain.PriceUpdatedEvent{
		Ref:       logRef(l),
		MarketID:  topicInt64(l.Topics[1]),
		RaffleBps: bigToBps(vals[0].(*big.Int)),
		MarketBps: bigToBps(vals[1].(*big.Int)),
		HybridBps: bigToBps(vals[2].(*big.Int)),
	}, nil
}

// DecodeSeasonStarted decodes a raffle SeasonStarted log.
func DecodeSeasonStarted(l types.Log) (domain.SeasonStartedEvent, error) {
	if len(l.Topics) < 2 {
		return domain.SeasonStartedEvent{}, fmt.Errorf("chain: SeasonStarted: want 2 topics, got %d", len(l.Topics))
	}
	return domain.SeasonStartedEvent{
		Ref:      logRef(l),
		SeasonID: topicInt64(l.Topics[1]),
	}, nil
}

// DecodeSeasonCompleted decodes a raffle SeasonCompleted log.
func DecodeSeasonCompleted(l types.Log) (domain.SeasonCompletedEvent, error) {
	if len(l.Topics) < 2 {
		return domain.SeasonCompletedEvent{}, fmt.Errorf("chain: SeasonCompleted: want 2 topics, got %d", len(l.Topics))
	}
	vals, err := RaffleABI.Events["SeasonCompleted"].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return domain.SeasonCompletedEvent{}, fmt.Errorf("chain: SeasonCompleted: unpack: %w", err)
	}
	raw := vals[0].([]common.Address)
	winners := make([]string, 0, len(raw))
	for _, w := range raw {
		winners = append(winners, domain.NormalizeAddress(w.Hex()))
	}
	return domain.SeasonCompletedEvent{
		Ref:      logRef(l),
		SeasonID: topicInt64(l.Topics[1]),
		Winners:  winners,
	}, nil
}

package listener

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/domain"
)

// Handlers bundles the callbacks the listener set drives. Each callback is
// invoked in (blockNumber, logIndex) order within its own event stream; no
// ordering holds across streams.
type Handlers struct {
	OnPositionUpdate  func(ctx context.Context, ev domain.PositionUpdateEvent) error
	OnMarketCreated   func(ctx context.Context, ev domain.MarketCreatedEvent) error
	OnTrade           func(ctx context.Context, ev domain.TradeEvent) error
	OnPriceUpdated    func(ctx context.Context, ev domain.PriceUpdatedEvent) error
	OnSeasonStarted   func(ctx context.Context, ev domain.SeasonStartedEvent) error
	OnSeasonCompleted func(ctx context.Context, ev domain.SeasonCompletedEvent) error
}

// Addresses holds the contract addresses the listeners filter on.
type Addresses struct {
	Curve   common.Address
	Factory common.Address
	Oracle  common.Address
	Raffle  common.Address
}

// NewSet builds one listener per registered event type. The Trade listener
// carries no address filter: FPMM contracts are deployed per market, so it
// matches the Trade topic on any contract and the handler drops logs from
// unknown addresses.
func NewSet(cfg Config, addrs Addresses, ch Chain, cursors domain.CursorStore, h Handlers, logger *slog.Logger) []*PollLoop {
	return []*PollLoop{
		New(cfg, domain.EventPositionUpdate,
			[]common.Address{addrs.Curve},
			[][]common.Hash{{chain.TopicPositionUpdate}},
			ch, cursors,
			func(ctx context.Context, l types.Log) error {
				ev, err := chain.DecodePositionUpdate(l)
				if err != nil {
					return err
				}
				return h.OnPositionUpdate(ctx, ev)
			}, logger),

		New(cfg, domain.EventMarketCreated,
			[]common.Address{addrs.Factory},
			[][]common.Hash{{chain.TopicMarketCreated}},
			ch, cursors,
			func(ctx context.Context, l types.Log) error {
				ev, err := chain.DecodeMarketCreated(l)
				if err != nil {
					return err
				}
				return h.OnMarketCreated(ctx, ev)
			}, logger),

		New(cfg, domain.EventTrade,
			nil,
			[][]common.Hash{{chain.TopicTrade}},
			ch, cursors,
			func(ctx context.Context, l types.Log) error {
				ev, err := chain.DecodeTrade(l)
				if err != nil {
					return err
				}
				return h.OnTrade(ctx, ev)
			}, logger),

		New(cfg, domain.EventPriceUpdated,
			[]common.Address{addrs.Oracle},
			[][]common.Hash{{chain.TopicPriceUpdated}},
			ch, cursors,
			func(ctx context.Context, l types.Log) error {
				ev, err := chain.DecodePriceUpdated(l)
				if err != nil {
					return err
				}
				return h.OnPriceUpdated(ctx, ev)
			}, logger),

		New(cfg, domain.EventSeasonStarted,
			[]common.Address{addrs.Raffle},
			[][]common.Hash{{chain.TopicSeasonStarted}},
			ch, cursors,
			func(ctx context.Context, l types.Log) error {
				ev, err := chain.DecodeSeasonStarted(l)
				if err != nil {
					return err
				}
				return h.OnSeasonStarted(ctx, ev)
			}, logger),

		New(cfg, domain.EventSeasonCompleted,
			[]common.Address{addrs.Raffle},
			[][]common.Hash{{chain.TopicSeasonCompleted}},
			ch, cursors,
			func(ctx context.Context, l types.Log) error {
				ev, err := chain.DecodeSeasonCompleted(l)
				if err != nil {
					return err
				}
				return h.OnSeasonCompleted(ctx, ev)
			}, logger),
	}
}

package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Raffle is a typed read-only view of the raffle contract.
type Raffle struct {
	client *Client
	addr   common.Address
}

// NewRaffle binds the raffle contract at addr.
func NewRaffle(client *Client, addr common.Address) *Raffle {
	return &Raffle{client: client, addr: addr}
}

// TotalTickets returns the season's total ticket count from getSeasonDetails.
func (r *Raffle) TotalTickets(ctx context.Context, seasonID int64) (uint64, error) {
	res, err := r.client.ReadContract(ctx, r.addr, RaffleABI, "getSeasonDetails", bigFromInt64(seasonID))
	if err != nil {
		return 0, err
	}
	total, err := asBig(res, 1, "getSeasonDetails")
	if err != nil {
		return 0, err
	}
	return bigToUint64(total), nil
}

// Participants returns the season's participant addresses.
func (r *Raffle) Participants(ctx context.Context, seasonID int64) ([]common.Address, error) {
	res, err := r.client.ReadContract(ctx, r.addr, RaffleABI, "getParticipants", bigFromInt64(seasonID))
	if err != nil {
		return nil, err
	}
	addrs, ok := res[0].([]common.Address)
	if !ok {
		return nil, &Error{Kind: KindFatal, Op: "getParticipants", Reason: "unexpected result shape"}
	}
	return addrs, nil
}

// ParticipantTickets returns one participant's current ticket count.
func (r *Raffle) ParticipantTickets(ctx context.Context, seasonID int64, player common.Address) (uint64, error) {
	res, err := r.client.ReadContract(ctx, r.addr, RaffleABI, "getParticipantPosition", bigFromInt64(seasonID), player)
	if err != nil {
		return 0, err
	}
	tickets, err := asBig(res, 0, "getParticipantPosition")
	if err != nil {
		return 0, err
	}
	return bigToUint64(tickets), nil
}

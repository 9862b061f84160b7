package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Factory wraps the market-factory contract: the restricted onPositionUpdate
// write that deploys per-player markets, and the getPlayerMarket view.
type Factory struct {
	client *Client
	sender *Sender
	addr   common.Address
}

// NewFactory binds the factory contract at addr. sender must hold the backend
// role on the contract.
func NewFactory(client *Client, sender *Sender, addr common.Address) *Factory {
	return &Factory{client: client, sender: sender, addr: addr}
}

// Address returns the factory contract address.
func (f *Factory) Address() common.Address { return f.addr }

// OnPositionUpdate submits the market-creation transaction. The explicit gas
// limit matters: the call deploys a new market contract (~4.2M gas) and node
// estimation has been observed to under-budget it.
func (f *Factory) OnPositionUpdate(ctx context.Context, seasonID int64, player common.Address, oldTickets, newTickets, totalTickets uint64, gasLimit uint64) (common.Hash, error) {
	return f.sender.Write(ctx, f.addr, FactoryABI, "onPositionUpdate", gasLimit,
		bigFromInt64(seasonID), player,
		new(big.Int).SetUint64(oldTickets),
		new(big.Int).SetUint64(newTickets),
		new(big.Int).SetUint64(totalTickets),
	)
}

// CallData packs the onPositionUpdate call for the sponsored (paymaster)
// submission path.
func (f *Factory) CallData(seasonID int64, player common.Address, oldTickets, newTickets, totalTickets uint64) ([]byte, error) {
	data, err := FactoryABI.Pack("onPositionUpdate",
		bigFromInt64(seasonID), player,
		new(big.Int).SetUint64(oldTickets),
		new(big.Int).SetUint64(newTickets),
		new(big.Int).SetUint64(totalTickets),
	)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Op: "pack onPositionUpdate", Err: err}
	}
	return data, nil
}

// PlayerMarket reports whether a market already exists on-chain for the
// (season, player) pair, and its condition id and FPMM address when it does.
func (f *Factory) PlayerMarket(ctx context.Context, seasonID int64, player common.Address) (created bool, conditionID common.Hash, fpmm common.Address, err error) {
	res, err := f.client.ReadContract(ctx, f.addr, FactoryABI, "getPlayerMarket", bigFromInt64(seasonID), player)
	if err != nil {
		return false, common.Hash{}, common.Address{}, err
	}
	created, _ = res[0].(bool)
	if raw, ok := res[1].([32]byte); ok {
		conditionID = common.BytesToHash(raw[:])
	}
	fpmm, _ = res[2].(common.Address)
	return created, conditionID, fpmm, nil
}

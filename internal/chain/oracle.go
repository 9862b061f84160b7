package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Oracle wraps the on-chain price oracle. The sender must hold the
// price-updater role.
type Oracle struct {
	sender *Sender
	addr   common.Address
}

// NewOracle binds the oracle contract at addr.
func NewOracle(sender *Sender, addr common.Address) *Oracle {
	return &Oracle{sender: sender, addr: addr}
}

// Address returns the oracle contract address.
func (o *Oracle) Address() common.Address { return o.addr }

// UpdateRaffleProbability writes one market's raffle probability. Gas is
// estimated; the call is a storage write, not a deploy.
func (o *Oracle) UpdateRaffleProbability(ctx context.Context, marketID int64, probabilityBps int) (common.Hash, error) {
	return o.sender.Write(ctx, o.addr, OracleABI, "updateRaffleProbability", 0,
		bigFromInt64(marketID), big.NewInt(int64(probabilityBps)),
	)
}

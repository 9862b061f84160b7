package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// FPMM is a typed read-only view of one fixed-product market maker.
type FPMM struct {
	client *Client
	addr   common.Address
}

// NewFPMM binds the FPMM contract at addr.
func NewFPMM(client *Client, addr common.Address) *FPMM {
	return &FPMM{client: client, addr: addr}
}

// Prices returns the traded (yes, no) prices in basis points.
func (m *FPMM) Prices(ctx context.Context) (yesBps, noBps int, err error) {
	res, err := m.client.ReadContract(ctx, m.addr, FPMMABI, "getPrices")
	if err != nil {
		return 0, 0, err
	}
	yes, err := asBig(res, 0, "getPrices")
	if err != nil {
		return 0, 0, err
	}
	no, err := asBig(res, 1, "getPrices")
	if err != nil {
		return 0, 0, err
	}
	return bigToBps(yes), bigToBps(no), nil
}

// Reserves returns the raw yes/no reserves.
func (m *FPMM) Reserves(ctx context.Context) (yes, no uint64, err error) {
	resYes, err := m.client.ReadContract(ctx, m.addr, FPMMABI, "yesReserve")
	if err != nil {
		return 0, 0, err
	}
	resNo, err := m.client.ReadContract(ctx, m.addr, FPMMABI, "noReserve")
	if err != nil {
		return 0, 0, err
	}
	y, err := asBig(resYes, 0, "yesReserve")
	if err != nil {
		return 0, 0, err
	}
	n, err := asBig(resNo, 0, "noReserve")
	if err != nil {
		return 0, 0, err
	}
	return bigToUint64(y), bigToUint64(n), nil
}

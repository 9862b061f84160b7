package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// Paymaster submits sponsored calls through a wallet_sendCalls-capable
// endpoint with a paymaster-service capability attached. The target contract
// must be on the paymaster's allow-list; callers keep a non-sponsored
// fallback.
type Paymaster struct {
	client *Client
	url    string
	from   common.Address
}

// NewPaymaster creates a Paymaster using the given sponsorship service URL.
func NewPaymaster(client *Client, url string, from common.Address) *Paymaster {
	return &Paymaster{client: client, url: url, from: from}
}

type sponsoredCall struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type sendCallsParams struct {
	Version      string                    `json:"version"`
	ID           string                    `json:"id"`
	From         string                    `json:"from"`
	Calls        []sponsoredCall           `json:"calls"`
	Capabilities map[string]map[string]any `json:"capabilities"`
}

// SendSponsored submits a single sponsored call and returns the bundle id
// assigned by the wallet service. Errors are classified like any other RPC
// failure so the caller's retry policy applies unchanged.
func (p *Paymaster) SendSponsored(ctx context.Context, to common.Address, data []byte) (string, error) {
	params := sendCallsParams{
		Version: "1.0",
		ID:      uuid.New().String(),
		From:    p.from.Hex(),
		Calls: []sponsoredCall{{
			To:   to.Hex(),
			Data: hexutil.Encode(data),
		}},
		Capabilities: map[string]map[string]any{
			"paymasterService": {"url": p.url},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.client.callTimeout)
	defer cancel()

	var bundleID string
	if err := p.client.rpc.CallContext(ctx, &bundleID, "wallet_sendCalls", params); err != nil {
		return "", classify("wallet_sendCalls", err)
	}
	if bundleID == "" {
		return "", &Error{Kind: KindTransient, Op: "wallet_sendCalls", Reason: fmt.Sprintf("empty bundle id for call %s", params.ID)}
	}
	return bundleID, nil
}

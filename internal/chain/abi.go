package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, trimmed to the surface the coordinator consumes. These must
// match the deployed contracts exactly.

const raffleABI = `[
	{"type":"function","name":"getSeasonDetails","stateMutability":"view",
	 "inputs":[{"name":"seasonId","type":"uint256"}],
	 "outputs":[{"name":"status","type":"uint8"},{"name":"totalTickets","type":"uint256"},{"name":"totalParticipants","type":"uint256"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"}]},
	{"type":"function","name":"getParticipants","stateMutability":"view",
	 "inputs":[{"name":"seasonId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getParticipantPosition","stateMutability":"view",
	 "inputs":[{"name":"seasonId","type":"uint256"},{"name":"player","type":"address"}],
	 "outputs":[{"name":"ticketCount","type":"uint256"},{"name":"entryBlock","type":"uint256"},{"name":"lastUpdateBlock","type":"uint256"}]},
	{"type":"event","name":"SeasonStarted","anonymous":false,
	 "inputs":[{"indexed":true,"name":"seasonId","type":"uint256"}]},
	{"type":"event","name":"SeasonCompleted","anonymous":false,
	 "inputs":[{"indexed":true,"name":"seasonId","type":"uint256"},{"indexed":false,"name":"winners","type":"address[]"}]}
]`

const curveABI = `[
	{"type":"event","name":"PositionUpdate","anonymous":false,
	 "inputs":[
		{"indexed":true,"name":"seasonId","type":"uint256"},
		{"indexed":true,"name":"player","type":"address"},
		{"indexed":false,"name":"oldTickets","type":"uint256"},
		{"indexed":false,"name":"newTickets","type":"uint256"},
		{"indexed":false,"name":"totalTickets","type":"uint256"},
		{"indexed":false,"name":"probabilityBps","type":"uint256"}]}
]`

const factoryABI = `[
	{"type":"function","name":"onPositionUpdate","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"seasonId","type":"uint256"},
		{"name":"player","type":"address"},
		{"name":"oldTickets","type":"uint256"},
		{"name":"newTickets","type":"uint256"},
		{"name":"totalTickets","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"getPlayerMarket","stateMutability":"view",
	 "inputs":[{"name":"seasonId","type":"uint256"},{"name":"player","type":"address"}],
	 "outputs":[{"name":"created","type":"bool"},{"name":"conditionId","type":"bytes32"},{"name":"fpmmAddress","type":"address"}]},
	{"type":"event","name":"MarketCreated","anonymous":false,
	 "inputs":[
		{"indexed":true,"name":"seasonId","type":"uint256"},
		{"indexed":true,"name":"player","type":"address"},
		{"indexed":false,"name":"marketType","type":"bytes32"},
		{"indexed":false,"name":"conditionId","type":"bytes32"},
		{"indexed":false,"name":"fpmmAddress","type":"address"}]}
]`

const oracleABI = `[
	{"type":"function","name":"updateRaffleProbability","stateMutability":"nonpayable",
	 "inputs":[{"name":"marketId","type":"uint256"},{"name":"probabilityBps","type":"uint256"}],
	 "outputs":[]},
	{"type":"event","name":"PriceUpdated","anonymous":false,
	 "inputs":[
		{"indexed":true,"name":"marketId","type":"uint256"},
		{"indexed":false,"name":"raffleBps","type":"uint256"},
		{"indexed":false,"name":"marketBps","type":"uint256"},
		{"indexed":false,"name":"hybridBps","type":"uint256"}]}
]`

const fpmmABI = `[
	{"type":"function","name":"getPrices","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"yesBps","type":"uint256"},{"name":"noBps","type":"uint256"}]},
	{"type":"function","name":"yesReserve","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"noReserve","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"Trade","anonymous":false,
	 "inputs":[
		{"indexed":true,"name":"trader","type":"address"},
		{"indexed":false,"name":"buyYes","type":"bool"},
		{"indexed":false,"name":"amountIn","type":"uint256"},
		{"indexed":false,"name":"amountOut","type":"uint256"}]}
]`

var (
	RaffleABI  = mustParseABI("raffle", raffleABI)
	CurveABI   = mustParseABI("curve", curveABI)
	FactoryABI = mustParseABI("factory", factoryABI)
	OracleABI  = mustParseABI("oracle", oracleABI)
	FPMMABI    = mustParseABI("fpmm", fpmmABI)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: parse %s abi: %v", name, err))
	}
	return parsed
}

package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol tags the swap-call encoding a venue's router expects.
type Protocol string

const (
	// ProtocolUniswapV3 routers take a single struct parameter
	// (exactInputSingle with packed tuple).
	ProtocolUniswapV3 Protocol = "uniswap-v3"

	// ProtocolPancakeV3 routers take flat parameters with an explicit
	// trailing deadline.
	ProtocolPancakeV3 Protocol = "pancake-v3"
)

// Token describes an ERC-20 asset. Identity is the on-chain address;
// instances are loaded once at startup and never mutated.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Name     string
}

// Venue describes one tradeable exchange deployment.
type Venue struct {
	Name     string
	Router   common.Address
	Factory  common.Address
	Quoter   common.Address
	Protocol Protocol
}

// Pair is an ordered trading pair, referenced by token symbol.
type Pair struct {
	TokenA string
	TokenB string
}

// PriceQuote is the result of quoting one trade on one venue.
type PriceQuote struct {
	Venue       string
	AmountIn    *big.Int
	AmountOut   *big.Int
	Price       float64 // tokenOut per tokenIn, decimal adjusted
	PriceImpact float64 // estimated, as a fraction of input vs pool depth
	Route       []string
	GasEstimate uint64
}

// ArbitrageOpportunity is a two-leg round trip: buy TokenB with TokenA
// on BuyVenue, sell it back on SellVenue. NetProfit is denominated in
// the base asset and already has estimated execution cost subtracted.
type ArbitrageOpportunity struct {
	TokenA        *Token
	TokenB        *Token
	BuyVenue      string
	SellVenue     string
	BuyPrice      float64
	SellPrice     float64
	ProfitPercent float64
	BuyQuote      *PriceQuote
	SellQuote     *PriceQuote
	GasCost       *big.Int
	NetProfit     *big.Int
	Flagged       bool // implausibly high profit, kept but marked
}

// TradeResult is the terminal outcome of one full two-leg execution.
type TradeResult struct {
	Success bool
	TxHash  common.Hash // final leg
	Profit  *big.Int
	GasUsed uint64
	Err     string
}

package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeTier is a pool fee bucket in parts per million (3000 = 0.30%).
type FeeTier uint32

// FeeTiers is the fixed probe order for pool resolution. The winner is
// the tier with the strictly largest output, so earlier tiers take
// ties.
var FeeTiers = []FeeTier{100, 500, 2500, 3000, 10000}

// PoolState is a snapshot of a pool's price and depth.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
}

// SwapParams are the inputs to a single-hop exact-input swap.
type SwapParams struct {
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          FeeTier
	Recipient    common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Deadline     *big.Int
}

// Venue represents one exchange deployment: pool discovery, pool state
// reads, and the venue-specific swap-call encoding.
type Venue interface {
	// Name returns the venue's configured name.
	Name() string

	// Router returns the router contract address.
	Router() common.Address

	// PoolFor resolves the pool for a token pair and fee tier. A zero
	// address means no pool exists for that tier.
	PoolFor(ctx context.Context, tokenA, tokenB common.Address, fee FeeTier) (common.Address, error)

	// PoolState reads the pool's current sqrt price and liquidity.
	PoolState(ctx context.Context, pool common.Address) (*PoolState, error)

	// BuildSwapCall encodes the router calldata for a swap.
	BuildSwapCall(p SwapParams) ([]byte, error)

	// DefaultFeeTier is the fallback when no tier resolves a pool.
	DefaultFeeTier() FeeTier

	// SwapGasLimit is the gas limit used for swap submissions.
	SwapGasLimit() uint64
}

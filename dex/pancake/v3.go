package pancake

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dkatz-labs/arbot/chain"
	"github.com/dkatz-labs/arbot/dex"
)

const (
	factoryABIJson = `[
		{"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"internalType":"address","name":"pool","type":"address"}],"stateMutability":"view","type":"function"}
	]`

	poolABIJson = `[
		{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint32","name":"feeProtocol","type":"uint32"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
	]`

	routerABIJson = `[
		{"inputs":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}
	]`
)

// Venue implements dex.Venue for Pancake V3 style deployments, whose
// routers take flat parameters with an explicit deadline.
type Venue struct {
	name       string
	client     chain.Client
	router     common.Address
	factory    common.Address
	factoryABI abi.ABI
	poolABI    abi.ABI
	routerABI  abi.ABI
}

// New creates a Pancake V3 style venue.
func New(name string, client chain.Client, router, factory common.Address) (*Venue, error) {
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(poolABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(routerABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &Venue{
		name:       name,
		client:     client,
		router:     router,
		factory:    factory,
		factoryABI: factoryABI,
		poolABI:    poolABI,
		routerABI:  routerABI,
	}, nil
}

// Name returns the venue name.
func (v *Venue) Name() string {
	return v.name
}

// Router returns the router contract address.
func (v *Venue) Router() common.Address {
	return v.router
}

// PoolFor resolves the pool for (tokenA, tokenB, fee) via the factory.
func (v *Venue) PoolFor(ctx context.Context, tokenA, tokenB common.Address, fee dex.FeeTier) (common.Address, error) {
	data, err := v.factoryABI.Pack("getPool", tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getPool: %w", err)
	}

	out, err := v.client.CallContract(ctx, v.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool call failed: %w", err)
	}

	vals, err := v.factoryABI.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack getPool: %w", err)
	}
	return vals[0].(common.Address), nil
}

// PoolState reads slot0 and liquidity from the pool.
func (v *Venue) PoolState(ctx context.Context, pool common.Address) (*dex.PoolState, error) {
	slotData, err := v.poolABI.Pack("slot0")
	if err != nil {
		return nil, fmt.Errorf("failed to pack slot0: %w", err)
	}
	out, err := v.client.CallContract(ctx, pool, slotData)
	if err != nil {
		return nil, fmt.Errorf("slot0 call failed: %w", err)
	}
	slot, err := v.poolABI.Unpack("slot0", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack slot0: %w", err)
	}

	liqData, err := v.poolABI.Pack("liquidity")
	if err != nil {
		return nil, fmt.Errorf("failed to pack liquidity: %w", err)
	}
	out, err = v.client.CallContract(ctx, pool, liqData)
	if err != nil {
		return nil, fmt.Errorf("liquidity call failed: %w", err)
	}
	liq, err := v.poolABI.Unpack("liquidity", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack liquidity: %w", err)
	}

	return &dex.PoolState{
		SqrtPriceX96: slot[0].(*big.Int),
		Liquidity:    liq[0].(*big.Int),
	}, nil
}

// BuildSwapCall encodes the flat-parameter swap with a deadline. A
// missing deadline is a caller bug for this router family.
func (v *Venue) BuildSwapCall(p dex.SwapParams) ([]byte, error) {
	if p.Deadline == nil {
		return nil, fmt.Errorf("deadline required for %s swap call", v.name)
	}

	data, err := v.routerABI.Pack("swapExactInputSingle",
		p.TokenIn,
		p.TokenOut,
		big.NewInt(int64(p.Fee)),
		p.Recipient,
		p.AmountIn,
		p.AmountOutMin,
		p.Deadline,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapExactInputSingle: %w", err)
	}
	return data, nil
}

// DefaultFeeTier returns the fallback tier when no pool resolves.
func (v *Venue) DefaultFeeTier() dex.FeeTier {
	return 2500
}

// SwapGasLimit returns the gas limit for swap submissions.
func (v *Venue) SwapGasLimit() uint64 {
	return 300000
}

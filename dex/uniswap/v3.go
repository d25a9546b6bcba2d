package uniswap

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
		{"inputs":[],"name":"slot0","outputs":[{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},{"internalType":"int24","name":"tick","type":"int24"},{"internalType":"uint16","name":"observationIndex","type":"uint16"},{"internalType":"uint16","name":"observationCardinality","type":"uint16"},{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},{"internalType":"uint8","name":"feeProtocol","type":"uint8"},{"internalType":"bool","name":"unlocked","type":"bool"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"liquidity","outputs":[{"internalType":"uint128","name":"","type":"uint128"}],"stateMutability":"view","type":"function"}
	]`

	routerABIJson = `[
		{"inputs":[{"components":[{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint24","name":"fee","type":"uint24"},{"internalType":"address","name":"recipient","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMinimum","type":"uint256"},{"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],"internalType":"struct IV3SwapRouter.ExactInputSingleParams","name":"params","type":"tuple"}],"name":"exactInputSingle","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"payable","type":"function"}
	]`
)

// exactInputSingleParams mirrors the router's struct parameter layout.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Venue implements dex.Venue for Uniswap V3 style deployments, whose
// routers take a single structured parameter.
type Venue struct {
	name       string
	client     chain.Client
	router     common.Address
	factory    common.Address
	factoryABI abi.ABI
	poolABI    abi.ABI
	routerABI  abi.ABI
}

// New creates a Uniswap V3 style venue.
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

// BuildSwapCall encodes exactInputSingle with the structured parameter.
// The deadline is ignored; this router family has no deadline argument.
func (v *Venue) BuildSwapCall(p dex.SwapParams) ([]byte, error) {
	data, err := v.routerABI.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               big.NewInt(int64(p.Fee)),
		Recipient:         p.Recipient,
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  p.AmountOutMin,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack exactInputSingle: %w", err)
	}
	return data, nil
}

// DefaultFeeTier returns the fallback tier when no pool resolves.
func (v *Venue) DefaultFeeTier() dex.FeeTier {
	return 3000
}

// SwapGasLimit returns the gas limit for swap submissions.
func (v *Venue) SwapGasLimit() uint64 {
	return 250000
}

package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dkatz-labs/arbot/chain"
)

const erc20ABIJson = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20ABI is the parsed minimal token interface used by the executor.
var ERC20ABI = mustABI(erc20ABIJson)

// MaxUint256 is the effectively-unlimited approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// BalanceOf reads the token balance of owner.
func BalanceOf(ctx context.Context, client chain.Client, token, owner common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	out, err := client.CallContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed: %w", err)
	}

	vals, err := ERC20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Allowance reads the standing allowance for (owner, spender).
func Allowance(ctx context.Context, client chain.Client, token, owner, spender common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance: %w", err)
	}

	out, err := client.CallContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("allowance call failed: %w", err)
	}

	vals, err := ERC20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack allowance: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// ApproveCalldata encodes an approve(spender, amount) call.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return data, nil
}

package pancake

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkatz-labs/arbot/dex"
)

func newTestVenue(t *testing.T) *Venue {
	t.Helper()
	v, err := New("beta", nil,
		common.HexToAddress("0x0000000000000000000000000000000000000100"),
		common.HexToAddress("0x0000000000000000000000000000000000000200"))
	require.NoError(t, err)
	return v
}

func TestBuildSwapCallRequiresDeadline(t *testing.T) {
	v := newTestVenue(t)

	_, err := v.BuildSwapCall(dex.SwapParams{
		TokenIn:      common.HexToAddress("0xaa"),
		TokenOut:     common.HexToAddress("0xbb"),
		Fee:          2500,
		AmountIn:     big.NewInt(1000),
		AmountOutMin: big.NewInt(990),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline required")
}

func TestBuildSwapCallEncodesFlatParams(t *testing.T) {
	v := newTestVenue(t)

	data, err := v.BuildSwapCall(dex.SwapParams{
		TokenIn:      common.HexToAddress("0xaa"),
		TokenOut:     common.HexToAddress("0xbb"),
		Fee:          2500,
		Recipient:    common.HexToAddress("0x1"),
		AmountIn:     big.NewInt(1000),
		AmountOutMin: big.NewInt(990),
		Deadline:     big.NewInt(1_900_000_000),
	})
	require.NoError(t, err)

	assert.Equal(t, v.routerABI.Methods["swapExactInputSingle"].ID, data[:4])
	assert.Len(t, data, 4+7*32)
}

func TestVenueIdentity(t *testing.T) {
	v := newTestVenue(t)
	assert.Equal(t, "beta", v.Name())
	assert.Equal(t, dex.FeeTier(2500), v.DefaultFeeTier())
	assert.Equal(t, uint64(300000), v.SwapGasLimit())
}

package uniswap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkatz-labs/arbot/chain"
	"github.com/dkatz-labs/arbot/dex"
)

var (
	routerAddr  = common.HexToAddress("0x0000000000000000000000000000000000000100")
	factoryAddr = common.HexToAddress("0x0000000000000000000000000000000000000200")
	poolAddr    = common.HexToAddress("0x0000000000000000000000000000000000000300")
	tokenA      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB      = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// fakeClient routes contract calls back through the venue's own ABIs.
type fakeClient struct {
	venue *Venue
}

func (f *fakeClient) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	switch to {
	case factoryAddr:
		return f.venue.factoryABI.Methods["getPool"].Outputs.Pack(poolAddr)
	case poolAddr:
		if bytes.Equal(data[:4], f.venue.poolABI.Methods["slot0"].ID) {
			sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
			return f.venue.poolABI.Methods["slot0"].Outputs.Pack(
				sqrtPrice, big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
		}
		return f.venue.poolABI.Methods["liquidity"].Outputs.Pack(big.NewInt(1_000_000))
	}
	return nil, errors.New("unexpected call")
}

func (f *fakeClient) SendTransaction(context.Context, common.Address, []byte, uint64) (common.Hash, error) {
	return common.Hash{}, errors.New("not used")
}

func (f *fakeClient) WaitMined(context.Context, common.Hash) (*chain.Receipt, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func newTestVenue(t *testing.T) *Venue {
	t.Helper()
	client := &fakeClient{}
	v, err := New("alpha", client, routerAddr, factoryAddr)
	require.NoError(t, err)
	client.venue = v
	return v
}

func TestPoolFor(t *testing.T) {
	v := newTestVenue(t)

	pool, err := v.PoolFor(context.Background(), tokenA, tokenB, 3000)
	require.NoError(t, err)
	assert.Equal(t, poolAddr, pool)
}

func TestPoolState(t *testing.T) {
	v := newTestVenue(t)

	state, err := v.PoolState(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Lsh(big.NewInt(1), 96).String(), state.SqrtPriceX96.String())
	assert.Equal(t, "1000000", state.Liquidity.String())
}

func TestBuildSwapCall(t *testing.T) {
	v := newTestVenue(t)

	data, err := v.BuildSwapCall(dex.SwapParams{
		TokenIn:      tokenA,
		TokenOut:     tokenB,
		Fee:          3000,
		Recipient:    common.HexToAddress("0x1"),
		AmountIn:     big.NewInt(1000),
		AmountOutMin: big.NewInt(990),
	})
	require.NoError(t, err)

	// exactInputSingle(address,address,uint24,address,uint256,uint256,uint160)
	assert.Equal(t, "04e45aaf", common.Bytes2Hex(data[:4]))
	assert.Len(t, data, 4+7*32)
}

func TestVenueIdentity(t *testing.T) {
	v := newTestVenue(t)
	assert.Equal(t, "alpha", v.Name())
	assert.Equal(t, routerAddr, v.Router())
	assert.Equal(t, dex.FeeTier(3000), v.DefaultFeeTier())
	assert.Equal(t, uint64(250000), v.SwapGasLimit())
}

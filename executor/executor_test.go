package executor

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/chain"
	"github.com/dkatz-labs/arbot/dex"
	"github.com/dkatz-labs/arbot/types"
)

var (
	wallet     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenAAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenBAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	buyRouter  = common.HexToAddress("0x0000000000000000000000000000000000000100")
	sellRouter = common.HexToAddress("0x0000000000000000000000000000000000000200")
	poolAddr   = common.HexToAddress("0x0000000000000000000000000000000000000300")

	tokA = &types.Token{Address: tokenAAddr, Symbol: "AAA", Decimals: 18}
	tokB = &types.Token{Address: tokenBAddr, Symbol: "BBB", Decimals: 6}
)

type sentTx struct {
	to   common.Address
	data []byte
}

// fakeClient answers ERC-20 reads from canned tables and records every
// submitted transaction. Receipt confirmation can be failed per
// destination address.
type fakeClient struct {
	mu sync.Mutex

	// balanceOf answers per token, consumed front to back; the last
	// entry repeats.
	balances   map[common.Address][]*big.Int
	allowances map[common.Address]*big.Int

	sends    []sentTx
	hashTo   map[common.Hash]common.Address
	failWait map[common.Address]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		balances:   make(map[common.Address][]*big.Int),
		allowances: make(map[common.Address]*big.Int),
		hashTo:     make(map[common.Hash]common.Address),
		failWait:   make(map[common.Address]error),
	}
}

func (f *fakeClient) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case bytes.Equal(data[:4], dex.ERC20ABI.Methods["balanceOf"].ID):
		queue := f.balances[to]
		if len(queue) == 0 {
			return dex.ERC20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(0))
		}
		head := queue[0]
		if len(queue) > 1 {
			f.balances[to] = queue[1:]
		}
		return dex.ERC20ABI.Methods["balanceOf"].Outputs.Pack(head)

	case bytes.Equal(data[:4], dex.ERC20ABI.Methods["allowance"].ID):
		allowance := f.allowances[to]
		if allowance == nil {
			allowance = big.NewInt(0)
		}
		return dex.ERC20ABI.Methods["allowance"].Outputs.Pack(allowance)
	}
	return nil, fmt.Errorf("unexpected call to %s", to.Hex())
}

func (f *fakeClient) SendTransaction(_ context.Context, to common.Address, data []byte, _ uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sends = append(f.sends, sentTx{to: to, data: append([]byte(nil), data...)})
	h := common.BigToHash(big.NewInt(int64(len(f.sends))))
	f.hashTo[h] = to
	return h, nil
}

func (f *fakeClient) WaitMined(_ context.Context, txHash common.Hash) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failWait[f.hashTo[txHash]]; ok {
		return nil, err
	}
	return &chain.Receipt{
		TxHash:            txHash,
		Status:            1,
		GasUsed:           100000,
		EffectiveGasPrice: big.NewInt(10),
	}, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(10), nil
}

func (f *fakeClient) sendsTo(addr common.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sends {
		if s.to == addr {
			n++
		}
	}
	return n
}

// fakeVenue resolves one pool at tier 500 and records swap params.
type fakeVenue struct {
	name   string
	router common.Address

	mu    sync.Mutex
	swaps []dex.SwapParams
}

func (f *fakeVenue) Name() string                { return f.name }
func (f *fakeVenue) Router() common.Address      { return f.router }
func (f *fakeVenue) DefaultFeeTier() dex.FeeTier { return 3000 }
func (f *fakeVenue) SwapGasLimit() uint64        { return 200000 }

func (f *fakeVenue) PoolFor(_ context.Context, _, _ common.Address, fee dex.FeeTier) (common.Address, error) {
	if fee == 500 {
		return poolAddr, nil
	}
	return common.Address{}, nil
}

func (f *fakeVenue) PoolState(context.Context, common.Address) (*dex.PoolState, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeVenue) BuildSwapCall(p dex.SwapParams) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, p)
	return []byte("swap"), nil
}

func (f *fakeVenue) swapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.swaps)
}

func testOpp() *types.ArbitrageOpportunity {
	amountIn := big.NewInt(1e18)
	buyOut := big.NewInt(2_000_000000)
	return &types.ArbitrageOpportunity{
		TokenA:    tokA,
		TokenB:    tokB,
		BuyVenue:  "alpha",
		SellVenue: "beta",
		BuyQuote: &types.PriceQuote{
			Venue: "alpha", AmountIn: amountIn, AmountOut: buyOut, GasEstimate: 200000,
		},
		SellQuote: &types.PriceQuote{
			Venue: "beta", AmountIn: buyOut, AmountOut: big.NewInt(1_030_000_000_000_000_000), GasEstimate: 200000,
		},
		NetProfit: big.NewInt(30_000_000_000_000_000),
	}
}

func newTestExecutor(client *fakeClient) (*Executor, *fakeVenue, *fakeVenue) {
	buy := &fakeVenue{name: "alpha", router: buyRouter}
	sell := &fakeVenue{name: "beta", router: sellRouter}
	venues := map[string]dex.Venue{"alpha": buy, "beta": sell}
	e := New(client, venues, Config{Wallet: wallet}, zap.NewNop())
	return e, buy, sell
}

func TestExecuteSuccess(t *testing.T) {
	client := newFakeClient()
	client.balances[tokenAAddr] = []*big.Int{big.NewInt(1e18)}
	client.balances[tokenBAddr] = []*big.Int{big.NewInt(0), big.NewInt(2_000_000000)}
	client.allowances[tokenAAddr] = dex.MaxUint256
	client.allowances[tokenBAddr] = dex.MaxUint256

	e, buy, sell := newTestExecutor(client)
	res := e.Execute(context.Background(), testOpp())

	require.True(t, res.Success, res.Err)
	assert.Equal(t, StateComplete, e.State())
	assert.Equal(t, uint64(200000), res.GasUsed)

	// Estimated net profit minus actual gas for both legs.
	gasSpent := big.NewInt(2 * 100000 * 10)
	wantProfit := new(big.Int).Sub(big.NewInt(30_000_000_000_000_000), gasSpent)
	assert.Equal(t, wantProfit.String(), res.Profit.String())

	trades, cum := e.Stats()
	assert.Equal(t, 1, trades)
	assert.Equal(t, wantProfit.String(), cum.String())

	// One swap per leg, sized and bounded as quoted.
	require.Equal(t, 1, buy.swapCount())
	require.Equal(t, 1, sell.swapCount())

	buyParams := buy.swaps[0]
	assert.Equal(t, "1000000000000000000", buyParams.AmountIn.String())
	assert.Equal(t, "1960000000", buyParams.AmountOutMin.String()) // 2% slippage
	assert.Equal(t, dex.FeeTier(500), buyParams.Fee)

	// Sell input is the settled delta less the 1% margin.
	sellParams := sell.swaps[0]
	assert.Equal(t, "1980000000", sellParams.AmountIn.String())
}

func TestExecuteNothingReceived(t *testing.T) {
	client := newFakeClient()
	client.balances[tokenAAddr] = []*big.Int{big.NewInt(1e18)}
	// Balance unchanged across the buy leg.
	client.balances[tokenBAddr] = []*big.Int{big.NewInt(500), big.NewInt(500)}
	client.allowances[tokenAAddr] = dex.MaxUint256
	client.allowances[tokenBAddr] = dex.MaxUint256

	e, buy, sell := newTestExecutor(client)
	res := e.Execute(context.Background(), testOpp())

	require.False(t, res.Success)
	assert.Equal(t, "no tokens received", res.Err)
	assert.Equal(t, StateFailed, e.State())

	// The sell leg must never be attempted.
	assert.Equal(t, 1, buy.swapCount())
	assert.Equal(t, 0, sell.swapCount())

	trades, cum := e.Stats()
	assert.Equal(t, 0, trades)
	assert.Equal(t, "0", cum.String())
}

func TestExecuteSellLegReverts(t *testing.T) {
	client := newFakeClient()
	client.balances[tokenAAddr] = []*big.Int{big.NewInt(1e18)}
	client.balances[tokenBAddr] = []*big.Int{big.NewInt(0), big.NewInt(2_000_000000)}
	client.allowances[tokenAAddr] = dex.MaxUint256
	client.allowances[tokenBAddr] = dex.MaxUint256
	client.failWait[sellRouter] = chain.ErrTxReverted

	e, _, _ := newTestExecutor(client)
	res := e.Execute(context.Background(), testOpp())

	require.False(t, res.Success)
	assert.Contains(t, res.Err, "sell leg failed")
	assert.Equal(t, StateFailed, e.State())

	// No compensating trade: the bought asset stays held and the
	// counters record nothing.
	assert.Equal(t, 1, client.sendsTo(sellRouter))
	trades, cum := e.Stats()
	assert.Equal(t, 0, trades)
	assert.Equal(t, "0", cum.String())
}

func TestExecuteInsufficientBalance(t *testing.T) {
	client := newFakeClient()
	client.balances[tokenAAddr] = []*big.Int{big.NewInt(100)}

	e, buy, sell := newTestExecutor(client)
	res := e.Execute(context.Background(), testOpp())

	require.False(t, res.Success)
	assert.Contains(t, res.Err, "insufficient AAA balance")
	assert.Equal(t, 0, buy.swapCount())
	assert.Equal(t, 0, sell.swapCount())
	assert.Empty(t, client.sends)
}

func TestExecuteUnknownVenue(t *testing.T) {
	client := newFakeClient()
	e, _, _ := newTestExecutor(client)

	opp := testOpp()
	opp.BuyVenue = "nosuch"
	res := e.Execute(context.Background(), opp)

	require.False(t, res.Success)
	assert.Contains(t, res.Err, "unknown buy venue")
	assert.Empty(t, client.sends)
}

func TestEnsureApprovalGrantsOnce(t *testing.T) {
	client := newFakeClient()
	e, _, _ := newTestExecutor(client)

	err := e.ensureApproval(context.Background(), tokenAAddr, buyRouter, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, 1, client.sendsTo(tokenAAddr))

	// Unlimited grant is memoized; no further transactions or even
	// allowance reads for the pair.
	err = e.ensureApproval(context.Background(), tokenAAddr, buyRouter, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, 1, client.sendsTo(tokenAAddr))

	// A different spender is a separate grant.
	err = e.ensureApproval(context.Background(), tokenAAddr, sellRouter, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Equal(t, 2, client.sendsTo(tokenAAddr))
}

func TestEnsureApprovalSkipsWhenAllowanceCovers(t *testing.T) {
	client := newFakeClient()
	client.allowances[tokenAAddr] = big.NewInt(5e18)

	e, _, _ := newTestExecutor(client)
	err := e.ensureApproval(context.Background(), tokenAAddr, buyRouter, big.NewInt(1e18))
	require.NoError(t, err)
	assert.Empty(t, client.sends)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_settlement", StateAwaitingSettlement.String())
	assert.Equal(t, "failed", StateFailed.String())
}

package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/chain"
	"github.com/dkatz-labs/arbot/dex"
	"github.com/dkatz-labs/arbot/types"
)

// State is the executor's position in the two-leg trade lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateBuyPending
	StateAwaitingSettlement
	StateSellPending
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateBuyPending:
		return "buy_pending"
	case StateAwaitingSettlement:
		return "awaiting_settlement"
	case StateSellPending:
		return "sell_pending"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const (
	buySlippageBps    = 200 // 2%
	sellSlippageBps   = 500 // wider, the sell quote is stale by one leg
	settleMarginBps   = 100 // 1% haircut on the settled balance delta
	deadlineWindowSec = 300
)

// Config holds the executor's runtime parameters.
type Config struct {
	Wallet      common.Address
	SettleDelay time.Duration
	FlagPercent float64
}

// Executor runs one opportunity at a time through validate, approve,
// buy, settle, and sell. A failed sell leg after a confirmed buy leg
// leaves the bought asset held; no compensating trade is attempted.
// Reported profit is the opportunity's estimate minus actual gas, not
// recomputed from sale proceeds, so it can diverge from realized profit
// when quotes were stale.
type Executor struct {
	client chain.Client
	venues map[string]dex.Venue
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	approvals  map[string]struct{}
	tradeCount int
	cumProfit  *big.Int
}

// New creates an executor over the given venues.
func New(client chain.Client, venues map[string]dex.Venue, cfg Config, logger *zap.Logger) *Executor {
	return &Executor{
		client:    client,
		venues:    venues,
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
		approvals: make(map[string]struct{}),
		cumProfit: big.NewInt(0),
	}
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns the running trade count and cumulative profit.
func (e *Executor) Stats() (int, *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tradeCount, new(big.Int).Set(e.cumProfit)
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Execute runs one full two-leg trade and always returns a terminal
// TradeResult. Counters are updated only on success.
func (e *Executor) Execute(ctx context.Context, opp *types.ArbitrageOpportunity) *types.TradeResult {
	e.setState(StateValidating)

	buyVenue, ok := e.venues[opp.BuyVenue]
	if !ok {
		return e.fail("unknown buy venue %q", opp.BuyVenue)
	}
	sellVenue, ok := e.venues[opp.SellVenue]
	if !ok {
		return e.fail("unknown sell venue %q", opp.SellVenue)
	}

	required := opp.BuyQuote.AmountIn
	balance, err := dex.BalanceOf(ctx, e.client, opp.TokenA.Address, e.cfg.Wallet)
	if err != nil {
		return e.fail("balance check failed: %v", err)
	}
	if balance.Cmp(required) < 0 {
		return e.fail("insufficient %s balance: have %s, need %s",
			opp.TokenA.Symbol, balance.String(), required.String())
	}

	if e.cfg.FlagPercent > 0 && opp.ProfitPercent > e.cfg.FlagPercent {
		e.logger.Warn("Opportunity profit exceeds sanity bound, proceeding",
			zap.Float64("profit_percent", opp.ProfitPercent),
			zap.Float64("bound", e.cfg.FlagPercent))
	}

	// Buy leg.
	if err := e.ensureApproval(ctx, opp.TokenA.Address, buyVenue.Router(), required); err != nil {
		return e.fail("buy approval failed: %v", err)
	}

	buyFee := e.bestFeeTier(ctx, buyVenue, opp.TokenA.Address, opp.TokenB.Address)
	buyMinOut := applyBps(opp.BuyQuote.AmountOut, 10000-buySlippageBps)

	balanceBefore, err := dex.BalanceOf(ctx, e.client, opp.TokenB.Address, e.cfg.Wallet)
	if err != nil {
		return e.fail("pre-trade balance read failed: %v", err)
	}

	e.setState(StateBuyPending)
	buyReceipt, err := e.submitSwap(ctx, buyVenue, dex.SwapParams{
		TokenIn:      opp.TokenA.Address,
		TokenOut:     opp.TokenB.Address,
		Fee:          buyFee,
		Recipient:    e.cfg.Wallet,
		AmountIn:     required,
		AmountOutMin: buyMinOut,
		Deadline:     e.deadline(),
	})
	if err != nil {
		return e.fail("buy leg failed: %v", err)
	}

	// Settlement read: measure what actually arrived.
	e.setState(StateAwaitingSettlement)
	select {
	case <-ctx.Done():
		return e.fail("cancelled awaiting settlement: %v", ctx.Err())
	case <-time.After(e.cfg.SettleDelay):
	}

	balanceAfter, err := dex.BalanceOf(ctx, e.client, opp.TokenB.Address, e.cfg.Wallet)
	if err != nil {
		return e.fail("settlement balance read failed: %v", err)
	}
	received := new(big.Int).Sub(balanceAfter, balanceBefore)
	if received.Sign() <= 0 {
		return e.fail("no tokens received")
	}

	// Haircut absorbs rounding and residual balance discrepancies.
	sellInput := applyBps(received, 10000-settleMarginBps)

	e.logger.Info("Buy leg settled",
		zap.String("tx_hash", buyReceipt.TxHash.Hex()),
		zap.String("received", received.String()),
		zap.String("sell_input", sellInput.String()))

	// Sell leg: same flow, actually-received input, wider slippage.
	if err := e.ensureApproval(ctx, opp.TokenB.Address, sellVenue.Router(), sellInput); err != nil {
		return e.fail("sell approval failed: %v", err)
	}

	sellFee := e.bestFeeTier(ctx, sellVenue, opp.TokenB.Address, opp.TokenA.Address)

	// Expected output pro-rated from the (stale) reverse quote.
	expectedOut := new(big.Int).Mul(sellInput, opp.SellQuote.AmountOut)
	expectedOut.Div(expectedOut, opp.SellQuote.AmountIn)
	sellMinOut := applyBps(expectedOut, 10000-sellSlippageBps)

	e.setState(StateSellPending)
	sellReceipt, err := e.submitSwap(ctx, sellVenue, dex.SwapParams{
		TokenIn:      opp.TokenB.Address,
		TokenOut:     opp.TokenA.Address,
		Fee:          sellFee,
		Recipient:    e.cfg.Wallet,
		AmountIn:     sellInput,
		AmountOutMin: sellMinOut,
		Deadline:     e.deadline(),
	})
	if err != nil {
		return e.fail("sell leg failed, bought asset held: %v", err)
	}

	// Profit is the original estimate minus actual gas for both legs.
	gasSpent := new(big.Int).Add(receiptCost(buyReceipt), receiptCost(sellReceipt))
	profit := new(big.Int).Sub(opp.NetProfit, gasSpent)

	e.mu.Lock()
	e.state = StateComplete
	e.tradeCount++
	e.cumProfit.Add(e.cumProfit, profit)
	trades := e.tradeCount
	e.mu.Unlock()

	e.logger.Info("Trade complete",
		zap.String("tx_hash", sellReceipt.TxHash.Hex()),
		zap.String("profit", profit.String()),
		zap.Int("trades", trades))

	return &types.TradeResult{
		Success: true,
		TxHash:  sellReceipt.TxHash,
		Profit:  profit,
		GasUsed: buyReceipt.GasUsed + sellReceipt.GasUsed,
	}
}

// ensureApproval grants an unlimited allowance for (token, spender)
// once per process lifetime. Confirmed grants are remembered so later
// trades skip the transaction entirely.
func (e *Executor) ensureApproval(ctx context.Context, token, spender common.Address, required *big.Int) error {
	key := token.Hex() + "|" + spender.Hex()

	e.mu.Lock()
	_, done := e.approvals[key]
	e.mu.Unlock()
	if done {
		return nil
	}

	allowance, err := dex.Allowance(ctx, e.client, token, e.cfg.Wallet, spender)
	if err != nil {
		return fmt.Errorf("allowance read failed: %w", err)
	}
	if allowance.Cmp(required) >= 0 {
		e.record(key)
		return nil
	}

	data, err := dex.ApproveCalldata(spender, dex.MaxUint256)
	if err != nil {
		return err
	}

	txHash, err := e.client.SendTransaction(ctx, token, data, 60000)
	if err != nil {
		return fmt.Errorf("approval submission failed: %w", err)
	}
	if _, err := e.client.WaitMined(ctx, txHash); err != nil {
		return fmt.Errorf("approval confirmation failed: %w", err)
	}

	e.logger.Info("Approval granted",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("tx_hash", txHash.Hex()))

	e.record(key)
	return nil
}

func (e *Executor) record(key string) {
	e.mu.Lock()
	e.approvals[key] = struct{}{}
	e.mu.Unlock()
}

// bestFeeTier probes the ordered tier list and falls back to the
// venue's default when nothing resolves.
func (e *Executor) bestFeeTier(ctx context.Context, venue dex.Venue, tokenIn, tokenOut common.Address) dex.FeeTier {
	for _, fee := range dex.FeeTiers {
		pool, err := venue.PoolFor(ctx, tokenIn, tokenOut, fee)
		if err != nil {
			continue
		}
		if pool != (common.Address{}) {
			return fee
		}
	}
	return venue.DefaultFeeTier()
}

func (e *Executor) submitSwap(ctx context.Context, venue dex.Venue, p dex.SwapParams) (*chain.Receipt, error) {
	data, err := venue.BuildSwapCall(p)
	if err != nil {
		return nil, fmt.Errorf("swap encoding failed: %w", err)
	}

	txHash, err := e.client.SendTransaction(ctx, venue.Router(), data, venue.SwapGasLimit())
	if err != nil {
		return nil, fmt.Errorf("swap submission failed: %w", err)
	}

	receipt, err := e.client.WaitMined(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("swap confirmation failed: %w", err)
	}
	return receipt, nil
}

func (e *Executor) deadline() *big.Int {
	return big.NewInt(time.Now().Unix() + deadlineWindowSec)
}

func (e *Executor) fail(format string, args ...interface{}) *types.TradeResult {
	e.setState(StateFailed)
	reason := fmt.Sprintf(format, args...)
	e.logger.Warn("Execution failed", zap.String("reason", reason))
	return &types.TradeResult{Success: false, Err: reason}
}

func applyBps(amount *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Div(out, big.NewInt(10000))
}

func receiptCost(r *chain.Receipt) *big.Int {
	if r == nil || r.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}

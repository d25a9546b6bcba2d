package scanner

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/types"
)

// QuoteSource provides per-venue executable quotes.
type QuoteSource interface {
	Quote(ctx context.Context, venue string, tokenIn, tokenOut *types.Token, amountIn *big.Int) (*types.PriceQuote, bool)
}

// GasOracle estimates execution cost for a gas amount.
type GasOracle interface {
	EstimateCost(ctx context.Context, gasLimit uint64) *big.Int
}

// Sink receives emitted opportunities. Dispatch must never block; it
// returns false when the opportunity was dropped.
type Sink interface {
	Dispatch(opp *types.ArbitrageOpportunity) bool
}

// Config holds the scanner's runtime parameters.
type Config struct {
	Venues               []string
	Pairs                []types.Pair
	BaseToken            string
	TradeAmount          *big.Int
	MinProfitPercent     float64
	SanityCeilingPercent float64
	FlagPercent          float64
	Interval             time.Duration
}

// Scanner polls all venue/pair combinations and emits round-trip
// opportunities whose net profit clears the configured threshold.
type Scanner struct {
	cfg    Config
	tokens map[string]*types.Token
	quotes QuoteSource
	gas    GasOracle
	sink   Sink
	logger *zap.Logger
}

// New creates a scanner. tokens is the startup token registry keyed by
// symbol.
func New(cfg Config, tokens map[string]*types.Token, quotes QuoteSource, gas GasOracle, sink Sink, logger *zap.Logger) *Scanner {
	return &Scanner{
		cfg:    cfg,
		tokens: tokens,
		quotes: quotes,
		gas:    gas,
		sink:   sink,
		logger: logger,
	}
}

// Run polls until the context is cancelled. A failing pair or venue is
// skipped; nothing short of cancellation stops the loop.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Scanner started",
		zap.Int("pairs", len(s.cfg.Pairs)),
		zap.Int("venues", len(s.cfg.Venues)),
		zap.Duration("interval", s.cfg.Interval))

	for {
		for _, opp := range s.ScanCycle(ctx) {
			if !s.sink.Dispatch(opp) {
				s.logger.Debug("Opportunity dropped, execution in progress",
					zap.String("buy_venue", opp.BuyVenue),
					zap.String("sell_venue", opp.SellVenue))
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Scanner stopped")
			return
		case <-ticker.C:
		}
	}
}

// ScanCycle runs one polling pass over every configured pair.
func (s *Scanner) ScanCycle(ctx context.Context) []*types.ArbitrageOpportunity {
	var opps []*types.ArbitrageOpportunity
	for _, pair := range s.cfg.Pairs {
		opps = append(opps, s.scanPair(ctx, pair)...)
	}
	return opps
}

func (s *Scanner) scanPair(ctx context.Context, pair types.Pair) []*types.ArbitrageOpportunity {
	tokenA, okA := s.tokens[pair.TokenA]
	tokenB, okB := s.tokens[pair.TokenB]
	if !okA || !okB {
		s.logger.Warn("Pair references unknown token",
			zap.String("token_a", pair.TokenA),
			zap.String("token_b", pair.TokenB))
		return nil
	}

	amountIn := s.cfg.TradeAmount

	// Forward quotes are read-only and independent, fetch them
	// concurrently across venues.
	forwards := make([]*types.PriceQuote, len(s.cfg.Venues))
	var wg sync.WaitGroup
	for i, venue := range s.cfg.Venues {
		wg.Add(1)
		go func(i int, venue string) {
			defer wg.Done()
			if q, ok := s.quotes.Quote(ctx, venue, tokenA, tokenB, amountIn); ok {
				forwards[i] = q
			}
		}(i, venue)
	}
	wg.Wait()

	var opps []*types.ArbitrageOpportunity
	for i := range s.cfg.Venues {
		fwd := forwards[i]
		if fwd == nil || fwd.AmountOut.Sign() <= 0 {
			continue
		}

		for j, sellVenue := range s.cfg.Venues {
			if i == j {
				continue
			}

			// The reverse leg is sized by the forward leg's exact
			// output, not by hypothetically available liquidity.
			rev, ok := s.quotes.Quote(ctx, sellVenue, tokenB, tokenA, fwd.AmountOut)
			if !ok || rev.AmountOut.Sign() <= 0 {
				continue
			}

			if opp := s.buildOpportunity(ctx, tokenA, tokenB, fwd, rev, amountIn); opp != nil {
				opps = append(opps, opp)
			}
		}
	}

	return opps
}

func (s *Scanner) buildOpportunity(ctx context.Context, tokenA, tokenB *types.Token, buy, sell *types.PriceQuote, amountIn *big.Int) *types.ArbitrageOpportunity {
	profit := new(big.Int).Sub(sell.AmountOut, amountIn)
	if profit.Sign() <= 0 {
		return nil
	}

	profitBase, inputBase := s.toBase(ctx, tokenA, profit, amountIn)
	if profitBase == nil {
		// Net profit cannot be priced without a conversion.
		s.logger.Debug("Discarding opportunity, base conversion unavailable",
			zap.String("token", tokenA.Symbol))
		return nil
	}

	gasCost := s.gas.EstimateCost(ctx, buy.GasEstimate+sell.GasEstimate)
	netProfit := new(big.Int).Sub(profitBase, gasCost)
	if netProfit.Sign() <= 0 {
		return nil
	}

	pct := percentOf(netProfit, inputBase)
	if pct < s.cfg.MinProfitPercent {
		return nil
	}
	if pct >= s.cfg.SanityCeilingPercent {
		s.logger.Warn("Rejecting implausibly large discrepancy",
			zap.Float64("net_profit_percent", pct),
			zap.String("buy_venue", buy.Venue),
			zap.String("sell_venue", sell.Venue))
		return nil
	}

	return &types.ArbitrageOpportunity{
		TokenA:        tokenA,
		TokenB:        tokenB,
		BuyVenue:      buy.Venue,
		SellVenue:     sell.Venue,
		BuyPrice:      buy.Price,
		SellPrice:     sell.Price,
		ProfitPercent: pct,
		BuyQuote:      buy,
		SellQuote:     sell,
		GasCost:       gasCost,
		NetProfit:     netProfit,
		Flagged:       s.cfg.FlagPercent > 0 && pct >= s.cfg.FlagPercent,
	}
}

// toBase converts a profit amount and the original input into base
// asset units via a best-effort conversion quote. Returns nils when no
// venue can price the conversion.
func (s *Scanner) toBase(ctx context.Context, token *types.Token, profit, input *big.Int) (*big.Int, *big.Int) {
	if token.Symbol == s.cfg.BaseToken {
		return new(big.Int).Set(profit), new(big.Int).Set(input)
	}

	base, ok := s.tokens[s.cfg.BaseToken]
	if !ok {
		return nil, nil
	}

	for _, venue := range s.cfg.Venues {
		q, ok := s.quotes.Quote(ctx, venue, token, base, profit)
		if !ok || q.AmountOut.Sign() <= 0 {
			continue
		}

		// Scale the input by the same implied rate so the percentage
		// stays consistent.
		inputBase := new(big.Int).Mul(input, q.AmountOut)
		inputBase.Div(inputBase, profit)
		return q.AmountOut, inputBase
	}

	return nil, nil
}

func percentOf(part, whole *big.Int) float64 {
	if whole == nil || whole.Sign() == 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(part), new(big.Float).SetInt(whole))
	ratio.Mul(ratio, big.NewFloat(100))
	out, _ := ratio.Float64()
	return out
}

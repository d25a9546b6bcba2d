package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/chain"
	"github.com/dkatz-labs/arbot/config"
	"github.com/dkatz-labs/arbot/dex"
	"github.com/dkatz-labs/arbot/dex/pancake"
	"github.com/dkatz-labs/arbot/dex/uniswap"
	"github.com/dkatz-labs/arbot/executor"
	"github.com/dkatz-labs/arbot/gas"
	"github.com/dkatz-labs/arbot/monitor"
	"github.com/dkatz-labs/arbot/quoter"
	"github.com/dkatz-labs/arbot/scanner"
	"github.com/dkatz-labs/arbot/types"
)

// tradeRunner is what the coordinator needs from an executor.
type tradeRunner interface {
	Execute(ctx context.Context, opp *types.ArbitrageOpportunity) *types.TradeResult
}

// Bot wires the scanner and executor together. It enforces at most one
// concurrent execution: opportunities arriving while a trade is in
// flight are dropped, never queued.
type Bot struct {
	cfg     *config.Config
	logger  *zap.Logger
	scanner *scanner.Scanner
	runner  tradeRunner
	mon     *monitor.Monitor
	store   *monitor.Store

	opps chan *types.ArbitrageOpportunity
	busy atomic.Bool
	wg   sync.WaitGroup
}

// New builds the full pipeline from configuration.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	client, err := chain.Dial(ctx, chain.RPCConfig{
		Endpoint:    cfg.RPCEndpoint,
		PrivateKey:  cfg.PrivateKey,
		ChainID:     cfg.ChainID,
		MaxGasPrice: cfg.MaxGasPrice,
		RateRPS:     cfg.RPCRateLimit.RequestsPerSecond,
		RateBurst:   cfg.RPCRateLimit.BurstSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain client: %w", err)
	}

	venues, venueNames, err := buildVenues(cfg, client)
	if err != nil {
		return nil, err
	}

	venueList := make([]dex.Venue, 0, len(venues))
	for _, v := range venues {
		venueList = append(venueList, v)
	}

	quotes, err := quoter.New(venueList, cfg.QuoteTTL(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create quoter: %w", err)
	}

	var store *monitor.Store
	if cfg.HistoryDBPath != "" {
		store, err = monitor.OpenStore(cfg.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open trade history: %w", err)
		}
	}
	mon := monitor.New(logger, store)

	gasEstimator := gas.NewEstimator(client, cfg.FallbackGasPrice, cfg.GasSafetyMultiplier, logger)

	exec := executor.New(client, venues, executor.Config{
		Wallet:      common.HexToAddress(cfg.WalletAddress),
		SettleDelay: cfg.SettlementDelay(),
		FlagPercent: cfg.ProfitFlagPercent,
	}, logger)

	tokens := make(map[string]*types.Token, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens[t.Symbol] = &types.Token{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			Name:     t.Name,
		}
	}

	pairs := make([]types.Pair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		pairs = append(pairs, types.Pair{TokenA: p.TokenA, TokenB: p.TokenB})
	}

	b := &Bot{
		cfg:    cfg,
		logger: logger,
		runner: exec,
		mon:    mon,
		store:  store,
		opps:   make(chan *types.ArbitrageOpportunity, 1),
	}

	b.scanner = scanner.New(scanner.Config{
		Venues:               venueNames,
		Pairs:                pairs,
		BaseToken:            cfg.BaseToken,
		TradeAmount:          cfg.TradeAmount,
		MinProfitPercent:     cfg.MinProfitPercent,
		SanityCeilingPercent: cfg.SanityCeilingPercent,
		FlagPercent:          cfg.ProfitFlagPercent,
		Interval:             cfg.ScanInterval(),
	}, tokens, quotes, gasEstimator, b, logger)

	return b, nil
}

func buildVenues(cfg *config.Config, client chain.Client) (map[string]dex.Venue, []string, error) {
	venues := make(map[string]dex.Venue, len(cfg.Venues))
	names := make([]string, 0, len(cfg.Venues))

	for _, vc := range cfg.Venues {
		rec := types.Venue{
			Name:     vc.Name,
			Router:   common.HexToAddress(vc.Router),
			Factory:  common.HexToAddress(vc.Factory),
			Quoter:   common.HexToAddress(vc.Quoter),
			Protocol: types.Protocol(vc.Protocol),
		}

		var (
			v   dex.Venue
			err error
		)
		switch rec.Protocol {
		case types.ProtocolUniswapV3:
			v, err = uniswap.New(rec.Name, client, rec.Router, rec.Factory)
		case types.ProtocolPancakeV3:
			v, err = pancake.New(rec.Name, client, rec.Router, rec.Factory)
		default:
			return nil, nil, fmt.Errorf("venue %s: unsupported protocol %q", vc.Name, vc.Protocol)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create venue %s: %w", vc.Name, err)
		}

		venues[rec.Name] = v
		names = append(names, rec.Name)
	}

	return venues, names, nil
}

// Start launches the scanner and executor loops.
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("Starting arbitrage bot",
		zap.Int("venues", len(b.cfg.Venues)),
		zap.Int("pairs", len(b.cfg.Pairs)))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.scanner.Run(ctx)
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.executeLoop(ctx)
	}()
}

// Stop waits for both loops to drain after context cancellation.
func (b *Bot) Stop() {
	b.wg.Wait()
	if b.store != nil {
		_ = b.store.Close()
	}
	b.logger.Info("Bot stopped", zap.String("summary", b.mon.Summary()))
}

// Dispatch hands one opportunity to the executor. The check-and-set
// keeps at most one execution in flight; a busy executor means the
// opportunity is dropped.
func (b *Bot) Dispatch(opp *types.ArbitrageOpportunity) bool {
	if !b.busy.CompareAndSwap(false, true) {
		b.mon.RecordDropped()
		return false
	}
	b.opps <- opp
	return true
}

func (b *Bot) executeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp := <-b.opps:
			res := b.runner.Execute(ctx, opp)
			b.mon.Record(res)
			b.busy.Store(false)
		}
	}
}

package gas

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/chain"
)

// Estimator prices execution cost for trade legs. Live gas price
// lookups fall back to a configured price so a flaky fee endpoint never
// blocks opportunity scoring.
type Estimator struct {
	client     chain.Client
	fallback   *big.Int
	multiplier float64
	logger     *zap.Logger
}

// NewEstimator creates a new gas estimator.
func NewEstimator(client chain.Client, fallback *big.Int, multiplier float64, logger *zap.Logger) *Estimator {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	return &Estimator{
		client:     client,
		fallback:   fallback,
		multiplier: multiplier,
		logger:     logger,
	}
}

// GasPrice returns the current network gas price, or the configured
// fallback when the lookup fails.
func (e *Estimator) GasPrice(ctx context.Context) *big.Int {
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		e.logger.Warn("Gas price lookup failed, using fallback",
			zap.String("fallback", e.fallback.String()),
			zap.Error(err))
		return new(big.Int).Set(e.fallback)
	}
	return price
}

// EstimateCost estimates the cost of spending gasLimit at the current
// gas price, scaled by the safety multiplier.
func (e *Estimator) EstimateCost(ctx context.Context, gasLimit uint64) *big.Int {
	price := e.GasPrice(ctx)

	cost := new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit))

	// Multiplier applied in basis points to stay in integer math.
	bps := big.NewInt(int64(e.multiplier * 10000))
	cost.Mul(cost, bps)
	cost.Div(cost, big.NewInt(10000))

	return cost
}

// SwapGas estimates gas for a trade of numLegs sequential swaps.
func (e *Estimator) SwapGas(numLegs int) uint64 {
	// Base cost for transaction
	baseCost := uint64(21000)

	// Cost per swap leg: storage reads, token transfers, swap execution
	costPerLeg := uint64(152000)

	return baseCost + costPerLeg*uint64(numLegs)
}

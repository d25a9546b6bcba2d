package quoter

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/dex"
	"github.com/dkatz-labs/arbot/types"
	pmath "github.com/dkatz-labs/arbot/utils/math"
)

const cacheSize = 512

// Quoter derives executable quotes from live pool state. Quotes are
// cached for a short TTL; pools that do not exist or carry no liquidity
// are memoized as dead for the process lifetime, since pools do not
// appear mid-run at the horizon this scanner targets.
type Quoter struct {
	venues map[string]dex.Venue
	cache  *lru.Cache
	ttl    time.Duration
	logger *zap.Logger

	mu   sync.Mutex
	dead map[string]struct{}
}

type cacheEntry struct {
	quote    *types.PriceQuote
	storedAt time.Time
}

// New creates a quoter over the given venues.
func New(venues []dex.Venue, ttl time.Duration, logger *zap.Logger) (*Quoter, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote cache: %w", err)
	}

	byName := make(map[string]dex.Venue, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}

	return &Quoter{
		venues: byName,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		dead:   make(map[string]struct{}),
	}, nil
}

// Quote returns the best executable quote for amountIn of tokenIn into
// tokenOut on the named venue, across all fee tiers. The second return
// is false when no tier yields a usable output; read failures never
// propagate past this boundary.
func (q *Quoter) Quote(ctx context.Context, venueName string, tokenIn, tokenOut *types.Token, amountIn *big.Int) (*types.PriceQuote, bool) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, false
	}
	if tokenIn.Address == tokenOut.Address {
		return nil, false
	}

	venue, ok := q.venues[venueName]
	if !ok {
		q.logger.Warn("Quote requested for unknown venue", zap.String("venue", venueName))
		return nil, false
	}

	key := cacheKey(venueName, tokenIn.Symbol, tokenOut.Symbol, amountIn)
	if v, ok := q.cache.Get(key); ok {
		entry := v.(cacheEntry)
		if time.Since(entry.storedAt) < q.ttl {
			return entry.quote, true
		}
	}

	zeroForOne := pmath.ZeroForOne(tokenIn.Address, tokenOut.Address)

	var best *types.PriceQuote
	for _, fee := range dex.FeeTiers {
		poolKey := fmt.Sprintf("%s|%s|%s|%d", venueName, tokenIn.Symbol, tokenOut.Symbol, fee)
		if q.isDead(poolKey) {
			continue
		}

		pool, err := venue.PoolFor(ctx, tokenIn.Address, tokenOut.Address, fee)
		if err != nil {
			// Transient read failure: tier unavailable this cycle.
			q.logger.Debug("Pool lookup failed",
				zap.String("venue", venueName),
				zap.Uint32("fee", uint32(fee)),
				zap.Error(err))
			continue
		}
		if pool == (common.Address{}) {
			q.markDead(poolKey)
			continue
		}

		state, err := venue.PoolState(ctx, pool)
		if err != nil {
			q.logger.Debug("Pool state read failed",
				zap.String("venue", venueName),
				zap.String("pool", pool.Hex()),
				zap.Error(err))
			continue
		}
		if state.Liquidity == nil || state.Liquidity.Sign() == 0 {
			q.markDead(poolKey)
			continue
		}

		out := pmath.AmountOut(state.SqrtPriceX96, pmath.ApplyFee(amountIn, uint32(fee)), zeroForOne)
		if out.Sign() == 0 {
			// Truncated to nothing: no usable quote at this tier.
			continue
		}

		if best == nil || out.Cmp(best.AmountOut) > 0 {
			best = &types.PriceQuote{
				Venue:       venueName,
				AmountIn:    new(big.Int).Set(amountIn),
				AmountOut:   out,
				Price:       pmath.UnitPrice(state.SqrtPriceX96, zeroForOne, tokenIn.Decimals, tokenOut.Decimals),
				PriceImpact: pmath.PriceImpact(state.SqrtPriceX96, state.Liquidity, amountIn, zeroForOne),
				Route:       []string{tokenIn.Symbol, tokenOut.Symbol},
				GasEstimate: venue.SwapGasLimit(),
			}
		}
	}

	if best == nil {
		return nil, false
	}

	q.cache.Add(key, cacheEntry{quote: best, storedAt: time.Now()})
	return best, true
}

func (q *Quoter) isDead(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.dead[key]
	return ok
}

func (q *Quoter) markDead(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead[key] = struct{}{}
}

func cacheKey(venue, in, out string, amountIn *big.Int) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(venue)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(in)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(out)
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(amountIn.String())
	return h.Sum64()
}

package monitor

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/types"
)

// Monitor records trade outcomes and renders aggregate statistics. The
// core never reads it; it only consumes TradeResult events.
type Monitor struct {
	logger *zap.Logger
	store  *Store
	reg    *prometheus.Registry

	attempts  prometheus.Counter
	successes prometheus.Counter
	failures  prometheus.Counter
	dropped   prometheus.Counter
	gasUsed   prometheus.Counter
	profitWei prometheus.Gauge

	mu        sync.Mutex
	trades    int
	cumProfit *big.Int
}

// New creates a monitor with its own metric registry. store may be nil
// to disable trade-history persistence.
func New(logger *zap.Logger, store *Store) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		logger: logger,
		store:  store,
		reg:    reg,
		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "trades_attempted_total",
			Help:      "Total number of trade executions attempted",
		}),
		successes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "trades_succeeded_total",
			Help:      "Total number of trade executions that completed",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "trades_failed_total",
			Help:      "Total number of trade executions that failed",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "opportunities_dropped_total",
			Help:      "Opportunities dropped while an execution was in flight",
		}),
		gasUsed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "arbot",
			Name:      "gas_used_total",
			Help:      "Total gas consumed by trade legs",
		}),
		profitWei: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbot",
			Name:      "cumulative_profit_wei",
			Help:      "Running profit across completed trades, base asset wei",
		}),
		cumProfit: big.NewInt(0),
	}
}

// Registry exposes the metric registry for exposition and tests.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.reg
}

// Record consumes one terminal trade result.
func (m *Monitor) Record(res *types.TradeResult) {
	m.attempts.Inc()
	m.gasUsed.Add(float64(res.GasUsed))

	if res.Success {
		m.successes.Inc()

		m.mu.Lock()
		m.trades++
		if res.Profit != nil {
			m.cumProfit.Add(m.cumProfit, res.Profit)
		}
		profit, _ := new(big.Float).SetInt(m.cumProfit).Float64()
		m.mu.Unlock()
		m.profitWei.Set(profit)

		m.logger.Info("Trade recorded",
			zap.String("tx_hash", res.TxHash.Hex()),
			zap.String("profit", res.Profit.String()),
			zap.Uint64("gas_used", res.GasUsed))
	} else {
		m.failures.Inc()
		m.logger.Warn("Failed trade recorded", zap.String("error", res.Err))
	}

	if m.store != nil {
		if err := m.store.Insert(res); err != nil {
			m.logger.Error("Failed to persist trade result", zap.Error(err))
		}
	}
}

// RecordDropped counts an opportunity dropped by the coordinator.
func (m *Monitor) RecordDropped() {
	m.dropped.Inc()
}

// Summary renders the aggregate counters for textual status output.
func (m *Monitor) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("trades=%d cumulative_profit=%s wei", m.trades, m.cumProfit.String())
}

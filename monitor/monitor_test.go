package monitor

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dkatz-labs/arbot/types"
)

func metricValue(t *testing.T, m *Monitor, name string) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		metric := fam.GetMetric()[0]
		switch fam.GetType() {
		case dto.MetricType_COUNTER:
			return metric.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			return metric.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestRecordSuccess(t *testing.T) {
	m := New(zap.NewNop(), nil)

	m.Record(&types.TradeResult{
		Success: true,
		TxHash:  common.HexToHash("0x1"),
		Profit:  big.NewInt(30_000),
		GasUsed: 200000,
	})

	assert.Equal(t, 1.0, metricValue(t, m, "arbot_trades_attempted_total"))
	assert.Equal(t, 1.0, metricValue(t, m, "arbot_trades_succeeded_total"))
	assert.Equal(t, 0.0, metricValue(t, m, "arbot_trades_failed_total"))
	assert.Equal(t, 200000.0, metricValue(t, m, "arbot_gas_used_total"))
	assert.Equal(t, 30000.0, metricValue(t, m, "arbot_cumulative_profit_wei"))
	assert.Equal(t, "trades=1 cumulative_profit=30000 wei", m.Summary())
}

func TestRecordFailure(t *testing.T) {
	m := New(zap.NewNop(), nil)

	m.Record(&types.TradeResult{Success: false, Err: "sell leg failed"})

	assert.Equal(t, 1.0, metricValue(t, m, "arbot_trades_attempted_total"))
	assert.Equal(t, 1.0, metricValue(t, m, "arbot_trades_failed_total"))
	assert.Equal(t, 0.0, metricValue(t, m, "arbot_trades_succeeded_total"))
	assert.Equal(t, "trades=0 cumulative_profit=0 wei", m.Summary())
}

func TestRecordDropped(t *testing.T) {
	m := New(zap.NewNop(), nil)

	m.RecordDropped()
	m.RecordDropped()

	assert.Equal(t, 2.0, metricValue(t, m, "arbot_opportunities_dropped_total"))
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Insert(&types.TradeResult{
		Success: true,
		TxHash:  common.HexToHash("0xabc"),
		Profit:  big.NewInt(42),
		GasUsed: 150000,
	}))
	require.NoError(t, store.Insert(&types.TradeResult{
		Success: false,
		Err:     "no tokens received",
	}))

	recs, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.False(t, recs[0].Success)
	assert.Equal(t, "no tokens received", recs[0].Error)
	assert.True(t, recs[1].Success)
	assert.Equal(t, "42", recs[1].ProfitWei)
	assert.Equal(t, uint64(150000), recs[1].GasUsed)
}

func TestMonitorPersistsThroughStore(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	defer store.Close()

	m := New(zap.NewNop(), store)
	m.Record(&types.TradeResult{Success: true, TxHash: common.HexToHash("0x2"), Profit: big.NewInt(7), GasUsed: 1})

	recs, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "7", recs[0].ProfitWei)
}

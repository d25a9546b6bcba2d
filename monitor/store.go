package monitor

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dkatz-labs/arbot/types"
)

// TradeRecord is one persisted execution outcome.
type TradeRecord struct {
	ID        int64
	Timestamp time.Time
	Success   bool
	TxHash    string
	ProfitWei string
	GasUsed   uint64
	Error     string
}

// Store persists trade history to sqlite so past executions survive
// restarts. Only the monitor writes here; the core is stateless.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the trade-history database.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = "trades.db"
	}

	dsn := path
	if !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade store: %w", err)
	}

	// Single connection avoids writer lock contention in the driver.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	const createTable = `
CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	success INTEGER NOT NULL,
	tx_hash TEXT NOT NULL,
	profit_wei TEXT NOT NULL,
	gas_used INTEGER NOT NULL,
	error TEXT NOT NULL
);`

	if _, err := s.db.Exec(createTable); err != nil {
		return fmt.Errorf("failed to create trades table: %w", err)
	}
	return nil
}

// Insert appends one trade result.
func (s *Store) Insert(res *types.TradeResult) error {
	profit := "0"
	if res.Profit != nil {
		profit = res.Profit.String()
	}

	success := 0
	if res.Success {
		success = 1
	}

	_, err := s.db.Exec(
		`INSERT INTO trades (success, tx_hash, profit_wei, gas_used, error) VALUES (?, ?, ?, ?, ?)`,
		success, res.TxHash.Hex(), profit, res.GasUsed, res.Err,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// Recent returns the newest n trade records.
func (s *Store) Recent(n int) ([]TradeRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, ts, success, tx_hash, profit_wei, gas_used, error FROM trades ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var success int
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &success, &rec.TxHash, &rec.ProfitWei, &rec.GasUsed, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		rec.Success = success == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

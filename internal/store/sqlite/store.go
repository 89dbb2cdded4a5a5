// Package sqlite persists paper-engine state. The engine writes through on
// every mutation, so the store favors a single-writer connection with WAL
// over batching.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"smart-algo-trade/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// fundsRowID is the primary key of the singleton funds row.
const fundsRowID = "global_state"

// Config configures the store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/paper.db"
}

// Store is a SQLite-backed model.EngineStore.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode, and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer: the engine serializes mutations behind its own mutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS funds (
			id            TEXT PRIMARY KEY,
			capital       INTEGER NOT NULL,
			available     INTEGER NOT NULL,
			invested      INTEGER NOT NULL,
			reserved      INTEGER NOT NULL,
			realized_pnl  INTEGER NOT NULL,
			daily_pnl     INTEGER NOT NULL,
			total_pnl     INTEGER NOT NULL,
			trades_today  INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS orders (
			order_id      TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			exchange      TEXT NOT NULL,
			side          TEXT NOT NULL,
			qty           INTEGER NOT NULL,
			order_type    TEXT NOT NULL,
			product       TEXT NOT NULL,
			status        TEXT NOT NULL,
			price         INTEGER NOT NULL,
			trigger_price INTEGER NOT NULL,
			avg_price     INTEGER NOT NULL,
			filled_qty    INTEGER NOT NULL,
			pending_qty   INTEGER NOT NULL,
			cancelled_qty INTEGER NOT NULL,
			tag           TEXT,
			placed_at     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS positions (
			symbol         TEXT NOT NULL,
			exchange       TEXT NOT NULL,
			product        TEXT NOT NULL,
			net_qty        INTEGER NOT NULL,
			avg_price      INTEGER NOT NULL,
			last_price     INTEGER NOT NULL,
			buy_qty        INTEGER NOT NULL,
			sell_qty       INTEGER NOT NULL,
			buy_value      INTEGER NOT NULL,
			sell_value     INTEGER NOT NULL,
			unrealized_pnl INTEGER NOT NULL,
			realized_pnl   INTEGER NOT NULL,
			opened_at      INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (symbol, exchange, product)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			ts       INTEGER NOT NULL,
			order_id TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			side     TEXT NOT NULL,
			qty      INTEGER NOT NULL,
			price    INTEGER NOT NULL,
			tag      TEXT
		);
	`)
	return err
}

// SaveFunds upserts the singleton funds row.
func (s *Store) SaveFunds(f model.Funds) error {
	_, err := s.db.Exec(`
		INSERT INTO funds (id, capital, available, invested, reserved,
			realized_pnl, daily_pnl, total_pnl, trades_today, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			capital      = excluded.capital,
			available    = excluded.available,
			invested     = excluded.invested,
			reserved     = excluded.reserved,
			realized_pnl = excluded.realized_pnl,
			daily_pnl    = excluded.daily_pnl,
			total_pnl    = excluded.total_pnl,
			trades_today = excluded.trades_today,
			updated_at   = excluded.updated_at
	`, fundsRowID, f.Capital, f.Available, f.Invested, f.Reserved,
		f.RealizedPnL, f.DailyPnL, f.TotalPnL, f.TradesToday, f.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite save funds: %w", err)
	}
	return nil
}

// SaveOrder upserts one order by order_id.
func (s *Store) SaveOrder(o model.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (order_id, symbol, exchange, side, qty, order_type,
			product, status, price, trigger_price, avg_price,
			filled_qty, pending_qty, cancelled_qty, tag, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status        = excluded.status,
			qty           = excluded.qty,
			price         = excluded.price,
			trigger_price = excluded.trigger_price,
			avg_price     = excluded.avg_price,
			filled_qty    = excluded.filled_qty,
			pending_qty   = excluded.pending_qty,
			cancelled_qty = excluded.cancelled_qty
	`, o.OrderID, o.Symbol, o.Exchange, o.Side, o.Qty, o.OrderType,
		o.Product, o.Status, o.Price, o.TriggerPrice, o.AvgPrice,
		o.FilledQty, o.PendingQty, o.CancelledQty, o.Tag, o.PlacedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite save order %s: %w", o.OrderID, err)
	}
	return nil
}

// SavePosition upserts one position by its composite key.
func (s *Store) SavePosition(p model.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (symbol, exchange, product, net_qty, avg_price,
			last_price, buy_qty, sell_qty, buy_value, sell_value,
			unrealized_pnl, realized_pnl, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, exchange, product) DO UPDATE SET
			net_qty        = excluded.net_qty,
			avg_price      = excluded.avg_price,
			last_price     = excluded.last_price,
			buy_qty        = excluded.buy_qty,
			sell_qty       = excluded.sell_qty,
			buy_value      = excluded.buy_value,
			sell_value     = excluded.sell_value,
			unrealized_pnl = excluded.unrealized_pnl,
			realized_pnl   = excluded.realized_pnl,
			updated_at     = excluded.updated_at
	`, p.Symbol, p.Exchange, p.Product, p.NetQty, p.AvgPrice,
		p.LastPrice, p.BuyQty, p.SellQty, p.BuyValue, p.SellValue,
		p.UnrealizedPnL, p.RealizedPnL, p.OpenedAt.Unix(), p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite save position %s: %w", p.Key(), err)
	}
	return nil
}

// DeletePosition removes a closed position row.
func (s *Store) DeletePosition(symbol, exchange, product string) error {
	_, err := s.db.Exec(`
		DELETE FROM positions WHERE symbol = ? AND exchange = ? AND product = ?
	`, symbol, exchange, product)
	if err != nil {
		return fmt.Errorf("sqlite delete position %s: %w",
			model.PositionKey(symbol, exchange, product), err)
	}
	return nil
}

// AppendTrade appends one trade-log row.
func (s *Store) AppendTrade(t model.TradeEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (ts, order_id, symbol, side, qty, price, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.TS.Unix(), t.OrderID, t.Symbol, t.Side, t.Qty, t.Price, t.Tag)
	if err != nil {
		return fmt.Errorf("sqlite append trade: %w", err)
	}
	return nil
}

// LoadState rebuilds the full engine state. A fresh database returns
// (nil, nil, nil, nil, nil).
func (s *Store) LoadState() (*model.Funds, []model.Order, []model.Position, []model.TradeEntry, error) {
	funds, err := s.loadFunds()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	orders, err := s.loadOrders()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	positions, err := s.loadPositions()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	trades, err := s.loadTrades()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return funds, orders, positions, trades, nil
}

func (s *Store) loadFunds() (*model.Funds, error) {
	var f model.Funds
	var updated int64
	err := s.db.QueryRow(`
		SELECT capital, available, invested, reserved, realized_pnl,
			daily_pnl, total_pnl, trades_today, updated_at
		FROM funds WHERE id = ?
	`, fundsRowID).Scan(&f.Capital, &f.Available, &f.Invested, &f.Reserved,
		&f.RealizedPnL, &f.DailyPnL, &f.TotalPnL, &f.TradesToday, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load funds: %w", err)
	}
	f.UpdatedAt = time.Unix(updated, 0)
	return &f, nil
}

func (s *Store) loadOrders() ([]model.Order, error) {
	rows, err := s.db.Query(`
		SELECT order_id, symbol, exchange, side, qty, order_type, product,
			status, price, trigger_price, avg_price,
			filled_qty, pending_qty, cancelled_qty, tag, placed_at
		FROM orders ORDER BY placed_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var tag sql.NullString
		var placed int64
		if err := rows.Scan(&o.OrderID, &o.Symbol, &o.Exchange, &o.Side, &o.Qty,
			&o.OrderType, &o.Product, &o.Status, &o.Price, &o.TriggerPrice,
			&o.AvgPrice, &o.FilledQty, &o.PendingQty, &o.CancelledQty,
			&tag, &placed); err != nil {
			return nil, fmt.Errorf("sqlite scan order: %w", err)
		}
		o.Tag = tag.String
		o.PlacedAt = time.Unix(placed, 0)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) loadPositions() ([]model.Position, error) {
	rows, err := s.db.Query(`
		SELECT symbol, exchange, product, net_qty, avg_price, last_price,
			buy_qty, sell_qty, buy_value, sell_value,
			unrealized_pnl, realized_pnl, opened_at, updated_at
		FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var opened, updated int64
		if err := rows.Scan(&p.Symbol, &p.Exchange, &p.Product, &p.NetQty,
			&p.AvgPrice, &p.LastPrice, &p.BuyQty, &p.SellQty,
			&p.BuyValue, &p.SellValue, &p.UnrealizedPnL, &p.RealizedPnL,
			&opened, &updated); err != nil {
			return nil, fmt.Errorf("sqlite scan position: %w", err)
		}
		p.OpenedAt = time.Unix(opened, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *Store) loadTrades() ([]model.TradeEntry, error) {
	rows, err := s.db.Query(`
		SELECT ts, order_id, symbol, side, qty, price, tag
		FROM trades ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite load trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeEntry
	for rows.Next() {
		var t model.TradeEntry
		var tag sql.NullString
		var ts int64
		if err := rows.Scan(&ts, &t.OrderID, &t.Symbol, &t.Side, &t.Qty,
			&t.Price, &tag); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.TS = time.Unix(ts, 0)
		t.Tag = tag.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Reset drops all persisted engine state inside one transaction.
func (s *Store) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite reset: %w", err)
	}
	for _, stmt := range []string{
		`DELETE FROM funds`,
		`DELETE FROM orders`,
		`DELETE FROM positions`,
		`DELETE FROM trades`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite reset: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

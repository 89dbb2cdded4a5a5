package model

import "time"

// Funds is the singleton virtual-fund record for one paper account.
// All amounts are in paise.
//
// Identity: available + reserved + invested == capital + realized, since
// invested carries open positions at cost basis.
type Funds struct {
	Capital     int64     `json:"capital"`      // starting virtual capital
	Available   int64     `json:"available"`    // free for new trades
	Invested    int64     `json:"invested"`     // tied up in open positions at cost
	Reserved    int64     `json:"reserved"`     // allocated to running bot strategies
	RealizedPnL int64     `json:"realized_pnl"` // from closed trades
	DailyPnL    int64     `json:"daily_pnl"`
	TotalPnL    int64     `json:"total_pnl"`
	TradesToday int       `json:"trades_today"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TradeEntry is one append-only trade-log record, written on every fill.
type TradeEntry struct {
	TS      time.Time `json:"ts"`
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Side    string    `json:"side"`
	Qty     int64     `json:"qty"`
	Price   int64     `json:"price"` // paise
	Tag     string    `json:"tag,omitempty"`
}

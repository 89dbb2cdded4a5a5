package model

import "time"

// Position represents an open paper position. Keyed by
// (symbol, exchange, product); destroyed when NetQty returns to zero.
type Position struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Product  string `json:"product"`

	NetQty   int64 `json:"net_qty"`   // positive = long, negative = short
	AvgPrice int64 `json:"avg_price"` // paise

	LastPrice int64 `json:"last_price"` // latest market price in paise

	BuyQty    int64 `json:"buy_qty"`
	SellQty   int64 `json:"sell_qty"`
	BuyValue  int64 `json:"buy_value"`  // paise
	SellValue int64 `json:"sell_value"` // paise

	UnrealizedPnL int64 `json:"unrealized_pnl"` // paise
	RealizedPnL   int64 `json:"realized_pnl"`   // paise

	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the composite position key "symbol|exchange|product".
func (p *Position) Key() string {
	return p.Symbol + "|" + p.Exchange + "|" + p.Product
}

// PositionKey builds the composite key without a Position value.
func PositionKey(symbol, exchange, product string) string {
	return symbol + "|" + exchange + "|" + product
}

// ComputeUnrealized returns the unrealized P&L in paise at the given price:
// (last - avg) * qty for longs, (avg - last) * |qty| for shorts.
func (p *Position) ComputeUnrealized(lastPrice int64) int64 {
	if p.NetQty > 0 {
		return (lastPrice - p.AvgPrice) * p.NetQty
	}
	if p.NetQty < 0 {
		return (p.AvgPrice - lastPrice) * (-p.NetQty)
	}
	return 0
}
